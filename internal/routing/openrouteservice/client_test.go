package openrouteservice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rhobro/dr-pings-booty/internal/geo"
	"github.com/rhobro/dr-pings-booty/internal/routing"
	"github.com/rhobro/dr-pings-booty/pkg/polyline"
)

var fixturePoints = []polyline.Point{
	{Lat: 51.52258, Lon: -0.25845, Ele: 31.4},
	{Lat: 51.52001, Lon: -0.25001, Ele: 29},
	{Lat: 51.51002, Lon: -0.23003, Ele: 20.5},
	{Lat: 51.49052, Lon: -0.20639, Ele: 12.2},
}

func directionsFixture(t *testing.T) []byte {
	t.Helper()
	body := map[string]any{
		"routes": []map[string]any{{
			"summary":  map[string]any{"distance": 4210.3, "duration": 3031.2, "ascent": 4.5, "descent": 23.7},
			"bbox":     []float64{-0.25845, 51.49052, 12.2, -0.20639, 51.52258, 31.4},
			"geometry": polyline.Encode(fixturePoints, true),
			"segments": []map[string]any{{
				"distance": 4210.3,
				"duration": 3031.2,
				"steps": []map[string]any{
					{"distance": 600, "duration": 430, "type": 11, "instruction": "Head east", "way_points": []int{0, 1}},
					{"distance": 1600, "duration": 1150, "type": 1, "instruction": "Turn right", "way_points": []int{1, 2}},
					{"distance": 2010.3, "duration": 1451.2, "type": 10, "instruction": "Arrive", "way_points": []int{2, 3}},
				},
			}},
		}},
		"metadata": map[string]any{"service": "routing", "timestamp": 1717243200},
	}
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return b
}

func twoPointRequest() routing.RouteRequest {
	return routing.RouteRequest{
		Coordinates: []geo.Coordinate{
			{Lat: 51.5225787916085, Lon: -0.2584538182768499},
			{Lat: 51.49052175066264, Lon: -0.2063941502918089},
		},
		Preferences: routing.Preferences{GreenPreference: 1},
	}
}

func TestClient_Route_Success(t *testing.T) {
	respBody := directionsFixture(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Authorization") != "mock123" {
			t.Errorf("expected Authorization header 'mock123', got '%s'", r.Header.Get("Authorization"))
		}
		if r.URL.Path != "/v2/directions/foot-walking" {
			t.Errorf("expected path /v2/directions/foot-walking, got %s", r.URL.Path)
		}

		raw, _ := io.ReadAll(r.Body)
		var req orsRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if !req.Elevation {
			t.Error("expected elevation to be requested")
		}
		if len(req.Coordinates) != 2 || req.Coordinates[0][0] != -0.2584538182768499 {
			t.Errorf("unexpected coordinates %v", req.Coordinates)
		}
		if req.Preference != "recommended" {
			t.Errorf("expected recommended preference, got %q", req.Preference)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(respBody)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		APIKey:     "mock123",
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
		Logger:     zerolog.Nop(),
	})

	resp, err := client.Route(context.Background(), twoPointRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Provider != ProviderName {
		t.Errorf("expected provider %s, got %s", ProviderName, resp.Provider)
	}
	if len(resp.Routes) != 1 {
		t.Fatalf("expected 1 route, got %d", len(resp.Routes))
	}

	route := resp.Routes[0]
	if route.DistanceMeters != 4210.3 {
		t.Errorf("expected distance 4210.3, got %v", route.DistanceMeters)
	}
	if route.Ascent == nil || *route.Ascent != 4.5 {
		t.Errorf("expected ascent 4.5, got %v", route.Ascent)
	}
	if len(route.Waypoints) != 4 {
		t.Fatalf("expected 4 waypoints (3 step starts + final), got %d", len(route.Waypoints))
	}
	first := route.Waypoints[0]
	if len(first) != 3 || first[0] != -0.25845 || first[1] != 51.52258 {
		t.Errorf("unexpected first waypoint %v", first)
	}
	if _, ok := route.Extra["bbox"]; !ok {
		t.Error("expected bbox to be passed through")
	}
	if _, ok := resp.Metadata["metadata"]; !ok {
		t.Error("expected metadata to be passed through")
	}
}

func TestClient_Route_RoundTrip(t *testing.T) {
	var got orsRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write(directionsFixture(t))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{APIKey: "k", BaseURL: server.URL, HTTPClient: server.Client()})

	req := twoPointRequest()
	req.Preferences.Roundtrip = true
	req.Preferences.TargetDistance = 5000
	if _, err := client.Route(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got.Coordinates) != 1 {
		t.Errorf("expected a single start coordinate, got %d", len(got.Coordinates))
	}
	if got.Options == nil || got.Options.RoundTrip == nil || got.Options.RoundTrip.Length != 5000 {
		t.Errorf("expected round trip length 5000, got %+v", got.Options)
	}
}

func TestClient_Route_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{
			name:    "no route",
			status:  http.StatusBadRequest,
			body:    `{"error": {"code": 2009, "message": "Route could not be found"}}`,
			wantErr: routing.ErrNoRouteFound,
		},
		{
			name:    "bad parameter",
			status:  http.StatusBadRequest,
			body:    `{"error": {"code": 2003, "message": "Parameter is invalid"}}`,
			wantErr: routing.ErrInvalidCoordinates,
		},
		{
			name:    "rate limited",
			status:  http.StatusTooManyRequests,
			body:    `{"error": {"code": 0, "message": "Quota exceeded"}}`,
			wantErr: routing.ErrRateLimitExceeded,
		},
		{
			name:    "server error",
			status:  http.StatusInternalServerError,
			body:    `{"error": {"code": 0, "message": "oops"}}`,
			wantErr: routing.ErrProviderUnavailable,
		},
		{
			name:    "unparseable error body",
			status:  http.StatusBadGateway,
			body:    `<html></html>`,
			wantErr: routing.ErrProviderUnavailable,
		},
		{
			name:    "broken geometry",
			status:  http.StatusOK,
			body:    `{"routes": [{"summary": {"distance": 1}, "geometry": "_p~iF"}]}`,
			wantErr: routing.ErrProviderUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(ClientConfig{APIKey: "mock123", BaseURL: server.URL, HTTPClient: server.Client()})

			_, err := client.Route(context.Background(), twoPointRequest())
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			var routingErr *routing.Error
			if !errors.As(err, &routingErr) {
				t.Fatalf("expected routing.Error, got %T", err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

type mockFailingClient struct{}

func (mockFailingClient) Do(req *http.Request) (*http.Response, error) {
	return nil, errors.New("network unreachable")
}

func TestClient_Route_NetworkError(t *testing.T) {
	client := NewClient(ClientConfig{APIKey: "mock123", HTTPClient: mockFailingClient{}})

	_, err := client.Route(context.Background(), twoPointRequest())
	if !errors.Is(err, routing.ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestClient_Route_TooFewCoordinates(t *testing.T) {
	client := NewClient(ClientConfig{APIKey: "mock123", HTTPClient: mockFailingClient{}})

	req := twoPointRequest()
	req.Coordinates = req.Coordinates[:1]
	_, err := client.Route(context.Background(), req)
	if !errors.Is(err, routing.ErrInvalidCoordinates) {
		t.Errorf("expected ErrInvalidCoordinates, got %v", err)
	}
}

func TestClient_Name(t *testing.T) {
	client := NewClient(ClientConfig{APIKey: "test"})
	if client.Name() != "openrouteservice" {
		t.Errorf("expected name 'openrouteservice', got '%s'", client.Name())
	}
}

func TestStepWaypoints_DeduplicatesFinalVertex(t *testing.T) {
	r := &orsRoute{Segments: []routeSegment{{Steps: []routeStep{
		{WayPoints: []int{0, 2}},
		{WayPoints: []int{3, 3}},
	}}}}

	got := stepWaypoints(r, fixturePoints)
	if len(got) != 2 {
		t.Fatalf("expected 2 waypoints, got %d: %v", len(got), got)
	}
	if got[1][1] != 51.49052 {
		t.Errorf("expected final vertex last, got %v", got[1])
	}
}
