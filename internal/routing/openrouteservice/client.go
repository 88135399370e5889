// Package openrouteservice provides a client for the OpenRouteService directions API.
package openrouteservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rhobro/dr-pings-booty/internal/provider/resilience"
	"github.com/rhobro/dr-pings-booty/internal/routing"
	"github.com/rhobro/dr-pings-booty/internal/telemetry"
	"github.com/rhobro/dr-pings-booty/pkg/polyline"
)

// ProviderName identifies this routing engine in logs, metrics and health.
const ProviderName = "openrouteservice"

const (
	DefaultBaseURL = "https://api.openrouteservice.org"
	DefaultTimeout = 10 * time.Second
	DefaultProfile = "foot-walking"

	// A GreenPreference at or above this asks for the "recommended" weighting.
	recommendedThreshold = 0.5
)

// ClientConfig configures a Client. APIKey is required; zero values of the
// other fields take the defaults above. A nil HTTPClient means a
// single-attempt resilience client registered under ProviderName.
type ClientConfig struct {
	APIKey     string
	BaseURL    string
	Profile    string
	Timeout    time.Duration
	HTTPClient resilience.Doer
	Registry   *resilience.Registry
	Metrics    *telemetry.ProviderMetrics
	Logger     zerolog.Logger
}

// Client calls the ORS directions endpoint.
type Client struct {
	cfg  ClientConfig
	http resilience.Doer
}

// NewClient applies defaults to cfg.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Profile == "" {
		cfg.Profile = DefaultProfile
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	doer := cfg.HTTPClient
	if doer == nil {
		doer = resilience.NewClient(resilience.UpstreamClientConfig(ProviderName, cfg.Timeout, cfg.Registry))
	}
	return &Client{cfg: cfg, http: doer}
}

// Name returns ProviderName.
func (c *Client) Name() string {
	return ProviderName
}

// buildRequest maps the engine-neutral request onto ORS options. Unsafe and
// unlit street avoidance have no ORS equivalent and are ignored.
func buildRequest(req routing.RouteRequest) orsRequest {
	p := req.Preferences
	body := orsRequest{
		// ORS uses [lon, lat] order (GeoJSON)
		Coordinates:  routing.Coordinates(req.Coordinates),
		Elevation:    true,
		Instructions: true,
		Geometry:     true,
		Units:        "m",
		Language:     "en",
	}
	if p.GreenPreference >= recommendedThreshold {
		body.Preference = "recommended"
	}
	if p.Roundtrip && p.TargetDistance > 0 {
		body.Coordinates = body.Coordinates[:1]
		body.Options = &orsOptions{RoundTrip: &roundTripOpts{Length: int(p.TargetDistance)}}
	}
	return body
}

// Route retrieves a route through the ordered coordinates.
func (c *Client) Route(ctx context.Context, req routing.RouteRequest) (*routing.RouteResponse, error) {
	if len(req.Coordinates) < 2 && !req.Preferences.Roundtrip {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "TOO_FEW_COORDINATES",
			Message:  "at least two coordinates are required",
			Err:      routing.ErrInvalidCoordinates,
		}
	}

	body, err := json.Marshal(buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/v2/directions/%s", c.cfg.BaseURL, c.cfg.Profile)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", c.cfg.APIKey)
	httpReq.Header.Set("Accept", "application/json, application/geo+json")

	c.cfg.Logger.Debug().
		Str("profile", c.cfg.Profile).
		Int("coordinate_count", len(req.Coordinates)).
		Msg("requesting directions from ORS")

	start := time.Now()
	resp, err := c.do(httpReq)
	c.cfg.Metrics.RecordRequest(ProviderName, "route", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	c.cfg.Logger.Debug().
		Int("route_count", len(resp.Routes)).
		Msg("received directions from ORS")

	return resp, nil
}

func (c *Client) do(httpReq *http.Request) (*routing.RouteResponse, error) {
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach routing provider",
			Err:      errors.Join(routing.ErrProviderUnavailable, err),
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(resp.StatusCode, respBody)
	}

	var orsResp orsResponse
	if err := json.Unmarshal(respBody, &orsResp); err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "MALFORMED_RESPONSE",
			Message:  "decoding directions response",
			Err:      errors.Join(routing.ErrProviderUnavailable, err),
		}
	}

	return c.toRouteResponse(&orsResp)
}

// handleErrorResponse maps ORS error responses to domain errors. A 400 is a
// bad coordinate unless ORS reports it as an unroutable pair; a 403 is a key
// problem and counts as the engine being unavailable.
func handleErrorResponse(statusCode int, body []byte) error {
	var orsErr orsErrorResponse
	_ = json.Unmarshal(body, &orsErr)

	badRequest := routing.ErrInvalidCoordinates
	if orsErr.Error.Code == orsErrorCodeNotFound {
		badRequest = routing.ErrNoRouteFound
	}
	return routing.StatusError(ProviderName, statusCode, orsErr.Error.Message, badRequest)
}

// toRouteResponse converts the ORS response to the engine-neutral model.
func (c *Client) toRouteResponse(resp *orsResponse) (*routing.RouteResponse, error) {
	routes := make([]routing.Route, 0, len(resp.Routes))

	for i := range resp.Routes {
		orsRoute := &resp.Routes[i]

		points, err := polyline.DecodeElevation(orsRoute.Geometry)
		if err != nil {
			return nil, &routing.Error{
				Provider: ProviderName,
				Code:     "MALFORMED_GEOMETRY",
				Message:  fmt.Sprintf("decoding geometry of route %d", i),
				Err:      errors.Join(routing.ErrProviderUnavailable, err),
			}
		}

		geometry, err := json.Marshal(orsRoute.Geometry)
		if err != nil {
			return nil, fmt.Errorf("encoding geometry: %w", err)
		}

		route := routing.Route{
			DistanceMeters:  orsRoute.Summary.Distance,
			DurationSeconds: orsRoute.Summary.Duration,
			Ascent:          orsRoute.Summary.Ascent,
			Descent:         orsRoute.Summary.Descent,
			Waypoints:       stepWaypoints(orsRoute, points),
			Geometry:        geometry,
		}

		if len(orsRoute.BBox) >= 4 {
			bbox, err := json.Marshal(orsRoute.BBox)
			if err != nil {
				return nil, fmt.Errorf("encoding bbox: %w", err)
			}
			route.Extra = map[string]json.RawMessage{"bbox": bbox}
		}

		routes = append(routes, route)
	}

	out := &routing.RouteResponse{
		Routes:    routes,
		Provider:  ProviderName,
		FetchedAt: time.Now(),
	}
	if resp.Metadata != nil {
		meta, err := json.Marshal(resp.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encoding metadata: %w", err)
		}
		out.Metadata = map[string]json.RawMessage{"metadata": meta}
	}
	return out, nil
}

// stepWaypoints picks the geometry vertex at the start of every instruction
// step, plus the final vertex, as [lon, lat, ele] tuples.
func stepWaypoints(r *orsRoute, points []polyline.Point) [][]float64 {
	if len(points) == 0 {
		return [][]float64{}
	}

	var waypoints [][]float64
	last := -1
	add := func(idx int) {
		if idx < 0 || idx >= len(points) || idx == last {
			return
		}
		waypoints = append(waypoints, points[idx].Tuple(true))
		last = idx
	}

	for i := range r.Segments {
		for _, step := range r.Segments[i].Steps {
			if len(step.WayPoints) > 0 {
				add(step.WayPoints[0])
			}
		}
	}
	add(len(points) - 1)

	return waypoints
}
