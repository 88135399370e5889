package googlemaps_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhobro/dr-pings-booty/internal/geo"
	"github.com/rhobro/dr-pings-booty/internal/geocoding"
	"github.com/rhobro/dr-pings-booty/internal/geocoding/googlemaps"
)

func newTestClient(t *testing.T, body string) *googlemaps.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/maps/api/geocode/json", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	client, err := googlemaps.NewClient(googlemaps.ClientConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		HTTPClient: http.DefaultClient,
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	return client
}

func TestClient_Forward(t *testing.T) {
	client := newTestClient(t, `{
		"status": "OK",
		"results": [{
			"formatted_address": "London SW1A 0AA, UK",
			"geometry": {"location": {"lat": 51.5007292, "lng": -0.1246254}}
		}]
	}`)

	c, err := client.Forward(context.Background(), "Big Ben")
	require.NoError(t, err)
	assert.Equal(t, geo.Coordinate{Lat: 51.5007292, Lon: -0.1246254}, c)
}

func TestClient_Forward_ZeroResults(t *testing.T) {
	client := newTestClient(t, `{"status": "ZERO_RESULTS", "results": []}`)

	_, err := client.Forward(context.Background(), "Nowhere")
	require.Error(t, err)
	assert.True(t, errors.Is(err, geocoding.ErrNotFound))
}

func TestClient_Reverse_RouteComponent(t *testing.T) {
	client := newTestClient(t, `{
		"status": "OK",
		"results": [{
			"formatted_address": "1 Parliament St, London, UK",
			"address_components": [
				{"long_name": "1", "short_name": "1", "types": ["street_number"]},
				{"long_name": "Parliament Street", "short_name": "Parliament St", "types": ["route"]}
			]
		}]
	}`)

	road, err := client.Reverse(context.Background(), geo.Coordinate{Lat: 51.5010, Lon: -0.1262})
	require.NoError(t, err)
	assert.Equal(t, "Parliament Street", road)
}

func TestClient_Reverse_FormattedAddressFallback(t *testing.T) {
	client := newTestClient(t, `{
		"status": "OK",
		"results": [{"formatted_address": "Victoria Embankment, London, UK", "address_components": []}]
	}`)

	road, err := client.Reverse(context.Background(), geo.Coordinate{Lat: 51.5, Lon: -0.12})
	require.NoError(t, err)
	assert.Equal(t, "Victoria Embankment", road)
}

func TestClient_Reverse_RequestDenied(t *testing.T) {
	client := newTestClient(t, `{"status": "REQUEST_DENIED", "error_message": "bad key", "results": []}`)

	_, err := client.Reverse(context.Background(), geo.Coordinate{Lat: 51.5, Lon: -0.12})
	require.Error(t, err)
	assert.True(t, errors.Is(err, geocoding.ErrProviderUnavailable))
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := googlemaps.NewClient(googlemaps.ClientConfig{})
	assert.Error(t, err)
}
