// Package googlemaps provides a geocoder backed by the Google Maps Geocoding API.
package googlemaps

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"googlemaps.github.io/maps"

	"github.com/rhobro/dr-pings-booty/internal/geo"
	"github.com/rhobro/dr-pings-booty/internal/geocoding"
	"github.com/rhobro/dr-pings-booty/internal/provider/resilience"
	"github.com/rhobro/dr-pings-booty/internal/ratelimit"
	"github.com/rhobro/dr-pings-booty/internal/telemetry"
)

const (
	// ProviderName identifies this geocoding provider.
	ProviderName = "googlemaps"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultInterval is the default spacing between requests.
	DefaultInterval = 100 * time.Millisecond

	routeComponent = "route"
)

// ClientConfig holds configuration for the Google Maps geocoder.
type ClientConfig struct {
	// APIKey is the Google Maps API key (required).
	APIKey string

	// BaseURL overrides the API host (optional, used in tests).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client without retries.
	HTTPClient resilience.Doer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Limiter spaces requests (optional).
	Limiter *ratelimit.Limiter

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Metrics records request durations (optional).
	Metrics *telemetry.ProviderMetrics

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client geocodes through the Google Maps API.
type Client struct {
	maps    *maps.Client
	limiter *ratelimit.Limiter
	metrics *telemetry.ProviderMetrics
	logger  zerolog.Logger
}

// doerTransport lets a resilience.Doer sit underneath the maps SDK's http.Client.
type doerTransport struct {
	doer resilience.Doer
}

func (t doerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.doer.Do(req)
}

// NewClient creates a new Google Maps geocoder.
func NewClient(cfg ClientConfig) (*Client, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	doer := cfg.HTTPClient
	if doer == nil {
		doer = resilience.NewClient(resilience.UpstreamClientConfig(ProviderName, timeout, cfg.Registry))
	}

	opts := []maps.ClientOption{
		maps.WithAPIKey(cfg.APIKey),
		maps.WithHTTPClient(&http.Client{Transport: doerTransport{doer: doer}, Timeout: timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, maps.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")))
	}

	mc, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating maps client: %w", err)
	}

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.Config{Name: ProviderName, Interval: DefaultInterval})
	}

	return &Client{
		maps:    mc,
		limiter: limiter,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}, nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Forward resolves a free-text place name to the coordinate of its best match.
func (c *Client) Forward(ctx context.Context, place string) (geo.Coordinate, error) {
	results, err := c.geocode(ctx, "forward", &maps.GeocodingRequest{Address: place})
	if err != nil {
		c.logger.Warn().Err(err).Str("place", place).Msg("forward geocoding failed")
		return geo.Coordinate{}, err
	}
	if len(results) == 0 {
		return geo.Coordinate{}, notFound(fmt.Sprintf("no result for %q", place))
	}

	loc := results[0].Geometry.Location
	coord, err := geo.NewCoordinate(loc.Lat, loc.Lng)
	if err != nil {
		return geo.Coordinate{}, &geocoding.Error{
			Provider: ProviderName,
			Code:     "MALFORMED_RESPONSE",
			Message:  "validating coordinate",
			Err:      errors.Join(geocoding.ErrMalformedResponse, err),
		}
	}
	return coord, nil
}

// Reverse resolves a coordinate to the name of the road it lies on.
func (c *Client) Reverse(ctx context.Context, coord geo.Coordinate) (string, error) {
	results, err := c.geocode(ctx, "reverse", &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: coord.Lat, Lng: coord.Lon},
	})
	if err != nil {
		c.logger.Warn().Err(err).Stringer("coordinate", coord).Msg("reverse geocoding failed")
		return "", err
	}

	for i := range results {
		for _, comp := range results[i].AddressComponents {
			if hasType(comp.Types, routeComponent) && strings.TrimSpace(comp.LongName) != "" {
				return strings.TrimSpace(comp.LongName), nil
			}
		}
	}
	if len(results) > 0 {
		if road, ok := geocoding.RoadFromDisplayName(results[0].FormattedAddress); ok {
			return road, nil
		}
	}
	return "", notFound("no road name at " + coord.String())
}

func (c *Client) geocode(ctx context.Context, operation string, req *maps.GeocodingRequest) ([]maps.GeocodingResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &geocoding.Error{
			Provider: ProviderName,
			Code:     "CANCELLED",
			Message:  "waiting for rate limiter",
			Err:      err,
		}
	}

	start := time.Now()
	var (
		results []maps.GeocodingResult
		err     error
	)
	if req.LatLng != nil {
		results, err = c.maps.ReverseGeocode(ctx, req)
	} else {
		results, err = c.maps.Geocode(ctx, req)
	}
	c.metrics.RecordRequest(ProviderName, operation, time.Since(start), err)

	if err != nil {
		// The SDK reports an empty match set as a ZERO_RESULTS status error.
		if strings.Contains(err.Error(), "ZERO_RESULTS") {
			return nil, nil
		}
		return nil, &geocoding.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "geocoding request failed",
			Err:      errors.Join(geocoding.ErrProviderUnavailable, err),
		}
	}
	return results, nil
}

func hasType(types []string, want string) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}

func notFound(msg string) error {
	return &geocoding.Error{
		Provider: ProviderName,
		Code:     "NOT_FOUND",
		Message:  msg,
		Err:      geocoding.ErrNotFound,
	}
}

var _ geocoding.Geocoder = (*Client)(nil)
