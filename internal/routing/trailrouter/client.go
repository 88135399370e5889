// Package trailrouter provides a client for the trailrouter experimental
// routes endpoint, a pedestrian-oriented OpenRouteService deployment.
package trailrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rhobro/dr-pings-booty/internal/provider/resilience"
	"github.com/rhobro/dr-pings-booty/internal/routing"
	"github.com/rhobro/dr-pings-booty/internal/telemetry"
)

const (
	// ProviderName identifies this routing provider.
	ProviderName = "trailrouter"

	// DefaultBaseURL is the trailrouter host.
	DefaultBaseURL = "https://trailrouter.com"

	// DefaultTimeout is the default request timeout. Long target-distance
	// routes can take a while to compute.
	DefaultTimeout = 60 * time.Second

	routesPath = "/ors/experimentalroutes"
)

// ClientConfig holds configuration for the trailrouter client.
type ClientConfig struct {
	// BaseURL is the API base URL (optional).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client without retries.
	HTTPClient resilience.Doer

	// Timeout is the request timeout (optional, defaults to 60s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Metrics records request durations (optional).
	Metrics *telemetry.ProviderMetrics

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a trailrouter API client.
type Client struct {
	baseURL    string
	httpClient resilience.Doer
	metrics    *telemetry.ProviderMetrics
	logger     zerolog.Logger
}

// NewClient creates a new trailrouter client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.UpstreamClientConfig(ProviderName, timeout, cfg.Registry))
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// QueryParams renders the request parameters. The response is always
// requested as JSON; GPX and KML carry no waypoints to enrich.
func QueryParams(req routing.RouteRequest) url.Values {
	coords := make([]string, len(req.Coordinates))
	for i, co := range req.Coordinates {
		coords[i] = formatFloat(co.Lon) + "," + formatFloat(co.Lat)
	}

	p := req.Preferences
	params := url.Values{}
	params.Set("coordinates", strings.Join(coords, "|"))
	params.Set("green_preference", formatFloat(p.GreenPreference))
	params.Set("avoid_unsafe_streets", strconv.FormatBool(p.AvoidUnsafe))
	params.Set("avoid_unlit_streets", strconv.FormatBool(p.AvoidUnlit))
	params.Set("hills_preference", formatFloat(p.HillsPreference))
	params.Set("avoid_repetition", strconv.FormatBool(p.AvoidRepetition))
	params.Set("roundtrip", strconv.FormatBool(p.Roundtrip))
	params.Set("output", routing.OutputJSON)
	if p.TargetDistance > 0 {
		params.Set("target_distance", strconv.Itoa(int(p.TargetDistance)))
	}
	return params
}

// Route requests routes through the ordered coordinates.
func (c *Client) Route(ctx context.Context, req routing.RouteRequest) (*routing.RouteResponse, error) {
	if len(req.Coordinates) == 0 {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "NO_COORDINATES",
			Message:  "at least one coordinate is required",
			Err:      routing.ErrInvalidCoordinates,
		}
	}

	reqURL := c.baseURL + routesPath + "?" + QueryParams(req).Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Int("coordinate_count", len(req.Coordinates)).
		Float64("target_distance", req.Preferences.TargetDistance).
		Bool("roundtrip", req.Preferences.Roundtrip).
		Msg("requesting routes from trailrouter")

	start := time.Now()
	resp, err := c.do(httpReq)
	c.metrics.RecordRequest(ProviderName, "route", time.Since(start), err)
	if err != nil {
		c.logger.Warn().Err(err).Msg("route request failed")
		return nil, err
	}

	c.logger.Debug().
		Int("route_count", len(resp.Routes)).
		Msg("received routes from trailrouter")

	return resp, nil
}

func (c *Client) do(httpReq *http.Request) (*routing.RouteResponse, error) {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach routing provider",
			Err:      errors.Join(routing.ErrProviderUnavailable, err),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(resp.StatusCode, body)
	}

	return parseResponse(body)
}

// parseResponse splits the body into routes and verbatim metadata.
func parseResponse(body []byte) (*routing.RouteResponse, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "MALFORMED_RESPONSE",
			Message:  "decoding routes response",
			Err:      errors.Join(routing.ErrProviderUnavailable, err),
		}
	}

	rawRoutes, ok := top["routes"]
	if !ok {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  "response carries no routes",
			Err:      routing.ErrNoRouteFound,
		}
	}
	delete(top, "routes")

	var routes []routing.Route
	if err := json.Unmarshal(rawRoutes, &routes); err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "MALFORMED_RESPONSE",
			Message:  "decoding routes",
			Err:      errors.Join(routing.ErrProviderUnavailable, err),
		}
	}

	return &routing.RouteResponse{
		Routes:    routes,
		Metadata:  top,
		Provider:  ProviderName,
		FetchedAt: time.Now(),
	}, nil
}

type errorResponse struct {
	Error json.RawMessage `json:"error"`
}

// handleErrorResponse maps trailrouter error responses to domain errors.
func handleErrorResponse(statusCode int, body []byte) error {
	var message string
	var er errorResponse
	if json.Unmarshal(body, &er) == nil && len(er.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		var plain string
		switch {
		case json.Unmarshal(er.Error, &nested) == nil && nested.Message != "":
			message = nested.Message
		case json.Unmarshal(er.Error, &plain) == nil && plain != "":
			message = plain
		}
	}

	return routing.StatusError(ProviderName, statusCode, message, routing.ErrNoRouteFound)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var _ routing.Provider = (*Client)(nil)
