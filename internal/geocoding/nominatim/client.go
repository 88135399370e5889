// Package nominatim provides a client for the Nominatim (OpenStreetMap) geocoding API.
package nominatim

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

	"github.com/rhobro/dr-pings-booty/internal/geo"
	"github.com/rhobro/dr-pings-booty/internal/geocoding"
	"github.com/rhobro/dr-pings-booty/internal/provider/resilience"
	"github.com/rhobro/dr-pings-booty/internal/ratelimit"
	"github.com/rhobro/dr-pings-booty/internal/telemetry"
)

const (
	// ProviderName identifies this geocoding provider.
	ProviderName = "nominatim"

	// DefaultBaseURL is the public Nominatim instance.
	DefaultBaseURL = "https://nominatim.openstreetmap.org"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 20 * time.Second

	// DefaultInterval is the minimum spacing between requests required by the
	// public instance's usage policy.
	DefaultInterval = 1100 * time.Millisecond

	// DefaultUserAgent identifies the application to the Nominatim operators.
	DefaultUserAgent = "DRPingRouteEnricher/1.0"

	// reverseZoom requests street-level detail.
	reverseZoom = 18
)

// ClientConfig holds configuration for the Nominatim client.
type ClientConfig struct {
	// BaseURL is the API base URL (optional, defaults to the public instance).
	BaseURL string

	// UserAgent is sent with every request (optional).
	UserAgent string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client without retries.
	HTTPClient resilience.Doer

	// Timeout is the request timeout (optional, defaults to 20s).
	Timeout time.Duration

	// Limiter spaces forward and reverse requests. If nil, a limiter with
	// DefaultInterval is created.
	Limiter *ratelimit.Limiter

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Metrics records request durations (optional).
	Metrics *telemetry.ProviderMetrics

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a Nominatim API client.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient resilience.Doer
	limiter    *ratelimit.Limiter
	metrics    *telemetry.ProviderMetrics
	logger     zerolog.Logger
}

// NewClient creates a new Nominatim client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.UpstreamClientConfig(ProviderName, timeout, cfg.Registry))
	}

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.Config{Name: ProviderName, Interval: DefaultInterval})
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		userAgent:  userAgent,
		httpClient: httpClient,
		limiter:    limiter,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

type reverseResult struct {
	DisplayName string         `json:"display_name"`
	Address     reverseAddress `json:"address"`
	Error       string         `json:"error"`
}

type reverseAddress struct {
	Road       string `json:"road"`
	Pedestrian string `json:"pedestrian"`
	Footway    string `json:"footway"`
	Path       string `json:"path"`
}

// Forward resolves a free-text place name to the coordinate of its best match.
func (c *Client) Forward(ctx context.Context, place string) (geo.Coordinate, error) {
	params := url.Values{}
	params.Set("format", "jsonv2")
	params.Set("q", place)
	params.Set("limit", "1")
	params.Set("addressdetails", "1")

	body, err := c.get(ctx, "forward", "/search", params)
	if err != nil {
		c.logger.Warn().Err(err).Str("place", place).Msg("forward geocoding failed")
		return geo.Coordinate{}, err
	}

	var results []searchResult
	if err := json.Unmarshal(body, &results); err != nil {
		err = malformed("decoding search response", err)
		c.logger.Warn().Err(err).Str("place", place).Msg("forward geocoding failed")
		return geo.Coordinate{}, err
	}
	if len(results) == 0 {
		c.logger.Info().Str("place", place).Msg("no geocoding result for place")
		return geo.Coordinate{}, &geocoding.Error{
			Provider: ProviderName,
			Code:     "NOT_FOUND",
			Message:  fmt.Sprintf("no result for %q", place),
			Err:      geocoding.ErrNotFound,
		}
	}

	coord, err := parseCoordinate(results[0].Lat, results[0].Lon)
	if err != nil {
		c.logger.Warn().Err(err).Str("place", place).Msg("forward geocoding failed")
		return geo.Coordinate{}, err
	}

	c.logger.Debug().
		Str("place", place).
		Float64("lat", coord.Lat).
		Float64("lon", coord.Lon).
		Str("display_name", results[0].DisplayName).
		Msg("geocoded place")

	return coord, nil
}

// Reverse resolves a coordinate to the name of the road it lies on.
func (c *Client) Reverse(ctx context.Context, coord geo.Coordinate) (string, error) {
	params := url.Values{}
	params.Set("format", "jsonv2")
	params.Set("lat", strconv.FormatFloat(coord.Lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(coord.Lon, 'f', -1, 64))
	params.Set("zoom", strconv.Itoa(reverseZoom))

	body, err := c.get(ctx, "reverse", "/reverse", params)
	if err != nil {
		c.logger.Warn().Err(err).Stringer("coordinate", coord).Msg("reverse geocoding failed")
		return "", err
	}

	var result reverseResult
	if err := json.Unmarshal(body, &result); err != nil {
		err = malformed("decoding reverse response", err)
		c.logger.Warn().Err(err).Stringer("coordinate", coord).Msg("reverse geocoding failed")
		return "", err
	}

	road, ok := roadName(&result)
	if !ok {
		c.logger.Debug().Stringer("coordinate", coord).Msg("no road name at coordinate")
		return "", &geocoding.Error{
			Provider: ProviderName,
			Code:     "NOT_FOUND",
			Message:  "no road name at " + coord.String(),
			Err:      geocoding.ErrNotFound,
		}
	}

	return road, nil
}

// roadName picks the most specific way name from a reverse result.
func roadName(r *reverseResult) (string, bool) {
	if r.Error != "" {
		return "", false
	}
	for _, v := range []string{r.Address.Road, r.Address.Pedestrian, r.Address.Footway, r.Address.Path} {
		if v = strings.TrimSpace(v); v != "" {
			return v, true
		}
	}
	return geocoding.RoadFromDisplayName(r.DisplayName)
}

// get waits for the limiter, performs the request and returns the body of a
// 200 response.
func (c *Client) get(ctx context.Context, operation, path string, params url.Values) ([]byte, error) {
	waitStart := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &geocoding.Error{
			Provider: ProviderName,
			Code:     "CANCELLED",
			Message:  "waiting for rate limiter",
			Err:      err,
		}
	}
	c.metrics.RecordRateLimitWait(ProviderName, time.Since(waitStart))

	start := time.Now()
	body, err := c.do(ctx, path, params)
	c.metrics.RecordRequest(ProviderName, operation, time.Since(start), err)
	return body, err
}

func (c *Client) do(ctx context.Context, path string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &geocoding.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach geocoding provider",
			Err:      errors.Join(geocoding.ErrProviderUnavailable, err),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &geocoding.Error{
			Provider: ProviderName,
			Code:     "READ_FAILED",
			Message:  "reading response body",
			Err:      errors.Join(geocoding.ErrProviderUnavailable, err),
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(resp.StatusCode)
	}
	return body, nil
}

// handleErrorResponse maps Nominatim status codes to domain errors.
func handleErrorResponse(statusCode int) error {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return &geocoding.Error{
			Provider: ProviderName,
			Code:     "RATE_LIMIT",
			Message:  "geocoding rate limit exceeded",
			Err:      geocoding.ErrProviderUnavailable,
		}
	case statusCode == http.StatusForbidden:
		return &geocoding.Error{
			Provider: ProviderName,
			Code:     "FORBIDDEN",
			Message:  "geocoding access denied - check user agent and usage policy",
			Err:      geocoding.ErrProviderUnavailable,
		}
	case statusCode >= 500:
		return &geocoding.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("SERVER_%d", statusCode),
			Message:  "geocoding provider is temporarily unavailable",
			Err:      geocoding.ErrProviderUnavailable,
		}
	default:
		return &geocoding.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", statusCode),
			Message:  fmt.Sprintf("geocoding provider returned status %d", statusCode),
			Err:      geocoding.ErrProviderUnavailable,
		}
	}
}

func parseCoordinate(lat, lon string) (geo.Coordinate, error) {
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return geo.Coordinate{}, malformed("parsing latitude", err)
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return geo.Coordinate{}, malformed("parsing longitude", err)
	}
	coord, err := geo.NewCoordinate(la, lo)
	if err != nil {
		return geo.Coordinate{}, malformed("validating coordinate", err)
	}
	return coord, nil
}

func malformed(msg string, err error) error {
	return &geocoding.Error{
		Provider: ProviderName,
		Code:     "MALFORMED_RESPONSE",
		Message:  msg,
		Err:      errors.Join(geocoding.ErrMalformedResponse, err),
	}
}

var _ geocoding.Geocoder = (*Client)(nil)
