// Package overpass provides a client for the Overpass API feature database.
package overpass

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

	"github.com/paulmach/osm"
	"github.com/rs/zerolog"

	"github.com/rhobro/dr-pings-booty/internal/features"
	"github.com/rhobro/dr-pings-booty/internal/geo"
	"github.com/rhobro/dr-pings-booty/internal/provider/resilience"
	"github.com/rhobro/dr-pings-booty/internal/ratelimit"
	"github.com/rhobro/dr-pings-booty/internal/telemetry"
)

const (
	// ProviderName identifies this feature provider.
	ProviderName = "overpass"

	// DefaultBaseURL is the public Overpass instance.
	DefaultBaseURL = "http://overpass-api.de"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultInterval is the minimum spacing between queries.
	DefaultInterval = 100 * time.Millisecond

	interpreterPath = "/api/interpreter"
)

// ClientConfig holds configuration for the Overpass client.
type ClientConfig struct {
	// BaseURL is the API base URL (optional, defaults to the public instance).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client without retries.
	HTTPClient resilience.Doer

	// Timeout is the request timeout (optional, defaults to 30s).
	Timeout time.Duration

	// Limiter spaces queries. If nil, a limiter with DefaultInterval is created.
	Limiter *ratelimit.Limiter

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Metrics records request durations (optional).
	Metrics *telemetry.ProviderMetrics

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an Overpass API client.
type Client struct {
	baseURL    string
	httpClient resilience.Doer
	limiter    *ratelimit.Limiter
	metrics    *telemetry.ProviderMetrics
	logger     zerolog.Logger
}

// NewClient creates a new Overpass client.
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

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.Config{Name: ProviderName, Interval: DefaultInterval})
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
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

// BuildQuery renders the Overpass QL query for features within radiusMeters
// of c: transport stops and stations of any name, plus named tourism,
// historic and selected amenity features.
func BuildQuery(c geo.Coordinate, radiusMeters int) string {
	around := fmt.Sprintf("(around:%d,%s,%s)", radiusMeters,
		strconv.FormatFloat(c.Lat, 'f', -1, 64),
		strconv.FormatFloat(c.Lon, 'f', -1, 64))

	var b strings.Builder
	b.WriteString("[out:json][timeout:25];\n(\n")
	for _, clause := range []string{
		`node%s["public_transport"];`,
		`node%s["railway"];`,
		`node%s["highway"="bus_stop"];`,
		`node%s["amenity"~"^(bus_station|ferry_terminal)$"];`,
		`node%s["name"]["tourism"];`,
		`node%s["name"]["historic"];`,
		`node%s["name"]["amenity"~"^(place_of_worship|theatre|cinema|library|university|college|hospital|restaurant|cafe|pub|bar)$"];`,
		`way%s["public_transport"];`,
		`way%s["railway"];`,
		`way%s["name"]["tourism"];`,
		`way%s["name"]["historic"];`,
	} {
		b.WriteString("  ")
		b.WriteString(fmt.Sprintf(clause, around))
		b.WriteString("\n")
	}
	b.WriteString(");\nout center meta;")
	return b.String()
}

type response struct {
	Elements []element `json:"elements"`
	Remark   string    `json:"remark"`
}

// runtimeErrorPrefix marks a remark for a query the interpreter aborted,
// usually on timeout or memory exhaustion. The elements are then partial.
const runtimeErrorPrefix = "runtime error"

type element struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    *float64          `json:"lat"`
	Lon    *float64          `json:"lon"`
	Center *center           `json:"center"`
	Tags   map[string]string `json:"tags"`
}

type center struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Query returns the features within radiusMeters of c, deduplicated by
// element identity. Elements without a usable coordinate are dropped.
func (c *Client) Query(ctx context.Context, coord geo.Coordinate, radiusMeters int) ([]features.RawFeature, error) {
	query := BuildQuery(coord, radiusMeters)

	waitStart := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &features.Error{
			Provider: ProviderName,
			Code:     "CANCELLED",
			Message:  "waiting for rate limiter",
			Err:      err,
		}
	}
	c.metrics.RecordRateLimitWait(ProviderName, time.Since(waitStart))

	start := time.Now()
	body, err := c.fetch(ctx, query)
	c.metrics.RecordRequest(ProviderName, "query", time.Since(start), err)
	if err != nil {
		c.logger.Warn().Err(err).Stringer("coordinate", coord).Int("radius_m", radiusMeters).Msg("feature query failed")
		return nil, err
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		err = &features.Error{
			Provider: ProviderName,
			Code:     "MALFORMED_RESPONSE",
			Message:  "decoding interpreter response",
			Err:      errors.Join(features.ErrMalformedResponse, err),
		}
		c.logger.Warn().Err(err).Stringer("coordinate", coord).Msg("feature query failed")
		return nil, err
	}

	if strings.HasPrefix(resp.Remark, runtimeErrorPrefix) {
		err := &features.Error{
			Provider: ProviderName,
			Code:     "QUERY_TIMEOUT",
			Message:  resp.Remark,
			Err:      features.ErrProviderUnavailable,
		}
		c.logger.Warn().Err(err).Stringer("coordinate", coord).Int("radius_m", radiusMeters).Msg("feature query aborted by interpreter")
		return nil, err
	}

	result := toFeatures(resp.Elements)

	c.logger.Debug().
		Stringer("coordinate", coord).
		Int("radius_m", radiusMeters).
		Int("element_count", len(resp.Elements)).
		Int("feature_count", len(result)).
		Msg("received features from overpass")

	return result, nil
}

func (c *Client) fetch(ctx context.Context, query string) ([]byte, error) {
	reqURL := c.baseURL + interpreterPath + "?data=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &features.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach feature provider",
			Err:      errors.Join(features.ErrProviderUnavailable, err),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &features.Error{
			Provider: ProviderName,
			Code:     "READ_FAILED",
			Message:  "reading response body",
			Err:      errors.Join(features.ErrProviderUnavailable, err),
		}
	}

	if resp.StatusCode != http.StatusOK {
		code := fmt.Sprintf("HTTP_%d", resp.StatusCode)
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			code = "RATE_LIMIT"
		case resp.StatusCode == http.StatusGatewayTimeout:
			code = "QUERY_TIMEOUT"
		case resp.StatusCode >= 500:
			code = fmt.Sprintf("SERVER_%d", resp.StatusCode)
		}
		return nil, &features.Error{
			Provider: ProviderName,
			Code:     code,
			Message:  fmt.Sprintf("feature provider returned status %d", resp.StatusCode),
			Err:      features.ErrProviderUnavailable,
		}
	}

	return body, nil
}

func toFeatures(elements []element) []features.RawFeature {
	seen := make(map[osm.FeatureID]struct{}, len(elements))
	out := make([]features.RawFeature, 0, len(elements))

	for i := range elements {
		e := &elements[i]

		var (
			id   osm.FeatureID
			kind features.GeometryKind
		)
		switch e.Type {
		case "node":
			id, kind = osm.NodeID(e.ID).FeatureID(), features.KindNode
		case "way":
			id, kind = osm.WayID(e.ID).FeatureID(), features.KindWay
		case "relation":
			id, kind = osm.RelationID(e.ID).FeatureID(), features.KindRelation
		default:
			continue
		}

		if _, dup := seen[id]; dup {
			continue
		}

		coord, ok := elementCoordinate(e)
		if !ok {
			continue
		}
		seen[id] = struct{}{}

		tags := e.Tags
		if tags == nil {
			tags = map[string]string{}
		}
		out = append(out, features.RawFeature{
			ID:         id,
			Kind:       kind,
			Coordinate: coord,
			Tags:       tags,
		})
	}

	return out
}

// elementCoordinate prefers the element's own position (nodes) and falls back
// to the computed center (ways and relations).
func elementCoordinate(e *element) (geo.Coordinate, bool) {
	var c geo.Coordinate
	switch {
	case e.Lat != nil && e.Lon != nil:
		c = geo.Coordinate{Lat: *e.Lat, Lon: *e.Lon}
	case e.Center != nil:
		c = geo.Coordinate{Lat: e.Center.Lat, Lon: e.Center.Lon}
	default:
		return geo.Coordinate{}, false
	}
	if c.Validate() != nil {
		return geo.Coordinate{}, false
	}
	return c, true
}

var _ features.Querier = (*Client)(nil)
