// Package routing defines the route engine contract and a caching service
// around it.
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rhobro/dr-pings-booty/internal/geo"
)

// Sentinel errors for routing operations.
var (
	// ErrProviderUnavailable indicates the routing provider is down or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrNoRouteFound indicates no valid route exists between the given points.
	ErrNoRouteFound = errors.New("no route found between the given points")
	// ErrRateLimitExceeded indicates the API quota has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidCoordinates indicates the provided coordinates are invalid or out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

// Provider defines the interface for routing providers.
type Provider interface {
	// Route computes one or more routes through the ordered coordinates.
	Route(ctx context.Context, req RouteRequest) (*RouteResponse, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// Output formats understood by the route engine.
const (
	OutputJSON = "json"
	OutputGPX  = "gpx"
	OutputKML  = "kml"
)

// Preferences tune the route engine. Zero values mean "no preference".
type Preferences struct {
	GreenPreference float64 `json:"green_preference"`
	HillsPreference float64 `json:"hills_preference"`
	// TargetDistance in meters; only sent when positive.
	TargetDistance  float64 `json:"target_distance"`
	AvoidUnsafe     bool    `json:"avoid_unsafe"`
	AvoidUnlit      bool    `json:"avoid_unlit"`
	AvoidRepetition bool    `json:"avoid_repetition"`
	Roundtrip       bool    `json:"roundtrip"`
	Output          string  `json:"output,omitempty"`
}

// RouteRequest is the request for computing routes.
type RouteRequest struct {
	// Coordinates are the key points of the route, in order.
	Coordinates []geo.Coordinate
	Preferences Preferences
}

// RouteResponse is the engine's answer. Metadata holds every top-level field
// other than "routes", passed through verbatim.
type RouteResponse struct {
	Routes    []Route
	Metadata  map[string]json.RawMessage
	Provider  string
	FetchedAt time.Time
}

// Route is a single route option. Extra holds every field of the engine's
// route object except waypoints and geometry, verbatim; on output it takes
// precedence over the parsed numeric fields.
type Route struct {
	DistanceMeters  float64
	DurationSeconds float64
	Ascent          *float64
	Descent         *float64
	// Waypoints are [lon, lat] or [lon, lat, ele] tuples in route order.
	Waypoints [][]float64
	Geometry  json.RawMessage
	Extra     map[string]json.RawMessage
}

const (
	fieldDistance  = "distance"
	fieldDuration  = "duration"
	fieldAscent    = "ascent"
	fieldDescent   = "descent"
	fieldWaypoints = "waypoints"
	fieldGeometry  = "geometry"
	fieldSummary   = "summary"
)

type routeStats struct {
	Distance *float64 `json:"distance"`
	Duration *float64 `json:"duration"`
	Ascent   *float64 `json:"ascent"`
	Descent  *float64 `json:"descent"`
}

// UnmarshalJSON decodes a route object. Distance, duration, ascent and
// descent are read from the route itself or, failing that, from its
// "summary" object.
func (r *Route) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var top, summary routeStats
	if err := json.Unmarshal(data, &top); err != nil {
		return err
	}
	if raw, ok := fields[fieldSummary]; ok {
		// A summary that is not an object is kept verbatim and ignored here.
		_ = json.Unmarshal(raw, &summary)
	}

	var out Route
	if v := firstOf(top.Distance, summary.Distance); v != nil {
		out.DistanceMeters = *v
	}
	if v := firstOf(top.Duration, summary.Duration); v != nil {
		out.DurationSeconds = *v
	}
	out.Ascent = firstOf(top.Ascent, summary.Ascent)
	out.Descent = firstOf(top.Descent, summary.Descent)

	if raw, ok := fields[fieldWaypoints]; ok {
		if err := json.Unmarshal(raw, &out.Waypoints); err != nil {
			return err
		}
		delete(fields, fieldWaypoints)
	}
	if raw, ok := fields[fieldGeometry]; ok {
		out.Geometry = raw
		delete(fields, fieldGeometry)
	}

	if len(fields) > 0 {
		out.Extra = fields
	}
	*r = out
	return nil
}

func firstOf(vs ...*float64) *float64 {
	for _, v := range vs {
		if v != nil {
			return v
		}
	}
	return nil
}

// MarshalJSON writes the route back out with its pass-through fields.
func (r Route) MarshalJSON() ([]byte, error) {
	out, err := r.Fields()
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// Fields returns the route as a field map, for callers that add their own
// fields alongside the route.
func (r Route) Fields() (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(r.Extra)+6)
	for k, v := range r.Extra {
		out[k] = v
	}

	set := func(key string, v any) error {
		if _, ok := out[key]; ok {
			return nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		out[key] = b
		return nil
	}

	// Routes whose stats arrived inside a summary object keep that shape.
	if _, ok := r.Extra[fieldSummary]; !ok {
		if err := set(fieldDistance, r.DistanceMeters); err != nil {
			return nil, err
		}
		if err := set(fieldDuration, r.DurationSeconds); err != nil {
			return nil, err
		}
		if r.Ascent != nil {
			if err := set(fieldAscent, *r.Ascent); err != nil {
				return nil, err
			}
		}
		if r.Descent != nil {
			if err := set(fieldDescent, *r.Descent); err != nil {
				return nil, err
			}
		}
	}

	waypoints := r.Waypoints
	if waypoints == nil {
		waypoints = [][]float64{}
	}
	b, err := json.Marshal(waypoints)
	if err != nil {
		return nil, err
	}
	out[fieldWaypoints] = b
	if len(r.Geometry) > 0 {
		out[fieldGeometry] = r.Geometry
	}
	return out, nil
}

// Error provides detailed error information from the routing provider.
type Error struct {
	Provider string // Provider that generated the error
	Code     string // Error code from the provider
	Message  string // Human-readable error message
	Err      error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusError classifies a non-200 engine response. Engines disagree on what
// a 400 means, so the caller supplies its sentinel.
func StatusError(provider string, status int, message string, badRequest error) *Error {
	e := &Error{Provider: provider, Code: fmt.Sprintf("HTTP_%d", status), Message: message, Err: ErrProviderUnavailable}
	if e.Message == "" {
		e.Message = fmt.Sprintf("routing provider returned status %d", status)
	}
	switch {
	case status == http.StatusTooManyRequests:
		e.Code, e.Message, e.Err = "RATE_LIMIT", "routing provider rate limit exceeded", ErrRateLimitExceeded
	case status == http.StatusNotFound:
		e.Code, e.Err = "NO_ROUTE", ErrNoRouteFound
	case status == http.StatusBadRequest:
		e.Code, e.Err = "BAD_REQUEST", badRequest
	case status >= http.StatusInternalServerError:
		e.Code, e.Message = fmt.Sprintf("SERVER_%d", status), "routing provider is temporarily unavailable"
	}
	return e
}
