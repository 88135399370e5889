package models

import (
	"github.com/rhobro/dr-pings-booty/internal/enrichment"
	"github.com/rhobro/dr-pings-booty/internal/history"
	"github.com/rhobro/dr-pings-booty/internal/routing"
)

// Response formats for POST /v1/routes:enrich.
const (
	FormatJSON    = "json"
	FormatGeoJSON = "geojson"
)

// Limits on the search radius accepted by the API.
const (
	MinSearchRadiusM = 1
	MaxSearchRadiusM = 1000
)

// EnrichRequest is the request body for enriching a route.
type EnrichRequest struct {
	// Locations are visited in order. Each is a {lat, lon} object, a
	// [lat, lon] pair or a place name.
	Locations []enrichment.Location `json:"locations"`

	// SearchRadiusM is the POI search radius in meters.
	SearchRadiusM *int `json:"search_radius_m,omitempty"`

	// Preferences are passed through to the routing engine.
	Preferences routing.Preferences `json:"preferences"`

	// LegacyRoadPOI reports road-name fallbacks as "Road: X" POIs.
	LegacyRoadPOI bool `json:"legacy_road_poi,omitempty"`

	// Format is "json" (default) or "geojson".
	Format string `json:"format,omitempty"`
}

// Validate returns field errors for the request. Location count is left to
// enrichment, which answers fewer than two waypoints with a 422.
func (r *EnrichRequest) Validate() []FieldError {
	var errs []FieldError

	if r.SearchRadiusM != nil && (*r.SearchRadiusM < MinSearchRadiusM || *r.SearchRadiusM > MaxSearchRadiusM) {
		errs = append(errs, FieldError{Field: "search_radius_m", Message: "must be between 1 and 1000", Code: "OUT_OF_RANGE"})
	}
	switch r.Format {
	case "", FormatJSON, FormatGeoJSON:
	default:
		errs = append(errs, FieldError{Field: "format", Message: "must be json or geojson", Code: "INVALID"})
	}
	switch r.Preferences.Output {
	case "", routing.OutputJSON, routing.OutputGPX, routing.OutputKML:
	default:
		errs = append(errs, FieldError{Field: "preferences.output", Message: "must be json, gpx or kml", Code: "INVALID"})
	}

	return errs
}

// ToEnrichment converts the request to the service input.
func (r *EnrichRequest) ToEnrichment() enrichment.Request {
	req := enrichment.Request{
		Locations:   r.Locations,
		Preferences: r.Preferences,
	}
	if r.SearchRadiusM != nil {
		req.SearchRadiusMeters = *r.SearchRadiusM
	}
	return req
}

// HistoryResponse is the response for GET /v1/routes/history.
type HistoryResponse struct {
	Items []*history.Record `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}

// Poke is the response of the GET /test liveness probe.
type Poke struct {
	Timestamp float64 `json:"timestamp"`
	Msg       string  `json:"msg"`
}
