// Package enrichment annotates the waypoints of planned routes with nearby
// points of interest, falling back to road names where nothing notable is
// close by.
package enrichment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rhobro/dr-pings-booty/internal/geo"
	"github.com/rhobro/dr-pings-booty/internal/poi"
	"github.com/rhobro/dr-pings-booty/internal/routing"
)

// DefaultSearchRadiusMeters is used when a request does not set a radius.
const DefaultSearchRadiusMeters = 50

// Terminal failures of an enrichment call.
var (
	// ErrInsufficientWaypoints indicates fewer than two locations could be resolved.
	ErrInsufficientWaypoints = errors.New("insufficient waypoints")
	// ErrNoRoute indicates the routing engine failed or returned no routes.
	ErrNoRoute = errors.New("no route available")
)

// Location is either a coordinate or a free-text place name.
//
// In JSON it is accepted as {"lat": .., "lon": ..}, as a [lat, lon] pair or
// as a plain string naming a place.
type Location struct {
	Coordinate *geo.Coordinate
	Place      string
}

// At returns a coordinate location.
func At(lat, lon float64) Location {
	return Location{Coordinate: &geo.Coordinate{Lat: lat, Lon: lon}}
}

// Named returns a place-name location.
func Named(name string) Location {
	return Location{Place: name}
}

// String describes the location for logs and history records.
func (l Location) String() string {
	if l.Coordinate != nil {
		return l.Coordinate.String()
	}
	return l.Place
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Location) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("empty location")
	}

	switch data[0] {
	case '"':
		var place string
		if err := json.Unmarshal(data, &place); err != nil {
			return err
		}
		place = strings.TrimSpace(place)
		if place == "" {
			return errors.New("empty place name")
		}
		*l = Named(place)
		return nil

	case '[':
		var pair []float64
		if err := json.Unmarshal(data, &pair); err != nil {
			return fmt.Errorf("location pair: %w", err)
		}
		if len(pair) != 2 {
			return fmt.Errorf("location pair must be [lat, lon], got %d values", len(pair))
		}
		*l = At(pair[0], pair[1])
		return nil

	case '{':
		var obj struct {
			Lat   *float64 `json:"lat"`
			Lon   *float64 `json:"lon"`
			Place string   `json:"place"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("location object: %w", err)
		}
		if obj.Lat != nil && obj.Lon != nil {
			*l = At(*obj.Lat, *obj.Lon)
			return nil
		}
		if p := strings.TrimSpace(obj.Place); p != "" {
			*l = Named(p)
			return nil
		}
		return errors.New("location object needs lat and lon, or place")
	}

	return fmt.Errorf("unsupported location %s", data)
}

// MarshalJSON implements json.Marshaler.
func (l Location) MarshalJSON() ([]byte, error) {
	if l.Coordinate != nil {
		return json.Marshal(l.Coordinate)
	}
	return json.Marshal(l.Place)
}

// Request is the input of one enrichment call.
type Request struct {
	Locations          []Location
	SearchRadiusMeters int
	Preferences        routing.Preferences
}

// SkippedLocation is an input location that could not be resolved.
type SkippedLocation struct {
	Location string `json:"location"`
	Reason   string `json:"reason"`
}

// EnrichedWaypoint is one base route waypoint with what was found near it.
// Coordinates holds the route's tuple unchanged, [lon, lat] or
// [lon, lat, elevation].
type EnrichedWaypoint struct {
	Coordinates []float64       `json:"coordinates"`
	NearbyPOIs  []poi.RankedPOI `json:"nearby_pois"`
	RoadName    *string         `json:"road_name,omitempty"`

	// index is the waypoint's position in the base route.
	index int
}

// Index returns the waypoint's position in the base route's waypoint list.
func (w EnrichedWaypoint) Index() int {
	return w.index
}

// Coordinate returns the waypoint's position.
func (w EnrichedWaypoint) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: w.Coordinates[1], Lon: w.Coordinates[0]}
}

// SummaryLine describes the best thing found at the waypoint, or "" when
// nothing was found.
func (w EnrichedWaypoint) SummaryLine() string {
	n := w.index + 1
	if len(w.NearbyPOIs) > 0 {
		best := w.NearbyPOIs[0]
		return fmt.Sprintf("Waypoint %d: %s (%s, %sm)", n, best.Name, best.Type,
			strconv.FormatFloat(best.DistanceMeters, 'f', 0, 64))
	}
	if w.RoadName != nil {
		return fmt.Sprintf("Waypoint %d: %s%s", n, RoadPrefix, *w.RoadName)
	}
	return ""
}

// EnrichedRoute is a base route with its enriched waypoints.
type EnrichedRoute struct {
	Route     routing.Route
	Waypoints []EnrichedWaypoint
	Summary   []string
}

// MarshalJSON emits the base route's fields verbatim plus
// enriched_waypoints and best_pois_summary.
func (r EnrichedRoute) MarshalJSON() ([]byte, error) {
	fields, err := r.Route.Fields()
	if err != nil {
		return nil, err
	}

	waypoints := r.Waypoints
	if waypoints == nil {
		waypoints = []EnrichedWaypoint{}
	}
	if fields["enriched_waypoints"], err = json.Marshal(waypoints); err != nil {
		return nil, err
	}

	summary := r.Summary
	if summary == nil {
		summary = []string{}
	}
	if fields["best_pois_summary"], err = json.Marshal(summary); err != nil {
		return nil, err
	}

	return json.Marshal(fields)
}

// Result is the output of one enrichment call.
type Result struct {
	ID        string                     `json:"id"`
	CreatedAt time.Time                  `json:"created_at"`
	Provider  string                     `json:"provider"`
	Routes    []EnrichedRoute            `json:"routes"`
	Resolved  []geo.Coordinate           `json:"resolved_locations"`
	Skipped   []SkippedLocation          `json:"skipped_locations"`
	Metadata  map[string]json.RawMessage `json:"metadata,omitempty"`
}

// Stats are counts over all routes of a result.
type Stats struct {
	Waypoints int
	POIs      int
	Roads     int
}

// Stats counts enriched waypoints, POIs and road-name fallbacks.
func (r *Result) Stats() Stats {
	var s Stats
	for _, route := range r.Routes {
		for _, wp := range route.Waypoints {
			s.Waypoints++
			s.POIs += len(wp.NearbyPOIs)
			if wp.RoadName != nil {
				s.Roads++
			}
		}
	}
	return s
}

// Summary returns the summary lines of every route, in order.
func (r *Result) Summary() []string {
	var lines []string
	for _, route := range r.Routes {
		lines = append(lines, route.Summary...)
	}
	return lines
}
