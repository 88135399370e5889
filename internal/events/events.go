// Package events publishes domain events about completed enrichments.
package events

import (
	"context"
	"time"
)

// SubjectPrefix is prepended to the record ID to form the subject of a
// RouteEnriched event.
const SubjectPrefix = "routes.enriched."

// RouteEnriched is a compact summary of a successful enrichment.
type RouteEnriched struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	Provider      string    `json:"provider"`
	RouteCount    int       `json:"route_count"`
	WaypointCount int       `json:"waypoint_count"`
	POICount      int       `json:"poi_count"`
	RoadCount     int       `json:"road_count"`
	Summary       []string  `json:"summary"`
}

// Subject returns the subject the event is published on.
func (e *RouteEnriched) Subject() string {
	return SubjectPrefix + e.ID
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	PublishRouteEnriched(ctx context.Context, e *RouteEnriched) error
}

// Noop discards every event.
type Noop struct{}

// PublishRouteEnriched does nothing.
func (Noop) PublishRouteEnriched(context.Context, *RouteEnriched) error { return nil }
