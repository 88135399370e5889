// Package history stores an append-only log of completed enrichments.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultLimit is the number of records Recent returns when no limit is given.
	DefaultLimit = 20
	// MaxLimit caps the number of records Recent returns.
	MaxLimit = 100

	idPrefix = "rte_"
)

// Record summarises one successful enrichment.
type Record struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	Provider       string    `json:"provider"`
	Locations      []string  `json:"locations"`
	RouteCount     int       `json:"route_count"`
	WaypointCount  int       `json:"waypoint_count"`
	POICount       int       `json:"poi_count"`
	RoadCount      int       `json:"road_count"`
	DistanceMeters float64   `json:"distance_m"`
	Summary        []string  `json:"summary"`
}

// Repository persists records.
type Repository interface {
	// Append stores r, assigning its ID when empty and setting CreatedAt.
	Append(ctx context.Context, r *Record) error

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]*Record, error)
}

// NewID returns a fresh record identifier.
func NewID() string {
	return idPrefix + uuid.NewString()
}

// ClampLimit applies DefaultLimit and MaxLimit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func prepare(r *Record) {
	if r.ID == "" {
		r.ID = NewID()
	}
	if r.Locations == nil {
		r.Locations = []string{}
	}
	if r.Summary == nil {
		r.Summary = []string{}
	}
}
