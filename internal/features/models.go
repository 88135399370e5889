// Package features retrieves raw geographic features around a coordinate
// from an upstream feature database.
package features

import (
	"context"
	"errors"

	"github.com/paulmach/osm"

	"github.com/rhobro/dr-pings-booty/internal/geo"
)

// Sentinel errors for feature queries.
var (
	// ErrProviderUnavailable indicates the feature database could not be reached or returned an error status.
	ErrProviderUnavailable = errors.New("feature provider unavailable")
	// ErrMalformedResponse indicates the feature database response could not be decoded.
	ErrMalformedResponse = errors.New("malformed feature response")
)

// Querier retrieves raw features within radiusMeters of a coordinate.
type Querier interface {
	Query(ctx context.Context, c geo.Coordinate, radiusMeters int) ([]RawFeature, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// GeometryKind is the upstream geometry of a feature.
type GeometryKind string

const (
	KindNode     GeometryKind = "node"
	KindWay      GeometryKind = "way"
	KindRelation GeometryKind = "relation"
)

// RawFeature is a feature as returned by the upstream database. Ways and
// relations carry their center point as Coordinate.
type RawFeature struct {
	ID         osm.FeatureID
	Kind       GeometryKind
	Coordinate geo.Coordinate
	Tags       map[string]string
}

// Name returns the feature's name tag.
func (f RawFeature) Name() string {
	return f.Tags["name"]
}

// Error provides detailed error information from a feature provider.
type Error struct {
	Provider string
	Code     string
	Message  string
	Err      error
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
