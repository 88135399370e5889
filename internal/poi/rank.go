package poi

import (
	"sort"

	"github.com/paulmach/orb"

	"github.com/rhobro/dr-pings-booty/internal/features"
	"github.com/rhobro/dr-pings-booty/internal/geo"
)

const (
	// MaxPerWaypoint is the maximum number of POIs kept per waypoint.
	MaxPerWaypoint = 5

	// RadiusTolerance widens the search radius when filtering by true
	// distance, since way centers can sit outside the queried radius.
	RadiusTolerance = 1.5
)

// Candidate is a classified feature.
type Candidate struct {
	Feature  features.RawFeature
	Popular  bool
	Priority int
}

// RankedPOI is the externally visible POI record.
type RankedPOI struct {
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	DistanceMeters float64   `json:"distance_m"`
	Coordinates    orb.Point `json:"coordinates"`
}

// Candidates classifies each feature.
func Candidates(fs []features.RawFeature) []Candidate {
	out := make([]Candidate, 0, len(fs))
	for _, f := range fs {
		popular, priority := Classify(f.Tags)
		out = append(out, Candidate{Feature: f, Popular: popular, Priority: priority})
	}
	return out
}

type scored struct {
	candidate Candidate
	distance  float64
}

// Rank filters candidates to popular ones within radiusMeters*RadiusTolerance
// of origin, orders them by (priority, distance) and returns at most
// MaxPerWaypoint results. The input slice is not modified.
func Rank(origin geo.Coordinate, candidates []Candidate, radiusMeters int) []RankedPOI {
	limit := float64(radiusMeters) * RadiusTolerance

	kept := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		if !c.Popular {
			continue
		}
		d := geo.Haversine(origin, c.Feature.Coordinate)
		if d > limit {
			continue
		}
		kept = append(kept, scored{candidate: c, distance: d})
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].candidate.Priority != kept[j].candidate.Priority {
			return kept[i].candidate.Priority < kept[j].candidate.Priority
		}
		return kept[i].distance < kept[j].distance
	})

	if len(kept) > MaxPerWaypoint {
		kept = kept[:MaxPerWaypoint]
	}

	ranked := make([]RankedPOI, 0, len(kept))
	for _, s := range kept {
		f := s.candidate.Feature
		ranked = append(ranked, RankedPOI{
			Name:           f.Name(),
			Type:           ResolveDisplayType(f.Tags),
			DistanceMeters: geo.Round(s.distance, 1),
			Coordinates:    f.Coordinate.Point(),
		})
	}
	return ranked
}
