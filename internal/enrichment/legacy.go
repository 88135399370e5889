package enrichment

import (
	"github.com/paulmach/orb"

	"github.com/rhobro/dr-pings-booty/internal/poi"
)

const (
	// RoadPrefix labels road-name fallbacks in summaries and pseudo-POIs.
	RoadPrefix = "Road: "

	// RoadType is the type of a road pseudo-POI.
	RoadType = "road"
)

// LegacyPOIs returns the waypoint's POIs in the older shape, where a
// road-name fallback is reported as a single POI of type "road" at distance
// zero instead of a separate field.
func LegacyPOIs(wp EnrichedWaypoint) []poi.RankedPOI {
	if len(wp.NearbyPOIs) > 0 || wp.RoadName == nil {
		return wp.NearbyPOIs
	}
	return []poi.RankedPOI{{
		Name:           RoadPrefix + *wp.RoadName,
		Type:           RoadType,
		DistanceMeters: 0,
		Coordinates:    orb.Point{wp.Coordinates[0], wp.Coordinates[1]},
	}}
}

// Legacy returns a copy of r with every road-name fallback folded into the
// POI list. The receiver is not modified.
func (r *Result) Legacy() *Result {
	out := *r
	out.Routes = make([]EnrichedRoute, len(r.Routes))
	for i, route := range r.Routes {
		waypoints := make([]EnrichedWaypoint, len(route.Waypoints))
		for j, wp := range route.Waypoints {
			wp.NearbyPOIs = LegacyPOIs(wp)
			wp.RoadName = nil
			waypoints[j] = wp
		}
		route.Waypoints = waypoints
		out.Routes[i] = route
	}
	return &out
}
