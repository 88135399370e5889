package enrichment

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FeatureCollection renders a result as GeoJSON: one LineString per route
// through its waypoints, one Point per POI and one Point per road-name
// fallback.
func FeatureCollection(r *Result) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for i, route := range r.Routes {
		line := make(orb.LineString, 0, len(route.Route.Waypoints))
		for _, tuple := range route.Route.Waypoints {
			if len(tuple) < 2 {
				continue
			}
			line = append(line, orb.Point{tuple[0], tuple[1]})
		}

		f := geojson.NewFeature(line)
		f.Properties["kind"] = "route"
		f.Properties["route_index"] = i
		f.Properties["distance"] = route.Route.DistanceMeters
		f.Properties["duration"] = route.Route.DurationSeconds
		f.Properties["summary"] = route.Summary
		fc.Append(f)

		for _, wp := range route.Waypoints {
			for _, p := range wp.NearbyPOIs {
				pf := geojson.NewFeature(p.Coordinates)
				pf.Properties["kind"] = "poi"
				pf.Properties["route_index"] = i
				pf.Properties["waypoint_index"] = wp.Index()
				pf.Properties["name"] = p.Name
				pf.Properties["type"] = p.Type
				pf.Properties["distance_m"] = p.DistanceMeters
				fc.Append(pf)
			}

			if wp.RoadName != nil {
				rf := geojson.NewFeature(wp.Coordinate().Point())
				rf.Properties["kind"] = RoadType
				rf.Properties["route_index"] = i
				rf.Properties["waypoint_index"] = wp.Index()
				rf.Properties["name"] = *wp.RoadName
				fc.Append(rf)
			}
		}
	}

	return fc
}
