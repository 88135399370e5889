// Package poi classifies raw features as points of interest and ranks them
// by priority and distance.
package poi

import "strings"

// Unranked is the priority of a feature that is not popular.
const Unranked = 999

// Priority tiers. Lower is more important.
const (
	PriorityBusStop         = 1
	PriorityRailway         = 1
	PriorityPublicTransport = 2
	PriorityTransportHub    = 5
	PriorityTourism         = 20
	PriorityHistoric        = 25
	PriorityOther           = 30
	PriorityEncyclopedic    = 50
)

// DefaultDisplayType labels a popular feature with no recognised category.
const DefaultDisplayType = "other_popular_place"

type category struct {
	key    string
	values map[string]struct{}
}

func set(values ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

var (
	railwayStops   = set("station", "halt", "tram_stop")
	transportHubs  = set("bus_station", "ferry_terminal")
	tourismValues  = set("museum", "gallery", "attraction", "artwork", "viewpoint")
	historicValues = set("castle", "monument", "memorial", "archaeological_site", "ruins")
	amenityOther   = set("place_of_worship", "theatre", "cinema", "library", "university", "college",
		"hospital", "restaurant", "cafe", "pub", "bar", "fast_food", "townhall")
	shopValues    = set("supermarket", "department_store", "mall")
	leisureValues = set("park", "garden", "stadium", "sports_centre", "nature_reserve", "marina", "beach")
)

// categories is the ordered scan used by ResolveDisplayType.
var categories = []category{
	{key: "public_transport", values: set("station", "stop_position", "platform")},
	{key: "railway", values: railwayStops},
	{key: "amenity", values: transportHubs},
	{key: "tourism", values: tourismValues},
	{key: "historic", values: historicValues},
	{key: "amenity", values: amenityOther},
	{key: "shop", values: shopValues},
	{key: "leisure", values: leisureValues},
}

// HasName reports whether tags carry a usable name. A name of "unnamed" in
// any case does not count.
func HasName(tags map[string]string) bool {
	name := strings.TrimSpace(tags["name"])
	return name != "" && !strings.EqualFold(name, "unnamed")
}

func in(values map[string]struct{}, v string) bool {
	_, ok := values[v]
	return ok
}

// Classify decides whether a feature is popular and assigns its priority
// tier. The first matching rule wins.
func Classify(tags map[string]string) (popular bool, priority int) {
	if !HasName(tags) {
		return false, Unranked
	}

	if tags["highway"] == "bus_stop" {
		return true, PriorityBusStop
	}
	if in(railwayStops, tags["railway"]) {
		return true, PriorityRailway
	}
	if _, ok := tags["public_transport"]; ok {
		return true, PriorityPublicTransport
	}
	if in(transportHubs, tags["amenity"]) {
		return true, PriorityTransportHub
	}
	if tags["wikipedia"] != "" || tags["wikidata"] != "" {
		return true, PriorityEncyclopedic
	}
	if in(tourismValues, tags["tourism"]) {
		return true, PriorityTourism
	}
	if in(historicValues, tags["historic"]) {
		return true, PriorityHistoric
	}
	if in(amenityOther, tags["amenity"]) || in(shopValues, tags["shop"]) || in(leisureValues, tags["leisure"]) {
		return true, PriorityOther
	}

	return false, Unranked
}

// ResolveDisplayType derives the human-readable type label for a feature.
func ResolveDisplayType(tags map[string]string) string {
	if tags["highway"] == "bus_stop" {
		return "bus_stop"
	}
	if v := tags["railway"]; in(railwayStops, v) {
		return "railway_" + v
	}
	if v, ok := tags["public_transport"]; ok && v != "" {
		return "public_transport_" + v
	}
	if v := tags["amenity"]; in(transportHubs, v) {
		return v
	}

	for _, c := range categories {
		if v := tags[c.key]; in(c.values, v) {
			return v
		}
	}

	for _, key := range []string{"amenity", "shop", "tourism", "leisure", "historic"} {
		if v := tags[key]; v != "" {
			return v
		}
	}

	return DefaultDisplayType
}
