package poi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		tags         map[string]string
		wantPopular  bool
		wantPriority int
	}{
		{"no name", map[string]string{"highway": "bus_stop"}, false, Unranked},
		{"empty tags", map[string]string{}, false, Unranked},
		{"nil tags", nil, false, Unranked},
		{"unnamed", map[string]string{"name": "Unnamed", "railway": "station"}, false, Unranked},
		{"bus stop", map[string]string{"name": "X", "highway": "bus_stop"}, true, 1},
		{"railway station", map[string]string{"name": "X", "railway": "station"}, true, 1},
		{"railway halt", map[string]string{"name": "X", "railway": "halt"}, true, 1},
		{"tram stop", map[string]string{"name": "X", "railway": "tram_stop"}, true, 1},
		{"railway other value", map[string]string{"name": "X", "railway": "rail"}, false, Unranked},
		{"public transport any value", map[string]string{"name": "X", "public_transport": "anything"}, true, 2},
		{"bus station", map[string]string{"name": "X", "amenity": "bus_station"}, true, 5},
		{"ferry terminal", map[string]string{"name": "X", "amenity": "ferry_terminal"}, true, 5},
		{"wikipedia", map[string]string{"name": "X", "wikipedia": "en:X"}, true, 50},
		{"wikidata", map[string]string{"name": "X", "wikidata": "Q1"}, true, 50},
		{"museum", map[string]string{"name": "X", "tourism": "museum"}, true, 20},
		{"viewpoint", map[string]string{"name": "X", "tourism": "viewpoint"}, true, 20},
		{"hotel is not listed", map[string]string{"name": "X", "tourism": "hotel"}, false, Unranked},
		{"castle", map[string]string{"name": "X", "historic": "castle"}, true, 25},
		{"cafe", map[string]string{"name": "X", "amenity": "cafe"}, true, 30},
		{"townhall", map[string]string{"name": "X", "amenity": "townhall"}, true, 30},
		{"supermarket", map[string]string{"name": "X", "shop": "supermarket"}, true, 30},
		{"park", map[string]string{"name": "X", "leisure": "park"}, true, 30},
		{"bakery is not listed", map[string]string{"name": "X", "shop": "bakery"}, false, Unranked},
		{"transport beats wikipedia", map[string]string{"name": "X", "railway": "station", "wikipedia": "en:X"}, true, 1},
		{"wikipedia beats tourism", map[string]string{"name": "X", "tourism": "museum", "wikidata": "Q1"}, true, 50},
		{"bus stop beats public transport", map[string]string{"name": "X", "highway": "bus_stop", "public_transport": "platform"}, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			popular, priority := Classify(tt.tags)
			assert.Equal(t, tt.wantPopular, popular)
			assert.Equal(t, tt.wantPriority, priority)
		})
	}
}

func TestResolveDisplayType(t *testing.T) {
	tests := []struct {
		name string
		tags map[string]string
		want string
	}{
		{"bus stop", map[string]string{"name": "X", "highway": "bus_stop"}, "bus_stop"},
		{"railway station", map[string]string{"name": "X", "railway": "station"}, "railway_station"},
		{"tram stop", map[string]string{"name": "X", "railway": "tram_stop"}, "railway_tram_stop"},
		{"public transport", map[string]string{"name": "X", "public_transport": "platform"}, "public_transport_platform"},
		{"ferry terminal", map[string]string{"name": "X", "amenity": "ferry_terminal"}, "ferry_terminal"},
		{"museum", map[string]string{"name": "X", "tourism": "museum"}, "museum"},
		{"memorial", map[string]string{"name": "X", "historic": "memorial"}, "memorial"},
		{"pub", map[string]string{"name": "X", "amenity": "pub"}, "pub"},
		{"mall", map[string]string{"name": "X", "shop": "mall"}, "mall"},
		{"category beats plain amenity", map[string]string{"name": "X", "amenity": "bench", "tourism": "gallery"}, "gallery"},
		{"fallback to amenity", map[string]string{"name": "X", "amenity": "bench", "wikipedia": "en:X"}, "bench"},
		{"fallback order shop before tourism", map[string]string{"name": "X", "shop": "bakery", "tourism": "hotel"}, "bakery"},
		{"default", map[string]string{"name": "X", "wikidata": "Q1"}, DefaultDisplayType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveDisplayType(tt.tags))
		})
	}
}
