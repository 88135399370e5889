package models_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhobro/dr-pings-booty/internal/api/models"
)

func TestEnrichRequest_Validate(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantFields []string
	}{
		{name: "two locations", body: `{"locations": ["Big Ben", [51.5, -0.12]]}`},
		{name: "single location left to enrichment", body: `{"locations": ["Big Ben"]}`},
		{name: "no locations left to enrichment", body: `{"locations": []}`},
		{name: "radius too large", body: `{"locations": ["A", "B"], "search_radius_m": 5000}`, wantFields: []string{"search_radius_m"}},
		{name: "unknown format", body: `{"locations": ["A", "B"], "format": "xml"}`, wantFields: []string{"format"}},
		{name: "unknown output", body: `{"locations": ["A", "B"], "preferences": {"output": "csv"}}`, wantFields: []string{"preferences.output"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req models.EnrichRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))

			var fields []string
			for _, e := range req.Validate() {
				fields = append(fields, e.Field)
			}
			assert.Equal(t, tt.wantFields, fields)
		})
	}
}
