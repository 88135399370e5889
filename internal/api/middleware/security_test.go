package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhobro/dr-pings-booty/internal/api/middleware"
	"github.com/rhobro/dr-pings-booty/internal/api/models"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestSecurityHeaders(t *testing.T) {
	handler := middleware.SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/geo+json")
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/routes:enrich", http.NoBody))

	want := map[string]string{
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"Content-Security-Policy":   "default-src 'none'; frame-ancestors 'none'",
		"Referrer-Policy":           "strict-origin-when-cross-origin",
		"Permissions-Policy":        "geolocation=(), camera=(), microphone=()",
		"Content-Type":              "application/geo+json",
	}
	for header, value := range want {
		assert.Equal(t, value, rec.Header().Get(header), header)
	}
}

func TestRequireTLS(t *testing.T) {
	tests := []struct {
		name       string
		enabled    bool
		proto      string
		wantStatus int
	}{
		{name: "disabled passes http", enabled: false, proto: "http", wantStatus: http.StatusOK},
		{name: "https passes", enabled: true, proto: "https", wantStatus: http.StatusOK},
		{name: "direct connection passes", enabled: true, proto: "", wantStatus: http.StatusOK},
		{name: "forwarded http rejected", enabled: true, proto: "http", wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/routes:enrich", http.NoBody)
			if tt.proto != "" {
				req.Header.Set("X-Forwarded-Proto", tt.proto)
			}
			rec := httptest.NewRecorder()
			middleware.RequireTLS(tt.enabled)(okHandler).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRequireTLS_Problem(t *testing.T) {
	handler := middleware.RequestID(middleware.RequireTLS(true)(okHandler))

	req := httptest.NewRequest(http.MethodGet, "/v1/routes/history", http.NoBody)
	req.Header.Set("X-Forwarded-Proto", "http")
	req.Header.Set(middleware.RequestIDHeader, "req_plain")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var problem models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, models.ProblemTypeTLSRequired, problem.Type)
	assert.Equal(t, "TLS required", problem.Title)
	assert.Equal(t, "/v1/routes/history", problem.Instance)
	assert.Equal(t, "req_plain", problem.TraceID)
}
