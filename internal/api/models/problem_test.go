package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhobro/dr-pings-booty/internal/api/models"
)

func TestProblemConstructors(t *testing.T) {
	tests := []struct {
		name   string
		got    *models.Problem
		typ    string
		title  string
		status int
	}{
		{"bad request", models.NewBadRequest("req_1", "d", nil), models.ProblemTypeValidation, "Validation error", http.StatusBadRequest},
		{"not found", models.NewNotFound("req_1", "d"), models.ProblemTypeNotFound, "Not found", http.StatusNotFound},
		{"insufficient waypoints", models.NewInsufficientWaypoints("req_1", "d"), models.ProblemTypeInsufficientWaypoints, "Insufficient waypoints", http.StatusUnprocessableEntity},
		{"no route", models.NewNoRoute("req_1", "d"), models.ProblemTypeNoRoute, "No route found", http.StatusNotFound},
		{"too many requests", models.NewTooManyRequests("req_1", "d"), models.ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests},
		{"internal", models.NewInternalError("req_1", "d"), models.ProblemTypeInternal, "Internal server error", http.StatusInternalServerError},
		{"unavailable", models.NewServiceUnavailable("req_1", "d"), models.ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable},
		{"tls", models.NewProblem(models.ProblemTypeTLSRequired, "req_1", "d"), models.ProblemTypeTLSRequired, "TLS required", http.StatusForbidden},
		{"media type", models.NewProblem(models.ProblemTypeUnsupportedMediaType, "req_1", "d"), models.ProblemTypeUnsupportedMediaType, "Unsupported media type", http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.typ, tt.got.Type)
			assert.Equal(t, tt.title, tt.got.Title)
			assert.Equal(t, tt.status, tt.got.Status)
			assert.Equal(t, "d", tt.got.Detail)
			assert.Equal(t, "req_1", tt.got.TraceID)
			assert.Empty(t, tt.got.Instance)
		})
	}
}

func TestNewProblem_UnknownTypeIsInternal(t *testing.T) {
	p := models.NewProblem("https://example.com/problems/made-up", "req_1", "")

	assert.Equal(t, models.ProblemTypeInternal, p.Type)
	assert.Equal(t, http.StatusInternalServerError, p.Status)
}

func TestProblem_Write(t *testing.T) {
	p := models.NewBadRequest("req_test123", "request validation failed", []models.FieldError{
		{Field: "waypoints[1].lat", Message: "must be between -90 and 90", Code: "OUT_OF_RANGE"},
	})
	p.Instance = "/v1/routes:enrich"

	w := httptest.NewRecorder()
	p.Write(w)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req_test123", w.Header().Get("X-Request-Id"))
	assert.JSONEq(t, `{
		"type": "https://drpings.dev/problems/validation-error",
		"title": "Validation error",
		"status": 400,
		"detail": "request validation failed",
		"instance": "/v1/routes:enrich",
		"traceId": "req_test123",
		"errors": [{"field": "waypoints[1].lat", "message": "must be between -90 and 90", "code": "OUT_OF_RANGE"}]
	}`, w.Body.String())
}

func TestProblem_OmitsEmptyOptionalFields(t *testing.T) {
	w := httptest.NewRecorder()
	models.NewInternalError("req_x", "").Write(w)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.NotContains(t, raw, "detail")
	assert.NotContains(t, raw, "instance")
	assert.NotContains(t, raw, "errors")
	assert.Equal(t, "req_x", raw["traceId"])
}
