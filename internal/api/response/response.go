// Package response writes JSON, GeoJSON and problem+json bodies, echoing the
// request ID so clients can correlate responses with server logs.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/rhobro/dr-pings-booty/internal/api/middleware"
	"github.com/rhobro/dr-pings-booty/internal/api/models"
)

// JSON writes data as application/json.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, r, "application/json", status, data)
}

// GeoJSON writes data as application/geo+json.
func GeoJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, r, "application/geo+json", status, data)
}

func write(w http.ResponseWriter, r *http.Request, contentType string, status int, data any) {
	if id := middleware.GetRequestID(r.Context()); id != "" {
		w.Header().Set(middleware.RequestIDHeader, id)
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Error writes problem with its instance set to the request path.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

func problem(w http.ResponseWriter, r *http.Request, build func(traceID string) *models.Problem) {
	Error(w, r, build(middleware.GetRequestID(r.Context())))
}

// BadRequest writes a 400 validation problem.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	problem(w, r, func(id string) *models.Problem { return models.NewBadRequest(id, detail, errors) })
}

// NotFound writes a 404 problem.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	problem(w, r, func(id string) *models.Problem { return models.NewNotFound(id, detail) })
}

// InsufficientWaypoints writes a 422 problem for requests where fewer than
// two locations could be resolved.
func InsufficientWaypoints(w http.ResponseWriter, r *http.Request, detail string) {
	problem(w, r, func(id string) *models.Problem { return models.NewInsufficientWaypoints(id, detail) })
}

// NoRoute writes a 404 problem for waypoints the routing engine could not connect.
func NoRoute(w http.ResponseWriter, r *http.Request, detail string) {
	problem(w, r, func(id string) *models.Problem { return models.NewNoRoute(id, detail) })
}

// InternalError writes a 500 problem. detail must not leak upstream errors.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	problem(w, r, func(id string) *models.Problem { return models.NewInternalError(id, detail) })
}

// ServiceUnavailable writes a 503 problem.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	problem(w, r, func(id string) *models.Problem { return models.NewServiceUnavailable(id, detail) })
}
