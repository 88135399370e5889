package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 error body, served as application/problem+json.
type Problem struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Status   int          `json:"status"`
	Detail   string       `json:"detail,omitempty"`
	Instance string       `json:"instance,omitempty"`
	TraceID  string       `json:"traceId"`
	Errors   []FieldError `json:"errors,omitempty"`
}

// FieldError points a validation failure at one request field, e.g.
// "waypoints[1].lat".
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Problem type URIs.
const (
	ProblemTypeValidation            = "https://drpings.dev/problems/validation-error"
	ProblemTypeNotFound              = "https://drpings.dev/problems/not-found"
	ProblemTypeInsufficientWaypoints = "https://drpings.dev/problems/insufficient-waypoints"
	ProblemTypeNoRoute               = "https://drpings.dev/problems/no-route"
	ProblemTypeTooManyRequests       = "https://drpings.dev/problems/too-many-requests"
	ProblemTypeInternal              = "https://drpings.dev/problems/internal-error"
	ProblemTypeUnavailable           = "https://drpings.dev/problems/service-unavailable"
	ProblemTypeTLSRequired           = "https://drpings.dev/problems/tls-required"
	ProblemTypeUnsupportedMediaType  = "https://drpings.dev/problems/unsupported-media-type"
)

type problemKind struct {
	title  string
	status int
}

var problemKinds = map[string]problemKind{
	ProblemTypeValidation:            {"Validation error", http.StatusBadRequest},
	ProblemTypeNotFound:              {"Not found", http.StatusNotFound},
	ProblemTypeInsufficientWaypoints: {"Insufficient waypoints", http.StatusUnprocessableEntity},
	ProblemTypeNoRoute:               {"No route found", http.StatusNotFound},
	ProblemTypeTooManyRequests:       {"Too many requests", http.StatusTooManyRequests},
	ProblemTypeInternal:              {"Internal server error", http.StatusInternalServerError},
	ProblemTypeUnavailable:           {"Service unavailable", http.StatusServiceUnavailable},
	ProblemTypeTLSRequired:           {"TLS required", http.StatusForbidden},
	ProblemTypeUnsupportedMediaType:  {"Unsupported media type", http.StatusUnsupportedMediaType},
}

// NewProblem builds a problem of a known type with its title and status
// filled in. Unknown types become internal errors.
func NewProblem(problemType, traceID, detail string) *Problem {
	kind, ok := problemKinds[problemType]
	if !ok {
		problemType = ProblemTypeInternal
		kind = problemKinds[ProblemTypeInternal]
	}
	return &Problem{
		Type:    problemType,
		Title:   kind.title,
		Status:  kind.status,
		Detail:  detail,
		TraceID: traceID,
	}
}

// Write sends p, echoing TraceID as the request ID.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("X-Request-Id", p.TraceID)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewBadRequest creates a 400 validation problem listing the offending fields.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	p := NewProblem(ProblemTypeValidation, traceID, detail)
	p.Errors = errors
	return p
}

func NewNotFound(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeNotFound, traceID, detail)
}

// NewInsufficientWaypoints creates a 422 problem for requests where fewer
// than two locations could be resolved.
func NewInsufficientWaypoints(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeInsufficientWaypoints, traceID, detail)
}

// NewNoRoute creates a 404 problem for waypoints the routing engine could not connect.
func NewNoRoute(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeNoRoute, traceID, detail)
}

func NewTooManyRequests(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeTooManyRequests, traceID, detail)
}

func NewInternalError(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeInternal, traceID, detail)
}

func NewServiceUnavailable(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeUnavailable, traceID, detail)
}
