package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/rhobro/dr-pings-booty/internal/api/models"
	"github.com/rhobro/dr-pings-booty/internal/api/response"
	"github.com/rhobro/dr-pings-booty/internal/enrichment"
	"github.com/rhobro/dr-pings-booty/internal/history"
)

// maxEnrichBodyBytes caps the POST /v1/routes:enrich body.
const maxEnrichBodyBytes = 1 << 20

// Enricher runs one enrichment call.
type Enricher interface {
	Enrich(ctx context.Context, req enrichment.Request) (*enrichment.Result, error)
}

// RouteHandler handles route enrichment endpoints.
type RouteHandler struct {
	enricher Enricher
	history  history.Repository
	logger   zerolog.Logger
}

// NewRouteHandler creates a new RouteHandler. History may be nil, in which
// case the history endpoint returns an empty list.
func NewRouteHandler(enricher Enricher, repo history.Repository, logger zerolog.Logger) *RouteHandler {
	return &RouteHandler{
		enricher: enricher,
		history:  repo,
		logger:   logger,
	}
}

// Enrich handles POST /v1/routes:enrich.
func (h *RouteHandler) Enrich(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxEnrichBodyBytes)

	var input models.EnrichRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body: "+err.Error(), nil)
		return
	}
	if errs := input.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "request validation failed", errs)
		return
	}

	result, err := h.enricher.Enrich(r.Context(), input.ToEnrichment())
	if err != nil {
		h.writeEnrichError(w, r, err)
		return
	}

	if input.LegacyRoadPOI {
		result = result.Legacy()
	}

	if input.Format == models.FormatGeoJSON {
		response.GeoJSON(w, r, http.StatusOK, enrichment.FeatureCollection(result))
		return
	}
	response.JSON(w, r, http.StatusOK, result)
}

func (h *RouteHandler) writeEnrichError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, enrichment.ErrInsufficientWaypoints):
		response.InsufficientWaypoints(w, r, err.Error())
	case errors.Is(err, enrichment.ErrNoRoute):
		response.NoRoute(w, r, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		response.ServiceUnavailable(w, r, "request cancelled before enrichment completed")
	default:
		h.log(r).Error().Err(err).Msg("route enrichment failed")
		response.InternalError(w, r, "route enrichment failed")
	}
}

// History handles GET /v1/routes/history.
func (h *RouteHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := history.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.BadRequest(w, r, "invalid limit", []models.FieldError{
				{Field: "limit", Message: "must be a positive integer", Code: "INVALID"},
			})
			return
		}
		limit = history.ClampLimit(n)
	}

	items := []*history.Record{}
	if h.history != nil {
		recent, err := h.history.Recent(r.Context(), limit)
		if err != nil {
			h.log(r).Error().Err(err).Msg("failed to read route history")
			response.InternalError(w, r, "failed to read route history")
			return
		}
		items = recent
	}

	response.JSON(w, r, http.StatusOK, models.HistoryResponse{
		Items: items,
		Meta:  models.PagedResponseMeta{Limit: limit, Count: len(items)},
	})
}

// log returns the request-scoped logger set by middleware.Logger, falling
// back to the handler's own.
func (h *RouteHandler) log(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &h.logger
}
