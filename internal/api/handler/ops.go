// Package handler provides HTTP handlers for the enrichment API.
package handler

import (
	"net/http"
	"time"

	"github.com/rhobro/dr-pings-booty/internal/api/models"
	"github.com/rhobro/dr-pings-booty/internal/api/response"
	"github.com/rhobro/dr-pings-booty/internal/provider/resilience"
)

// PokeMessage is returned by the GET /test probe.
const PokeMessage = "yup, you poked me"

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	registry  *resilience.Registry
	now       func() time.Time
}

// NewOpsHandler creates a new OpsHandler. A nil registry reports no providers.
func NewOpsHandler(version, buildTime string, registry *resilience.Registry) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		registry:  registry,
		now:       time.Now,
	}
}

// Poke handles GET /test.
func (h *OpsHandler) Poke(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	response.JSON(w, r, http.StatusOK, models.Poke{
		Timestamp: float64(now.UnixNano()) / float64(time.Second),
		Msg:       PokeMessage,
	})
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready. The service is not ready while
// every registered upstream has an open circuit.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	status := models.HealthStatusOK
	if h.registry != nil && h.registry.AllOpen() {
		status = models.HealthStatusFail
	}

	health := models.Health{
		Status: status,
		Time:   models.Timestamp(h.now()),
	}
	if status == models.HealthStatusFail {
		response.JSON(w, r, http.StatusServiceUnavailable, health)
		return
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - upstream provider status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	providers := h.providers()

	status := models.HealthStatusOK
	var degraded []string
	for _, p := range providers {
		if p.Status != models.HealthStatusOK {
			status = models.HealthStatusDegraded
			degraded = append(degraded, p.Provider)
		}
	}

	response.JSON(w, r, http.StatusOK, models.SystemStatus{
		Status:                 status,
		Time:                   models.Timestamp(h.now()),
		Providers:              providers,
		ActiveDegradationFlags: degraded,
	})
}

func (h *OpsHandler) providers() []models.ProviderStatus {
	if h.registry == nil {
		return []models.ProviderStatus{}
	}

	all := h.registry.GetAllHealth()

	out := make([]models.ProviderStatus, 0, len(all))
	for _, ph := range all {
		ps := models.ProviderStatus{
			Provider:      ph.Name,
			Status:        models.HealthStatusOK,
			LastSuccessAt: timestampPtr(ph.LastSuccessAt),
			LastFailureAt: timestampPtr(ph.LastFailureAt),
		}
		switch {
		case ph.IsUnhealthy():
			ps.Status = models.HealthStatusFail
		case ph.IsDegraded():
			ps.Status = models.HealthStatusDegraded
		}
		if ph.LastError != "" {
			msg := ph.LastError
			ps.Message = &msg
		}
		out = append(out, ps)
	}
	return out
}

func timestampPtr(t *time.Time) *models.Timestamp {
	if t == nil {
		return nil
	}
	ts := models.Timestamp(*t)
	return &ts
}
