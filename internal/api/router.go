// Package api provides the HTTP API for the location enrichment service.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/rhobro/dr-pings-booty/internal/api/handler"
	"github.com/rhobro/dr-pings-booty/internal/api/middleware"
	"github.com/rhobro/dr-pings-booty/internal/api/response"
	"github.com/rhobro/dr-pings-booty/internal/history"
	"github.com/rhobro/dr-pings-booty/internal/provider/resilience"
)

// DefaultServiceName is used for tracing when RouterConfig.ServiceName is empty.
const DefaultServiceName = "drpings-api"

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// Enricher serves POST /v1/routes:enrich.
	Enricher handler.Enricher

	// History serves GET /v1/routes/history (optional).
	History history.Repository

	// Registry reports upstream health on the ops endpoints (optional).
	Registry *resilience.Registry

	// EnrichRateLimit is the per-IP limit on enrichment requests per minute.
	EnrichRateLimit int

	// RequireTLS rejects plain HTTP requests forwarded by a load balancer.
	RequireTLS bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement
	r.Use(middleware.ContentTypeJSON)            // JSON content type

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		response.NotFound(w, req, "no such endpoint")
	})

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Registry)
	routeHandler := handler.NewRouteHandler(cfg.Enricher, cfg.History, cfg.Logger)

	enrichRateLimit := middleware.RateLimitByIP(middleware.PerMinute(cfg.EnrichRateLimit))
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)

	r.Get("/test", opsHandler.Poke)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		// Enrichment fans out to rate-limited upstreams.
		r.With(enrichRateLimit, middleware.RequireJSON).Post("/routes:enrich", routeHandler.Enrich)
		r.With(standardRateLimit).Get("/routes/history", routeHandler.History)
	})

	return r
}
