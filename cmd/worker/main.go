// Package main provides the entrypoint for the enrichment worker. It pulls
// enrichment jobs from Pub/Sub and exposes a health endpoint.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/rhobro/dr-pings-booty/internal/app"
	"github.com/rhobro/dr-pings-booty/internal/config"
	"github.com/rhobro/dr-pings-booty/internal/telemetry"
	"github.com/rhobro/dr-pings-booty/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "drpings-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting enrichment worker")

	cfg, err := config.Load(serviceName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.Worker.ProjectID == "" {
		log.Fatal().Msg("worker.project_id is required")
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.App.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	providerMetrics, err := telemetry.NewProviderMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize provider metrics")
	}

	components, err := app.Build(ctx, cfg, app.Options{
		Logger:  log,
		Metrics: providerMetrics,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to assemble enrichment service")
	}
	defer components.Close()

	processor := worker.NewProcessor(worker.ProcessorDeps{
		Config: worker.ProcessorConfig{
			Concurrency: worker.DefaultProcessorConfig().Concurrency,
			JobTimeout:  cfg.Worker.JobTimeout,
		},
		Enricher: components.Enricher,
		Registry: components.Registry,
		Logger:   log.With().Str("component", "processor").Logger(),
	})

	handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
		ProjectID:        cfg.Worker.ProjectID,
		SubscriptionName: cfg.Worker.SubscriptionID,
		Processor:        processor,
		Logger:           log.With().Str("component", "pubsub").Logger(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create pubsub handler")
	}
	defer func() {
		if closeErr := handler.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close pubsub client")
		}
	}()

	// Worker also exposes health endpoint for Cloud Run
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "healthy",
			"version":   Version,
			"providers": components.Registry.GetAllHealth(),
			"jobs":      processor.MetricsSnapshot(),
		})
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Worker.HealthPort),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	// Start worker loop
	done := make(chan error, 1)
	go func() {
		done <- handler.Start(ctx)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("shutting down worker")
	case err := <-done:
		if err != nil {
			log.Error().Err(err).Msg("pubsub receive stopped")
		}
	}
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().
		Interface("jobs", processor.MetricsSnapshot()).
		Msg("worker stopped")
}
