// Package app assembles the enrichment service and its upstreams from
// configuration. It is shared by the API server and the worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rhobro/dr-pings-booty/internal/cache"
	"github.com/rhobro/dr-pings-booty/internal/config"
	"github.com/rhobro/dr-pings-booty/internal/database"
	"github.com/rhobro/dr-pings-booty/internal/enrichment"
	"github.com/rhobro/dr-pings-booty/internal/events"
	"github.com/rhobro/dr-pings-booty/internal/features"
	"github.com/rhobro/dr-pings-booty/internal/features/overpass"
	"github.com/rhobro/dr-pings-booty/internal/geocoding"
	"github.com/rhobro/dr-pings-booty/internal/geocoding/googlemaps"
	"github.com/rhobro/dr-pings-booty/internal/geocoding/nominatim"
	"github.com/rhobro/dr-pings-booty/internal/history"
	"github.com/rhobro/dr-pings-booty/internal/provider/resilience"
	"github.com/rhobro/dr-pings-booty/internal/ratelimit"
	"github.com/rhobro/dr-pings-booty/internal/routing"
	"github.com/rhobro/dr-pings-booty/internal/routing/openrouteservice"
	"github.com/rhobro/dr-pings-booty/internal/routing/trailrouter"
	"github.com/rhobro/dr-pings-booty/internal/telemetry"
)

// Components are the assembled services.
type Components struct {
	Enricher *enrichment.Service
	History  history.Repository
	Registry *resilience.Registry

	closers []func()
}

// Close releases connections in reverse order of creation.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

func (c *Components) onClose(f func()) {
	c.closers = append(c.closers, f)
}

// Options are the non-config inputs of Build.
type Options struct {
	Logger zerolog.Logger

	// Metrics records upstream calls (optional).
	Metrics *telemetry.ProviderMetrics

	// Registry tracks upstream health. A new registry is created when nil.
	Registry *resilience.Registry
}

// Build wires every component named by cfg. On error, anything already
// opened is closed.
func Build(ctx context.Context, cfg *config.Config, opts Options) (_ *Components, err error) {
	registry := opts.Registry
	if registry == nil {
		registry = resilience.NewRegistry()
	}

	c := &Components{Registry: registry}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	log := opts.Logger

	store, err := buildCache(ctx, cfg.Cache, c)
	if err != nil {
		return nil, err
	}

	geocoder, err := buildGeocoder(cfg.Geocoder, registry, opts.Metrics, log)
	if err != nil {
		return nil, err
	}

	featureClient := overpass.NewClient(overpass.ClientConfig{
		BaseURL: cfg.Features.BaseURL,
		Timeout: cfg.Features.Timeout,
		Limiter: ratelimit.New(ratelimit.Config{
			Name:     overpass.ProviderName,
			Interval: cfg.Features.Interval,
		}),
		Registry: registry,
		Metrics:  opts.Metrics,
		Logger:   log.With().Str("component", "overpass").Logger(),
	})

	router, err := buildRouter(cfg.Routing, registry, opts.Metrics, log)
	if err != nil {
		return nil, err
	}

	repo, err := buildHistory(ctx, cfg.History, c)
	if err != nil {
		return nil, err
	}
	c.History = repo

	publisher, err := buildPublisher(cfg.Events, c, log)
	if err != nil {
		return nil, err
	}

	c.Enricher = enrichment.NewService(enrichment.ServiceConfig{
		Geocoder: geocoding.NewService(geocoding.ServiceConfig{
			Provider: geocoder,
			Cache:    store,
			Logger:   log,
			CacheTTL: cfg.Cache.LookupTTL,
		}),
		Features: features.NewService(features.ServiceConfig{
			Provider: featureClient,
			Cache:    store,
			Logger:   log,
			CacheTTL: cfg.Cache.FeaturesTTL,
		}),
		Router: routing.NewService(routing.ServiceConfig{
			Provider:      router,
			Logger:        log,
			CacheTTL:      cfg.Routing.CacheTTL,
			CacheGridSize: cfg.Routing.CacheGrid,
		}),
		History:             repo,
		Events:              publisher,
		DefaultRadiusMeters: cfg.App.DefaultSearchRadiusM,
		Logger:              log.With().Str("component", "enrichment").Logger(),
	})

	log.Info().
		Str("geocoder", geocoder.Name()).
		Str("router", router.Name()).
		Str("cache", cfg.Cache.Backend).
		Str("history", cfg.History.Backend).
		Bool("events", cfg.Events.NATSURL != "").
		Msg("enrichment service assembled")

	return c, nil
}

func buildCache(ctx context.Context, cfg config.CacheConfig, c *Components) (cache.Store, error) {
	switch cfg.Backend {
	case config.BackendValkey:
		v, err := cache.NewValkey(cfg.ValkeyAddr, cfg.Prefix)
		if err != nil {
			return nil, fmt.Errorf("connect valkey: %w", err)
		}
		c.onClose(v.Close)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := v.Ping(pingCtx); err != nil {
			return nil, fmt.Errorf("ping valkey: %w", err)
		}
		return v, nil

	case config.BackendMemory, "":
		return cache.NewMemory(time.Minute), nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
}

func buildGeocoder(cfg config.GeocoderConfig, registry *resilience.Registry, metrics *telemetry.ProviderMetrics, log zerolog.Logger) (geocoding.Geocoder, error) {
	switch cfg.Provider {
	case config.GeocoderGoogleMaps:
		client, err := googlemaps.NewClient(googlemaps.ClientConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
			Limiter: ratelimit.New(ratelimit.Config{
				Name:     googlemaps.ProviderName,
				Interval: cfg.Interval,
			}),
			Registry: registry,
			Metrics:  metrics,
			Logger:   log.With().Str("component", "googlemaps").Logger(),
		})
		if err != nil {
			return nil, fmt.Errorf("create google maps geocoder: %w", err)
		}
		return client, nil

	case config.GeocoderNominatim, "":
		return nominatim.NewClient(nominatim.ClientConfig{
			BaseURL:   cfg.BaseURL,
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.Timeout,
			Limiter: ratelimit.New(ratelimit.Config{
				Name:     nominatim.ProviderName,
				Interval: cfg.Interval,
			}),
			Registry: registry,
			Metrics:  metrics,
			Logger:   log.With().Str("component", "nominatim").Logger(),
		}), nil
	}
	return nil, fmt.Errorf("unknown geocoder %q", cfg.Provider)
}

func buildRouter(cfg config.RoutingConfig, registry *resilience.Registry, metrics *telemetry.ProviderMetrics, log zerolog.Logger) (routing.Provider, error) {
	switch cfg.Provider {
	case config.RoutingOpenRouteService:
		return openrouteservice.NewClient(openrouteservice.ClientConfig{
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.BaseURL,
			Profile:  cfg.Profile,
			Timeout:  cfg.Timeout,
			Registry: registry,
			Metrics:  metrics,
			Logger:   log.With().Str("component", "openrouteservice").Logger(),
		}), nil

	case config.RoutingTrailrouter, "":
		return trailrouter.NewClient(trailrouter.ClientConfig{
			BaseURL:  cfg.BaseURL,
			Timeout:  cfg.Timeout,
			Registry: registry,
			Metrics:  metrics,
			Logger:   log.With().Str("component", "trailrouter").Logger(),
		}), nil
	}
	return nil, fmt.Errorf("unknown routing provider %q", cfg.Provider)
}

func buildHistory(ctx context.Context, cfg config.HistoryConfig, c *Components) (history.Repository, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := database.Connect(ctx, database.PostgresConfig{
			URL:      cfg.PostgresURL,
			MaxConns: cfg.MaxConns,
		})
		if err != nil {
			return nil, err
		}
		c.onClose(pool.Close)

		repo := history.NewPostgresRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return repo, nil

	case config.BackendSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		c.onClose(func() { _ = db.Close() })

		repo := history.NewSQLiteRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return repo, nil

	case config.BackendMemory, "":
		return history.NewInMemoryRepository(), nil
	}
	return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
}

func buildPublisher(cfg config.EventsConfig, c *Components, log zerolog.Logger) (events.Publisher, error) {
	if cfg.NATSURL == "" {
		return events.Noop{}, nil
	}

	p, err := events.NewNATSPublisher(cfg.NATSURL)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	c.onClose(p.Close)

	log.Info().Str("stream", events.StreamName).Msg("publishing enrichment events to NATS")
	return p, nil
}

// ErrNoEnricher is returned by Check when Build has not produced a service.
var ErrNoEnricher = errors.New("enrichment service not assembled")

// Check reports whether the components are usable.
func (c *Components) Check() error {
	if c == nil || c.Enricher == nil {
		return ErrNoEnricher
	}
	return nil
}
