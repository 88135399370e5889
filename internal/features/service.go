package features

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/rhobro/dr-pings-booty/internal/cache"
	"github.com/rhobro/dr-pings-booty/internal/geo"
)

// CellLevel is the s2 cell level used to share query results between
// nearby coordinates.
const CellLevel = 20

// ServiceConfig holds configuration for the feature service.
type ServiceConfig struct {
	// Provider is the feature database adapter.
	Provider Querier

	// Cache stores successful query results. Optional.
	Cache cache.Store

	// Logger for service operations.
	Logger zerolog.Logger

	// CacheTTL is how long results are cached (default: 6 hours).
	CacheTTL time.Duration
}

// Service wraps a Querier with a result cache keyed by (cell, radius).
type Service struct {
	provider Querier
	cache    cache.Store
	logger   zerolog.Logger
	cacheTTL time.Duration
}

// NewService creates a new feature service.
func NewService(cfg ServiceConfig) *Service {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 6 * time.Hour
	}
	return &Service{
		provider: cfg.Provider,
		cache:    cfg.Cache,
		logger:   cfg.Logger,
		cacheTTL: ttl,
	}
}

// Name returns the name of the underlying provider.
func (s *Service) Name() string {
	return s.provider.Name()
}

// Query returns features around c, consulting the cache first. Errors are
// returned as-is and never cached.
func (s *Service) Query(ctx context.Context, c geo.Coordinate, radiusMeters int) ([]RawFeature, error) {
	key := "features:" + c.CellToken(CellLevel) + ":" + strconv.Itoa(radiusMeters)

	if s.cache != nil {
		var cached []RawFeature
		ok, err := cache.GetJSON(ctx, s.cache, key, &cached)
		if err != nil {
			s.logger.Warn().Err(err).Str("cache_key", key).Msg("feature cache read failed")
		} else if ok {
			s.logger.Debug().Str("cache_key", key).Int("feature_count", len(cached)).Msg("cache hit for features")
			return cached, nil
		}
	}

	result, err := s.provider.Query(ctx, c, radiusMeters)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, key, result, s.cacheTTL); err != nil {
			s.logger.Warn().Err(err).Str("cache_key", key).Msg("feature cache write failed")
		}
	}

	return result, nil
}

var _ Querier = (*Service)(nil)
