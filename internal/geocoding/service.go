package geocoding

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rhobro/dr-pings-booty/internal/cache"
	"github.com/rhobro/dr-pings-booty/internal/geo"
)

// ReverseCellLevel is the s2 cell level used to share reverse lookups
// between nearby coordinates (about 10 m).
const ReverseCellLevel = 20

// ServiceConfig holds configuration for the geocoding service.
type ServiceConfig struct {
	// Provider is the geocoding provider.
	Provider Geocoder

	// Cache stores successful lookups. Optional.
	Cache cache.Store

	// Logger for service operations.
	Logger zerolog.Logger

	// CacheTTL is how long lookups are cached (default: 24 hours).
	CacheTTL time.Duration
}

// Service wraps a Geocoder with a lookup cache. Failures are never cached.
type Service struct {
	provider Geocoder
	cache    cache.Store
	logger   zerolog.Logger
	cacheTTL time.Duration
}

// NewService creates a new geocoding service.
func NewService(cfg ServiceConfig) *Service {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 24 * time.Hour
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

// Forward resolves a place name, consulting the cache first.
func (s *Service) Forward(ctx context.Context, place string) (geo.Coordinate, error) {
	key := "geocode:forward:" + strings.ToLower(strings.TrimSpace(place))

	var c geo.Coordinate
	if s.lookup(ctx, key, &c) {
		return c, nil
	}

	c, err := s.provider.Forward(ctx, place)
	if err != nil {
		return geo.Coordinate{}, err
	}

	s.store(ctx, key, c)
	return c, nil
}

// Reverse resolves a road name, consulting the cache first.
func (s *Service) Reverse(ctx context.Context, c geo.Coordinate) (string, error) {
	key := "geocode:reverse:" + c.CellToken(ReverseCellLevel)

	var road string
	if s.lookup(ctx, key, &road) {
		return road, nil
	}

	road, err := s.provider.Reverse(ctx, c)
	if err != nil {
		return "", err
	}

	s.store(ctx, key, road)
	return road, nil
}

func (s *Service) lookup(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	ok, err := cache.GetJSON(ctx, s.cache, key, dst)
	if err != nil {
		s.logger.Warn().Err(err).Str("cache_key", key).Msg("geocoding cache read failed")
		return false
	}
	if ok {
		s.logger.Debug().Str("cache_key", key).Msg("cache hit for geocoding")
	}
	return ok
}

func (s *Service) store(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	if err := cache.SetJSON(ctx, s.cache, key, v, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("cache_key", key).Msg("geocoding cache write failed")
	}
}

var _ Geocoder = (*Service)(nil)
