package routing

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/rhobro/dr-pings-booty/internal/geo"
)

// Cache defaults.
const (
	DefaultCacheTTL        = 5 * time.Minute
	DefaultCacheGridSize   = 0.0001 // roughly 11 m of latitude
	DefaultCleanupInterval = 5 * time.Minute
)

// ServiceConfig configures a Service. Zero durations and grid size take the
// defaults above.
type ServiceConfig struct {
	Provider Provider
	Logger   zerolog.Logger

	// CacheTTL is how long a route answer is served without asking the engine.
	CacheTTL time.Duration

	// CacheGridSize is the cell size in degrees. Requests whose coordinates
	// fall in the same cells, with equal preferences, share an entry.
	CacheGridSize float64

	CleanupInterval time.Duration
}

// Service is a Provider that caches another Provider's answers on a
// coordinate grid. Concurrent misses for the same key share one engine call.
// Engine errors always reach the caller; expired answers are never served.
type Service struct {
	provider Provider
	logger   zerolog.Logger
	cfg      ServiceConfig
	flight   singleflight.Group

	mu          sync.RWMutex
	entries     map[string]cacheEntry
	lastCleanup time.Time
}

type cacheEntry struct {
	response  *RouteResponse
	fetchedAt time.Time
}

// NewService wraps cfg.Provider with a route cache.
func NewService(cfg ServiceConfig) *Service {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.CacheGridSize == 0 {
		cfg.CacheGridSize = DefaultCacheGridSize
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	return &Service{
		provider:    cfg.Provider,
		logger:      cfg.Logger,
		cfg:         cfg,
		entries:     make(map[string]cacheEntry),
		lastCleanup: time.Now(),
	}
}

// Name returns the name of the underlying provider.
func (s *Service) Name() string {
	return s.provider.Name()
}

// Route validates the coordinates, then answers from the cache or the engine.
func (s *Service) Route(ctx context.Context, req RouteRequest) (*RouteResponse, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	key := s.cacheKey(req)
	if entry, ok := s.lookup(key); ok && s.fresh(entry, time.Now()) {
		s.logger.Debug().Str("cache_key", key).Msg("routing cache hit")
		return entry.response, nil
	}

	v, err, shared := s.flight.Do(key, func() (any, error) {
		return s.fetch(ctx, req, key)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug().Str("cache_key", key).Msg("joined in-flight route request")
	}
	return v.(*RouteResponse), nil
}

func (s *Service) validate(req RouteRequest) error {
	if len(req.Coordinates) == 0 {
		return &Error{
			Provider: s.provider.Name(),
			Code:     "NO_COORDINATES",
			Message:  "at least one coordinate is required",
			Err:      ErrInvalidCoordinates,
		}
	}
	for i, c := range req.Coordinates {
		if c.Validate() != nil {
			return &Error{
				Provider: s.provider.Name(),
				Code:     "INVALID_COORDINATE",
				Message:  fmt.Sprintf("coordinate %d is invalid", i),
				Err:      ErrInvalidCoordinates,
			}
		}
	}
	return nil
}

func (s *Service) fetch(ctx context.Context, req RouteRequest, key string) (*RouteResponse, error) {
	// A flight that finished between our lookup and Do has already stored.
	if entry, ok := s.lookup(key); ok && s.fresh(entry, time.Now()) {
		return entry.response, nil
	}

	log := s.logger.With().
		Str("provider", s.provider.Name()).
		Int("coordinate_count", len(req.Coordinates)).
		Logger()

	resp, err := s.provider.Route(ctx, req)
	if err != nil {
		log.Error().Err(err).Msg("route request failed")
		return nil, err
	}

	// Empty answers are not cached so the next request asks again.
	if len(resp.Routes) > 0 {
		s.store(key, resp)
		log.Debug().Int("route_count", len(resp.Routes)).Msg("cached routes")
	}
	return resp, nil
}

func (s *Service) lookup(key string) (cacheEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

func (s *Service) fresh(e cacheEntry, now time.Time) bool {
	return now.Sub(e.fetchedAt) < s.cfg.CacheTTL
}

func (s *Service) store(key string, resp *RouteResponse) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = cacheEntry{response: resp, fetchedAt: now}

	if now.Sub(s.lastCleanup) < s.cfg.CleanupInterval {
		return
	}
	s.lastCleanup = now
	for k, e := range s.entries {
		if !s.fresh(e, now) {
			delete(s.entries, k)
		}
	}
}

// cacheKey quantizes every coordinate to the grid, in order, and appends the
// preferences: "{lat},{lon}|{lat},{lon}#g=...".
func (s *Service) cacheKey(req RouteRequest) string {
	var b strings.Builder
	for i, c := range req.Coordinates {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(s.cell(c.Lat))
		b.WriteByte(',')
		b.WriteString(s.cell(c.Lon))
	}

	p := req.Preferences
	fmt.Fprintf(&b, "#g=%g,h=%g,t=%d,u=%t,l=%t,r=%t,rt=%t,o=%s",
		p.GreenPreference, p.HillsPreference, int(p.TargetDistance),
		p.AvoidUnsafe, p.AvoidUnlit, p.AvoidRepetition, p.Roundtrip, p.Output)
	return b.String()
}

func (s *Service) cell(v float64) string {
	return strconv.FormatInt(int64(math.Floor(v/s.cfg.CacheGridSize)), 10)
}

// Coordinates converts coordinates to the engines' [lon, lat] order.
func Coordinates(cs []geo.Coordinate) [][]float64 {
	out := make([][]float64, len(cs))
	for i, c := range cs {
		out[i] = []float64{c.Lon, c.Lat}
	}
	return out
}

var _ Provider = (*Service)(nil)
