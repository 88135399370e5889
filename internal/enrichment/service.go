package enrichment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rhobro/dr-pings-booty/internal/events"
	"github.com/rhobro/dr-pings-booty/internal/features"
	"github.com/rhobro/dr-pings-booty/internal/geo"
	"github.com/rhobro/dr-pings-booty/internal/geocoding"
	"github.com/rhobro/dr-pings-booty/internal/history"
	"github.com/rhobro/dr-pings-booty/internal/poi"
	"github.com/rhobro/dr-pings-booty/internal/routing"
	"github.com/rhobro/dr-pings-booty/internal/telemetry"
)

const tracerName = "github.com/rhobro/dr-pings-booty/internal/enrichment"

// ServiceConfig holds configuration for the enrichment service.
type ServiceConfig struct {
	// Geocoder resolves place names and road names (required).
	Geocoder geocoding.Geocoder

	// Features finds features near a waypoint (required).
	Features features.Querier

	// Router plans the base route (required).
	Router routing.Provider

	// History records successful enrichments (optional).
	History history.Repository

	// Events is notified of successful enrichments (optional).
	Events events.Publisher

	// DefaultRadiusMeters applies when a request has no radius (optional, defaults to 50).
	DefaultRadiusMeters int

	// Logger for service operations.
	Logger zerolog.Logger

	// Now overrides the clock used for result timestamps (optional).
	Now func() time.Time
}

// Service runs enrichment calls. Within one call, routes and waypoints are
// processed sequentially in order.
type Service struct {
	geocoder geocoding.Geocoder
	features features.Querier
	router   routing.Provider
	history  history.Repository
	events   events.Publisher
	radius   int
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a new enrichment service.
func NewService(cfg ServiceConfig) *Service {
	radius := cfg.DefaultRadiusMeters
	if radius <= 0 {
		radius = DefaultSearchRadiusMeters
	}

	publisher := cfg.Events
	if publisher == nil {
		publisher = events.Noop{}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		geocoder: cfg.Geocoder,
		features: cfg.Features,
		router:   cfg.Router,
		history:  cfg.History,
		events:   publisher,
		radius:   radius,
		logger:   cfg.Logger,
		now:      now,
	}
}

// Enrich resolves the request's locations, plans a route through them and
// annotates every waypoint of every returned route.
//
// It fails with ErrInsufficientWaypoints when fewer than two locations
// resolve and with ErrNoRoute when routing fails. Feature and reverse
// geocoding failures only leave the affected waypoint without results.
func (s *Service) Enrich(ctx context.Context, req Request) (_ *Result, err error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "enrichment.Enrich",
		attribute.Int("location_count", len(req.Locations)))
	defer func() { telemetry.EndSpan(span, err) }()

	radius := req.SearchRadiusMeters
	if radius <= 0 {
		radius = s.radius
	}

	resolved, skipped, err := s.resolve(ctx, req.Locations)
	if err != nil {
		return nil, err
	}
	if len(resolved) < 2 {
		s.log(ctx).Info().
			Int("requested", len(req.Locations)).
			Int("resolved", len(resolved)).
			Msg("not enough locations to plan a route")
		return nil, fmt.Errorf("%w: resolved %d of %d locations", ErrInsufficientWaypoints, len(resolved), len(req.Locations))
	}

	resp, err := s.router.Route(ctx, routing.RouteRequest{
		Coordinates: resolved,
		Preferences: req.Preferences,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.log(ctx).Warn().Err(err).Str("provider", s.router.Name()).Msg("routing failed")
		return nil, fmt.Errorf("%w: %w", ErrNoRoute, err)
	}
	if resp == nil || len(resp.Routes) == 0 {
		s.log(ctx).Warn().Str("provider", s.router.Name()).Msg("routing returned no routes")
		return nil, ErrNoRoute
	}

	result := &Result{
		ID:        history.NewID(),
		CreatedAt: s.now().UTC(),
		Provider:  resp.Provider,
		Routes:    make([]EnrichedRoute, 0, len(resp.Routes)),
		Resolved:  resolved,
		Skipped:   skipped,
		Metadata:  resp.Metadata,
	}

	for i, route := range resp.Routes {
		enriched, err := s.enrichRoute(ctx, route, radius)
		if err != nil {
			return nil, err
		}
		s.log(ctx).Debug().
			Int("route_index", i).
			Int("waypoint_count", len(enriched.Waypoints)).
			Msg("route enriched")
		result.Routes = append(result.Routes, enriched)
	}

	span.SetAttributes(
		attribute.String("result.id", result.ID),
		attribute.Int("route_count", len(result.Routes)),
	)
	s.record(ctx, req, result)

	return result, nil
}

// log prefers the request-scoped logger carried by ctx.
func (s *Service) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.logger
}

// resolve turns locations into coordinates, forward geocoding place names.
// Unresolvable locations are skipped.
func (s *Service) resolve(ctx context.Context, locations []Location) ([]geo.Coordinate, []SkippedLocation, error) {
	resolved := make([]geo.Coordinate, 0, len(locations))
	skipped := []SkippedLocation{}

	for _, loc := range locations {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		if loc.Coordinate != nil {
			if err := loc.Coordinate.Validate(); err != nil {
				s.log(ctx).Info().Err(err).Str("location", loc.String()).Msg("skipping invalid coordinate")
				skipped = append(skipped, SkippedLocation{Location: loc.String(), Reason: err.Error()})
				continue
			}
			resolved = append(resolved, *loc.Coordinate)
			continue
		}

		c, err := s.geocoder.Forward(ctx, loc.Place)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, ctxErr
			}
			reason := "not found"
			if !errors.Is(err, geocoding.ErrNotFound) {
				reason = "geocoding failed"
				s.log(ctx).Warn().Err(err).Str("place", loc.Place).Msg("forward geocoding failed")
			} else {
				s.log(ctx).Info().Str("place", loc.Place).Msg("place not found, skipping")
			}
			skipped = append(skipped, SkippedLocation{Location: loc.Place, Reason: reason})
			continue
		}
		resolved = append(resolved, c)
	}

	return resolved, skipped, nil
}

func (s *Service) enrichRoute(ctx context.Context, route routing.Route, radius int) (EnrichedRoute, error) {
	out := EnrichedRoute{
		Route:     route,
		Waypoints: make([]EnrichedWaypoint, 0, len(route.Waypoints)),
		Summary:   []string{},
	}

	for idx, tuple := range route.Waypoints {
		if len(tuple) < 2 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return EnrichedRoute{}, err
		}

		wp := s.enrichWaypoint(ctx, idx, tuple, radius)
		out.Waypoints = append(out.Waypoints, wp)
		if line := wp.SummaryLine(); line != "" {
			out.Summary = append(out.Summary, line)
		}
	}

	return out, nil
}

// enrichWaypoint finds POIs near one waypoint, falling back to the road
// name. Upstream failures leave the waypoint without results.
func (s *Service) enrichWaypoint(ctx context.Context, idx int, tuple []float64, radius int) EnrichedWaypoint {
	wp := EnrichedWaypoint{
		Coordinates: append([]float64(nil), tuple...),
		NearbyPOIs:  []poi.RankedPOI{},
		index:       idx,
	}

	c, err := geo.NewCoordinate(tuple[1], tuple[0])
	if err != nil {
		s.log(ctx).Warn().Err(err).Int("waypoint_index", idx).Msg("waypoint has invalid coordinate")
		return wp
	}

	found, err := s.features.Query(ctx, c, radius)
	if err != nil {
		s.log(ctx).Warn().Err(err).
			Int("waypoint_index", idx).
			Str("provider", s.features.Name()).
			Msg("feature query failed, falling back to road name")
	} else if ranked := poi.Rank(c, poi.Candidates(found), radius); len(ranked) > 0 {
		wp.NearbyPOIs = ranked
		return wp
	}

	road, err := s.geocoder.Reverse(ctx, c)
	if err != nil {
		if !errors.Is(err, geocoding.ErrNotFound) {
			s.log(ctx).Warn().Err(err).
				Int("waypoint_index", idx).
				Str("provider", s.geocoder.Name()).
				Msg("reverse geocoding failed")
		}
		return wp
	}
	wp.RoadName = &road
	return wp
}

// record appends the result to history and publishes an event. Failures
// are logged only.
func (s *Service) record(ctx context.Context, req Request, result *Result) {
	stats := result.Stats()
	summary := result.Summary()
	if summary == nil {
		summary = []string{}
	}

	if s.history != nil {
		locations := make([]string, 0, len(req.Locations))
		for _, loc := range req.Locations {
			locations = append(locations, loc.String())
		}

		rec := &history.Record{
			ID:             result.ID,
			Provider:       result.Provider,
			Locations:      locations,
			RouteCount:     len(result.Routes),
			WaypointCount:  stats.Waypoints,
			POICount:       stats.POIs,
			RoadCount:      stats.Roads,
			DistanceMeters: result.Routes[0].Route.DistanceMeters,
			Summary:        summary,
		}
		if err := s.history.Append(ctx, rec); err != nil {
			s.log(ctx).Error().Err(err).Str("id", result.ID).Msg("failed to record route history")
		}
	}

	event := &events.RouteEnriched{
		ID:            result.ID,
		CreatedAt:     result.CreatedAt,
		Provider:      result.Provider,
		RouteCount:    len(result.Routes),
		WaypointCount: stats.Waypoints,
		POICount:      stats.POIs,
		RoadCount:     stats.Roads,
		Summary:       summary,
	}
	if err := s.events.PublishRouteEnriched(ctx, event); err != nil {
		s.log(ctx).Error().Err(err).Str("id", result.ID).Msg("failed to publish route enriched event")
	}
}
