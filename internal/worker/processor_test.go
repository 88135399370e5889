package worker_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhobro/dr-pings-booty/internal/enrichment"
	"github.com/rhobro/dr-pings-booty/internal/provider/resilience"
	"github.com/rhobro/dr-pings-booty/internal/routing"
	"github.com/rhobro/dr-pings-booty/internal/worker"
)

type fakeEnricher struct {
	mu    sync.Mutex
	calls []enrichment.Request
	errFn func(req enrichment.Request) error
}

func (f *fakeEnricher) Enrich(_ context.Context, req enrichment.Request) (*enrichment.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if f.errFn != nil {
		if err := f.errFn(req); err != nil {
			return nil, err
		}
	}
	return &enrichment.Result{ID: "rte_worker", Provider: "trailrouter"}, nil
}

func (f *fakeEnricher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newProcessor(enricher worker.Enricher, registry *resilience.Registry) *worker.Processor {
	return worker.NewProcessor(worker.ProcessorDeps{
		Config:   worker.ProcessorConfig{Concurrency: 2, JobTimeout: time.Second},
		Enricher: enricher,
		Registry: registry,
		Logger:   zerolog.Nop(),
	})
}

func TestDecide(t *testing.T) {
	unavailable := &routing.Error{Provider: "trailrouter", Code: "SERVER_503", Err: routing.ErrProviderUnavailable}

	tests := []struct {
		name string
		err  error
		want worker.Outcome
	}{
		{name: "success", err: nil, want: worker.Ack},
		{name: "insufficient waypoints", err: fmt.Errorf("%w: resolved 1 of 2 locations", enrichment.ErrInsufficientWaypoints), want: worker.Ack},
		{name: "no route found", err: fmt.Errorf("%w: %w", enrichment.ErrNoRoute, routing.ErrNoRouteFound), want: worker.Ack},
		{name: "no routes returned", err: enrichment.ErrNoRoute, want: worker.Ack},
		{name: "routing unavailable", err: fmt.Errorf("%w: %w", enrichment.ErrNoRoute, unavailable), want: worker.Nack},
		{name: "routing rate limited", err: fmt.Errorf("%w: %w", enrichment.ErrNoRoute, routing.ErrRateLimitExceeded), want: worker.Nack},
		{name: "circuit open", err: fmt.Errorf("%w: %w", enrichment.ErrNoRoute, resilience.ErrCircuitOpen), want: worker.Nack},
		{name: "job timeout", err: context.DeadlineExceeded, want: worker.Nack},
		{name: "unknown", err: errors.New("boom"), want: worker.Nack},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, worker.Decide(tt.err))
		})
	}
}

func TestProcessor_EnrichRoute(t *testing.T) {
	enricher := &fakeEnricher{}
	p := newProcessor(enricher, nil)

	outcome := p.Process(context.Background(), []byte(`{
		"job_type": "enrich_route",
		"request": {
			"locations": [{"lat": 51.5007, "lon": -0.1246}, "Tower Bridge"],
			"search_radius_m": 80,
			"preferences": {"roundtrip": true}
		}
	}`))

	assert.Equal(t, worker.Ack, outcome)
	require.Equal(t, 1, enricher.callCount())

	got := enricher.calls[0]
	assert.Equal(t, []enrichment.Location{enrichment.At(51.5007, -0.1246), enrichment.Named("Tower Bridge")}, got.Locations)
	assert.Equal(t, 80, got.SearchRadiusMeters)
	assert.True(t, got.Preferences.Roundtrip)

	m := p.GetMetrics()
	assert.Equal(t, int64(1), m.Received)
	assert.Equal(t, int64(1), m.Succeeded)
}

func TestProcessor_EnrichRoute_Outcomes(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		want         worker.Outcome
		wantTerminal int64
		wantRetried  int64
	}{
		{
			name:         "insufficient input is acked",
			err:          enrichment.ErrInsufficientWaypoints,
			want:         worker.Ack,
			wantTerminal: 1,
		},
		{
			name:         "no route is acked",
			err:          fmt.Errorf("%w: %w", enrichment.ErrNoRoute, routing.ErrNoRouteFound),
			want:         worker.Ack,
			wantTerminal: 1,
		},
		{
			name:        "upstream unavailable is nacked",
			err:         fmt.Errorf("%w: %w", enrichment.ErrNoRoute, routing.ErrProviderUnavailable),
			want:        worker.Nack,
			wantRetried: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enricher := &fakeEnricher{errFn: func(enrichment.Request) error { return tt.err }}
			p := newProcessor(enricher, nil)

			outcome := p.Process(context.Background(), []byte(`{"job_type": "enrich_route", "request": {"locations": ["A", "B"]}}`))

			assert.Equal(t, tt.want, outcome)
			m := p.GetMetrics()
			assert.Equal(t, tt.wantTerminal, m.Terminal)
			assert.Equal(t, tt.wantRetried, m.Retried)
		})
	}
}

func TestProcessor_MalformedMessages(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: `not json`},
		{name: "bad request", data: `{"job_type": "enrich_route", "request": {"locations": [42]}}`},
		{name: "unknown job type", data: `{"job_type": "provider_refresh"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enricher := &fakeEnricher{}
			p := newProcessor(enricher, nil)

			assert.Equal(t, worker.Ack, p.Process(context.Background(), []byte(tt.data)))
			assert.Zero(t, enricher.callCount())
			assert.Equal(t, int64(1), p.GetMetrics().Malformed)
		})
	}
}

func TestProcessor_EnrichBatch(t *testing.T) {
	enricher := &fakeEnricher{errFn: func(req enrichment.Request) error {
		if req.Locations[0].Place == "Nowhere" {
			return enrichment.ErrInsufficientWaypoints
		}
		return nil
	}}
	p := newProcessor(enricher, nil)

	outcome := p.Process(context.Background(), []byte(`{
		"job_type": "enrich_batch",
		"request": {"jobs": [
			{"locations": ["A", "B"]},
			{"locations": ["Nowhere", "B"]},
			{"locations": ["C", "D"]}
		]}
	}`))

	assert.Equal(t, worker.Ack, outcome)
	assert.Equal(t, 3, enricher.callCount())
	assert.Equal(t, int64(1), p.GetMetrics().Terminal)
}

func TestProcessor_EnrichBatch_RetriesOnTransientFailure(t *testing.T) {
	enricher := &fakeEnricher{errFn: func(req enrichment.Request) error {
		if req.Locations[0].Place == "C" {
			return fmt.Errorf("%w: %w", enrichment.ErrNoRoute, routing.ErrProviderUnavailable)
		}
		return nil
	}}
	p := newProcessor(enricher, nil)

	outcome := p.Process(context.Background(), []byte(`{
		"job_type": "enrich_batch",
		"request": {"jobs": [{"locations": ["A", "B"]}, {"locations": ["C", "D"]}]}
	}`))

	assert.Equal(t, worker.Nack, outcome)
	assert.Equal(t, 2, enricher.callCount())
}

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func TestProcessor_HealthCheck(t *testing.T) {
	t.Run("no providers", func(t *testing.T) {
		p := newProcessor(&fakeEnricher{}, resilience.NewRegistry())
		assert.Equal(t, worker.Nack, p.Process(context.Background(), []byte(`{"job_type": "health_check"}`)))
	})

	t.Run("healthy providers", func(t *testing.T) {
		registry := resilience.NewRegistry()
		_ = resilience.NewClient(resilience.UpstreamClientConfig("nominatim", time.Second, registry))
		p := newProcessor(&fakeEnricher{}, registry)

		assert.Equal(t, worker.Ack, p.Process(context.Background(), []byte(`{"job_type": "health_check"}`)))
	})

	t.Run("all circuits open", func(t *testing.T) {
		registry := resilience.NewRegistry()
		cbConfig := resilience.CircuitBreakerConfig{
			Name:        "overpass",
			MaxRequests: 1,
			Timeout:     time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 1 },
		}
		client := resilience.NewClient(resilience.ClientConfig{
			Name:           "overpass",
			CircuitBreaker: &cbConfig,
			Registry:       registry,
			Transport:      failingTransport{},
		})

		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://overpass.invalid/api/interpreter", http.NoBody)
		require.NoError(t, err)
		_, err = client.Do(req)
		require.Error(t, err)
		require.Equal(t, []string{"overpass"}, registry.Degraded())

		p := newProcessor(&fakeEnricher{}, registry)
		assert.Equal(t, worker.Nack, p.Process(context.Background(), []byte(`{"job_type": "health_check"}`)))
	})
}

func TestProcessor_MetricsSnapshot(t *testing.T) {
	p := newProcessor(&fakeEnricher{}, nil)
	p.Process(context.Background(), []byte(`{"job_type": "enrich_route", "request": {"locations": ["A", "B"]}}`))

	snapshot := p.MetricsSnapshot()
	assert.Equal(t, int64(1), snapshot["received"])
	assert.Equal(t, int64(1), snapshot["succeeded"])
	assert.Contains(t, snapshot, "last_job_duration")
}

func TestDefaultProcessorConfig(t *testing.T) {
	cfg := worker.DefaultProcessorConfig()
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, 5*time.Minute, cfg.JobTimeout)
}
