package resilience_test

import (
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhobro/dr-pings-booty/internal/provider/resilience"
)

func register(registry *resilience.Registry, names ...string) {
	for _, name := range names {
		_ = resilience.NewClient(resilience.UpstreamClientConfig(name, time.Second, registry))
	}
}

// tripped registers name with a breaker that opens on its first failure and
// fails one call through it.
func tripped(t *testing.T, registry *resilience.Registry, name string) {
	t.Helper()
	cb := resilience.CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 1 },
	}
	client := resilience.NewClient(resilience.ClientConfig{
		Name:           name,
		CircuitBreaker: &cb,
		Registry:       registry,
		Transport:      failingTransport{},
	})
	_, err := get(t, client, "http://"+name+".invalid/")
	require.Error(t, err)
	require.Equal(t, gobreaker.StateOpen, client.CircuitBreakerState())
}

func TestRegistry_RegisterAndUnregister(t *testing.T) {
	registry := resilience.NewRegistry()
	register(registry, "nominatim")

	health := registry.GetHealth("nominatim")
	require.NotNil(t, health)
	assert.Equal(t, gobreaker.StateClosed, health.CircuitState)
	assert.True(t, health.IsHealthy())
	assert.Equal(t, 1, registry.ProviderCount())

	registry.Unregister("nominatim")
	assert.Nil(t, registry.GetHealth("nominatim"))
	assert.Zero(t, registry.ProviderCount())
}

func TestRegistry_RecordSuccessAndFailure(t *testing.T) {
	registry := resilience.NewRegistry()
	register(registry, "overpass")

	registry.RecordSuccess("overpass")
	registry.RecordFailure("overpass", assert.AnError)

	health := registry.GetHealth("overpass")
	require.NotNil(t, health)
	require.NotNil(t, health.LastSuccessAt)
	require.NotNil(t, health.LastFailureAt)
	assert.WithinDuration(t, time.Now(), *health.LastFailureAt, time.Second)
	assert.Equal(t, assert.AnError.Error(), health.LastError)
}

func TestRegistry_UnknownNamesIgnored(t *testing.T) {
	registry := resilience.NewRegistry()

	registry.RecordSuccess("osrm")
	registry.RecordFailure("osrm", assert.AnError)

	assert.Nil(t, registry.GetHealth("osrm"))
	assert.Empty(t, registry.GetProviderNames())
}

func TestRegistry_SortedViews(t *testing.T) {
	registry := resilience.NewRegistry()
	register(registry, "trailrouter", "nominatim", "overpass")

	assert.Equal(t, []string{"nominatim", "overpass", "trailrouter"}, registry.GetProviderNames())

	var names []string
	for _, h := range registry.GetAllHealth() {
		names = append(names, h.Name)
	}
	assert.Equal(t, []string{"nominatim", "overpass", "trailrouter"}, names)
}

func TestRegistry_DegradedAndAllOpen(t *testing.T) {
	registry := resilience.NewRegistry()
	assert.False(t, registry.AllOpen(), "empty registry is not all open")

	register(registry, "nominatim")
	tripped(t, registry, "overpass")

	assert.Equal(t, []string{"overpass"}, registry.Degraded())
	assert.False(t, registry.AllOpen())

	health := registry.GetHealth("overpass")
	require.NotNil(t, health)
	assert.True(t, health.IsUnhealthy())
	assert.Contains(t, health.LastError, "connection refused")

	registry.Unregister("nominatim")
	assert.True(t, registry.AllOpen())
}

func TestProviderHealth_States(t *testing.T) {
	tests := []struct {
		state                        gobreaker.State
		healthy, degraded, unhealthy bool
	}{
		{gobreaker.StateClosed, true, false, false},
		{gobreaker.StateHalfOpen, false, true, false},
		{gobreaker.StateOpen, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			h := &resilience.ProviderHealth{CircuitState: tt.state}
			assert.Equal(t, tt.healthy, h.IsHealthy())
			assert.Equal(t, tt.degraded, h.IsDegraded())
			assert.Equal(t, tt.unhealthy, h.IsUnhealthy())
		})
	}
}
