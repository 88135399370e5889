package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("drpings-api")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, 30, cfg.App.EnrichRateLimit)
	assert.Equal(t, 50, cfg.App.DefaultSearchRadiusM)
	assert.Equal(t, GeocoderNominatim, cfg.Geocoder.Provider)
	assert.Equal(t, 1100*time.Millisecond, cfg.Geocoder.Interval)
	assert.Equal(t, 20*time.Second, cfg.Geocoder.Timeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Features.Interval)
	assert.Equal(t, 30*time.Second, cfg.Features.Timeout)
	assert.Equal(t, RoutingTrailrouter, cfg.Routing.Provider)
	assert.Equal(t, 0.0001, cfg.Routing.CacheGrid)
	assert.Equal(t, BackendMemory, cfg.Cache.Backend)
	assert.Equal(t, BackendSQLite, cfg.History.Backend)
	assert.Equal(t, "drpings-api-jobs", cfg.Worker.SubscriptionID)
	assert.Empty(t, cfg.Events.NATSURL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DRPINGS_APP_PORT", "9090")
	t.Setenv("DRPINGS_ROUTING_PROVIDER", "openrouteservice")
	t.Setenv("DRPINGS_ROUTING_API_KEY", "ors-key")
	t.Setenv("DRPINGS_GEOCODER_INTERVAL", "2s")
	t.Setenv("DRPINGS_EVENTS_NATS_URL", "nats://localhost:4222")

	cfg, err := Load("drpings-api")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, RoutingOpenRouteService, cfg.Routing.Provider)
	assert.Equal(t, "ors-key", cfg.Routing.APIKey)
	assert.Equal(t, 2*time.Second, cfg.Geocoder.Interval)
	assert.Equal(t, "nats://localhost:4222", cfg.Events.NATSURL)
}

func TestLoad_DotEnvAndConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
history:
  backend: memory
cache:
  backend: valkey
  valkey_addr: cache:6379
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DRPINGS_GEOCODER_PROVIDER=googlemaps\nDRPINGS_GEOCODER_API_KEY=maps-key\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("DRPINGS_GEOCODER_PROVIDER")
		os.Unsetenv("DRPINGS_GEOCODER_API_KEY")
	})

	cfg, err := Load("drpings-worker")
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.History.Backend)
	assert.Equal(t, BackendValkey, cfg.Cache.Backend)
	assert.Equal(t, "cache:6379", cfg.Cache.ValkeyAddr)
	assert.Equal(t, GeocoderGoogleMaps, cfg.Geocoder.Provider)
	assert.Equal(t, "maps-key", cfg.Geocoder.APIKey)
}

func validConfig() Config {
	return Config{
		App:      AppConfig{Port: 8080, EnrichRateLimit: 30, DefaultSearchRadiusM: 50},
		Geocoder: GeocoderConfig{Provider: GeocoderNominatim, Interval: 1100 * time.Millisecond},
		Features: FeaturesConfig{Interval: 100 * time.Millisecond},
		Routing:  RoutingConfig{Provider: RoutingTrailrouter},
		Cache:    CacheConfig{Backend: BackendMemory},
		History:  HistoryConfig{Backend: BackendMemory},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.App.Port = 70000 }, wantErr: "app.port"},
		{name: "googlemaps without key", mutate: func(c *Config) { c.Geocoder.Provider = GeocoderGoogleMaps }, wantErr: "geocoder.api_key"},
		{name: "unknown geocoder", mutate: func(c *Config) { c.Geocoder.Provider = "bing" }, wantErr: "geocoder.provider"},
		{name: "ors without key", mutate: func(c *Config) { c.Routing.Provider = RoutingOpenRouteService }, wantErr: "routing.api_key"},
		{name: "unknown cache", mutate: func(c *Config) { c.Cache.Backend = "redis" }, wantErr: "cache.backend"},
		{name: "postgres without url", mutate: func(c *Config) { c.History.Backend = BackendPostgres }, wantErr: "history.postgres_url"},
		{name: "zero interval", mutate: func(c *Config) { c.Geocoder.Interval = 0 }, wantErr: "geocoder.interval"},
		{name: "nominatim faster than 1.1s", mutate: func(c *Config) { c.Geocoder.Interval = time.Second }, wantErr: "geocoder.interval must be at least 1.1s"},
		{name: "googlemaps may go faster", mutate: func(c *Config) {
			c.Geocoder.Provider = GeocoderGoogleMaps
			c.Geocoder.APIKey = "maps-key"
			c.Geocoder.Interval = 100 * time.Millisecond
		}},
		{name: "overpass faster than 100ms", mutate: func(c *Config) { c.Features.Interval = time.Nanosecond }, wantErr: "features.interval must be at least 100ms"},
		{name: "zero features interval", mutate: func(c *Config) { c.Features.Interval = 0 }, wantErr: "features.interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_RejectsTightIntervals(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DRPINGS_GEOCODER_INTERVAL", "10ms")
	t.Setenv("DRPINGS_FEATURES_INTERVAL", "1ns")

	_, err := Load("drpings-test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geocoder.interval")
	assert.Contains(t, err.Error(), "features.interval")
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.App.Port = 0
	cfg.Routing.Provider = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app.port")
	assert.Contains(t, err.Error(), "routing.provider")
}
