// Package config loads service configuration from defaults, an optional
// config.yaml, a .env file and DRPINGS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rhobro/dr-pings-booty/internal/features/overpass"
	"github.com/rhobro/dr-pings-booty/internal/geocoding/nominatim"
)

// EnvPrefix is the prefix of environment overrides: DRPINGS_ROUTING_PROVIDER
// sets routing.provider.
const EnvPrefix = "DRPINGS"

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Geocoder  GeocoderConfig  `mapstructure:"geocoder"`
	Features  FeaturesConfig  `mapstructure:"features"`
	Routing   RoutingConfig   `mapstructure:"routing"`
	Cache     CacheConfig     `mapstructure:"cache"`
	History   HistoryConfig   `mapstructure:"history"`
	Events    EventsConfig    `mapstructure:"events"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

type AppConfig struct {
	Env                  string        `mapstructure:"env"`
	Port                 int           `mapstructure:"port"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`
	EnrichRateLimit      int           `mapstructure:"enrich_rate_limit"`
	DefaultSearchRadiusM int           `mapstructure:"default_search_radius_m"`
	RequireTLS           bool          `mapstructure:"require_tls"`
}

// GeocoderConfig selects and configures the geocoding provider.
type GeocoderConfig struct {
	Provider  string        `mapstructure:"provider"`
	BaseURL   string        `mapstructure:"base_url"`
	UserAgent string        `mapstructure:"user_agent"`
	APIKey    string        `mapstructure:"api_key"`
	Interval  time.Duration `mapstructure:"interval"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type FeaturesConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RoutingConfig selects and configures the routing engine.
type RoutingConfig struct {
	Provider  string        `mapstructure:"provider"`
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Profile   string        `mapstructure:"profile"`
	Timeout   time.Duration `mapstructure:"timeout"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	CacheGrid float64       `mapstructure:"cache_grid"`
}

type CacheConfig struct {
	Backend     string        `mapstructure:"backend"`
	ValkeyAddr  string        `mapstructure:"valkey_addr"`
	Prefix      string        `mapstructure:"prefix"`
	LookupTTL   time.Duration `mapstructure:"lookup_ttl"`
	FeaturesTTL time.Duration `mapstructure:"features_ttl"`
}

type HistoryConfig struct {
	Backend     string `mapstructure:"backend"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresURL string `mapstructure:"postgres_url"`
	MaxConns    int    `mapstructure:"max_conns"`
}

// EventsConfig configures event publishing. An empty NATSURL disables it.
type EventsConfig struct {
	NATSURL string `mapstructure:"nats_url"`
}

type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

type WorkerConfig struct {
	ProjectID      string        `mapstructure:"project_id"`
	SubscriptionID string        `mapstructure:"subscription_id"`
	HealthPort     int           `mapstructure:"health_port"`
	JobTimeout     time.Duration `mapstructure:"job_timeout"`
}

// Supported provider and backend names.
const (
	GeocoderNominatim  = "nominatim"
	GeocoderGoogleMaps = "googlemaps"

	RoutingTrailrouter      = "trailrouter"
	RoutingOpenRouteService = "openrouteservice"

	BackendMemory   = "memory"
	BackendValkey   = "valkey"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.read_timeout", 15*time.Second)
	v.SetDefault("app.write_timeout", 5*time.Minute)
	v.SetDefault("app.enrich_rate_limit", 30)
	v.SetDefault("app.default_search_radius_m", 50)
	v.SetDefault("app.require_tls", false)

	v.SetDefault("geocoder.provider", GeocoderNominatim)
	v.SetDefault("geocoder.base_url", "")
	v.SetDefault("geocoder.user_agent", "DRPingRouteEnricher/1.0")
	v.SetDefault("geocoder.api_key", "")
	v.SetDefault("geocoder.interval", 1100*time.Millisecond)
	v.SetDefault("geocoder.timeout", 20*time.Second)

	v.SetDefault("features.base_url", "")
	v.SetDefault("features.interval", 100*time.Millisecond)
	v.SetDefault("features.timeout", 30*time.Second)

	v.SetDefault("routing.provider", RoutingTrailrouter)
	v.SetDefault("routing.base_url", "")
	v.SetDefault("routing.api_key", "")
	v.SetDefault("routing.profile", "foot-walking")
	v.SetDefault("routing.timeout", 60*time.Second)
	v.SetDefault("routing.cache_ttl", 10*time.Minute)
	v.SetDefault("routing.cache_grid", 0.0001)

	v.SetDefault("cache.backend", BackendMemory)
	v.SetDefault("cache.valkey_addr", "localhost:6379")
	v.SetDefault("cache.prefix", "drpings:")
	v.SetDefault("cache.lookup_ttl", 24*time.Hour)
	v.SetDefault("cache.features_ttl", 6*time.Hour)

	v.SetDefault("history.backend", BackendSQLite)
	v.SetDefault("history.sqlite_path", "drpings.db")
	v.SetDefault("history.postgres_url", "")
	v.SetDefault("history.max_conns", 10)

	v.SetDefault("events.nats_url", "")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")

	v.SetDefault("worker.project_id", "")
	v.SetDefault("worker.subscription_id", service+"-jobs")
	v.SetDefault("worker.health_port", 8081)
	v.SetDefault("worker.job_timeout", 5*time.Minute)
}

// Load reads configuration for the named service. A missing .env or
// config.yaml is not an error.
func Load(service string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, service)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Sprintf("app.port must be 1-65535, got %d", c.App.Port))
	}
	if c.App.EnrichRateLimit <= 0 {
		errs = append(errs, "app.enrich_rate_limit must be positive")
	}
	if c.App.DefaultSearchRadiusM <= 0 {
		errs = append(errs, "app.default_search_radius_m must be positive")
	}

	switch c.Geocoder.Provider {
	case GeocoderNominatim:
	case GeocoderGoogleMaps:
		if c.Geocoder.APIKey == "" {
			errs = append(errs, "geocoder.api_key is required for googlemaps")
		}
	default:
		errs = append(errs, fmt.Sprintf("geocoder.provider must be %s or %s, got %q", GeocoderNominatim, GeocoderGoogleMaps, c.Geocoder.Provider))
	}
	switch {
	case c.Geocoder.Interval <= 0:
		errs = append(errs, "geocoder.interval must be positive")
	case c.Geocoder.Provider == GeocoderNominatim && c.Geocoder.Interval < nominatim.DefaultInterval:
		errs = append(errs, fmt.Sprintf("geocoder.interval must be at least %s for nominatim, got %s", nominatim.DefaultInterval, c.Geocoder.Interval))
	}
	if c.Features.Interval < overpass.DefaultInterval {
		errs = append(errs, fmt.Sprintf("features.interval must be at least %s, got %s", overpass.DefaultInterval, c.Features.Interval))
	}

	switch c.Routing.Provider {
	case RoutingTrailrouter:
	case RoutingOpenRouteService:
		if c.Routing.APIKey == "" {
			errs = append(errs, "routing.api_key is required for openrouteservice")
		}
	default:
		errs = append(errs, fmt.Sprintf("routing.provider must be %s or %s, got %q", RoutingTrailrouter, RoutingOpenRouteService, c.Routing.Provider))
	}

	switch c.Cache.Backend {
	case BackendMemory:
	case BackendValkey:
		if c.Cache.ValkeyAddr == "" {
			errs = append(errs, "cache.valkey_addr is required for valkey")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache.backend must be %s or %s, got %q", BackendMemory, BackendValkey, c.Cache.Backend))
	}

	switch c.History.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.History.SQLitePath == "" {
			errs = append(errs, "history.sqlite_path is required for sqlite")
		}
	case BackendPostgres:
		if c.History.PostgresURL == "" {
			errs = append(errs, "history.postgres_url is required for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("history.backend must be %s, %s or %s, got %q", BackendMemory, BackendSQLite, BackendPostgres, c.History.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
