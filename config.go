package contentgw

import (
	"fmt"
	"time"

	"github.com/connectlist/contentgw/internal/cache"
	"github.com/connectlist/contentgw/internal/durable"
)

// Config holds the configuration for a contentgw Service and its server.
type Config struct {
	// Server configures the HTTP surface (cmd/contentgw).
	Server ServerConfig `json:"server" yaml:"server"`
	// Cache configures the hot and durable tiers.
	Cache CacheConfig `json:"cache" yaml:"cache"`
	// Providers lists the upstream metadata APIs to register.
	Providers []ProviderConfig `json:"providers" yaml:"providers"`
	// Logging overrides LOG_LEVEL / LOG_FORMAT when set.
	Logging LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `json:"port,omitempty" yaml:"port,omitempty"`
	CORSOrigins []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`
	// RequestsPerMinute is the inbound per-IP limit. Zero disables it.
	RequestsPerMinute int `json:"requests_per_minute,omitempty" yaml:"requests_per_minute,omitempty"`
	// SessionSecret is the HS256 key session tokens are signed with. Empty
	// disables session checks.
	SessionSecret string `json:"session_secret,omitempty" yaml:"session_secret,omitempty"`
}

// CacheConfig configures both cache tiers.
type CacheConfig struct {
	Hot     HotConfig     `json:"hot" yaml:"hot"`
	Durable DurableConfig `json:"durable" yaml:"durable"`
}

// HotConfig configures the in-process tier.
type HotConfig struct {
	Capacity int    `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	TTL      string `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// DurableBackend selects the durable tier store.
type DurableBackend string

// DurableBackend constants define the supported durable stores.
const (
	BackendSQLite   DurableBackend = "sqlite"
	BackendPostgres DurableBackend = "postgres"
	BackendBadger   DurableBackend = "badger"
	BackendNone     DurableBackend = "none"
)

// DurableConfig configures the durable tier.
type DurableConfig struct {
	Backend DurableBackend `json:"backend,omitempty" yaml:"backend,omitempty"`
	// DSN is a sqlite file, a postgres connection string, or a badger
	// directory depending on Backend.
	DSN     string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	TTL     string `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// ProviderConfig configures one upstream provider.
type ProviderConfig struct {
	// Name is one of tmdb, rawg, googlebooks, youtube.
	Name string `json:"name" yaml:"name"`
	// APIKey is the API key, or for tmdb the v4 read access token.
	APIKey  string `json:"api_key" yaml:"api_key"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// RateLimit throttles outbound calls (optional).
	RateLimit *RateLimitConfig `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
	// CircuitBreaker overrides the default breaker settings (optional).
	CircuitBreaker *CircuitBreakerConfig `json:"circuit_breaker,omitempty" yaml:"circuit_breaker,omitempty"`
}

// RateLimitConfig defines outbound throttling for a provider.
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `json:"burst,omitempty" yaml:"burst,omitempty"`
}

// CircuitBreakerConfig defines circuit-breaker thresholds for a provider.
type CircuitBreakerConfig struct {
	FailureThreshold int    `json:"failure_threshold,omitempty" yaml:"failure_threshold,omitempty"`
	SuccessThreshold int    `json:"success_threshold,omitempty" yaml:"success_threshold,omitempty"`
	Timeout          string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// LoggingConfig selects the log level and format.
type LoggingConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// DefaultPort is the HTTP port used when none is configured.
const DefaultPort = 8080

// DefaultConfig returns a Config with every default filled in and no
// providers.
func DefaultConfig() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Cache.Hot.Capacity == 0 {
		c.Cache.Hot.Capacity = cache.DefaultCapacity
	}
	if c.Cache.Hot.TTL == "" {
		c.Cache.Hot.TTL = cache.DefaultTTL.String()
	}
	if c.Cache.Durable.Backend == "" {
		c.Cache.Durable.Backend = BackendSQLite
	}
	if c.Cache.Durable.TTL == "" {
		c.Cache.Durable.TTL = durable.DefaultTTL.String()
	}
	if c.Cache.Durable.Timeout == "" {
		c.Cache.Durable.Timeout = durable.DefaultTimeout.String()
	}
}

// Provider returns the config for the named provider, if present.
func (c Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// tierDurations holds the parsed cache durations.
type tierDurations struct {
	hotTTL         time.Duration
	durableTTL     time.Duration
	durableTimeout time.Duration
}

func (c CacheConfig) durations() (tierDurations, error) {
	var d tierDurations
	var err error
	if d.hotTTL, err = parseDuration("cache.hot.ttl", c.Hot.TTL, cache.DefaultTTL); err != nil {
		return d, err
	}
	if d.durableTTL, err = parseDuration("cache.durable.ttl", c.Durable.TTL, durable.DefaultTTL); err != nil {
		return d, err
	}
	if d.durableTimeout, err = parseDuration("cache.durable.timeout", c.Durable.Timeout, durable.DefaultTimeout); err != nil {
		return d, err
	}
	return d, nil
}

// parseDuration parses s, returning def for an empty string. Zero and
// negative durations are rejected.
func parseDuration(field, s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: duration must be positive, got %q", field, s)
	}
	return d, nil
}
