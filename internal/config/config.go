// Package config handles YAML configuration loading with environment variable expansion.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"go.yaml.in/yaml/v3"
)

// Config is the top-level backend configuration.
type Config struct {
	App        AppConfig       `yaml:"app"`
	Server     ServerConfig    `yaml:"server"`
	Database   DatabaseConfig  `yaml:"database"`
	Redis      RedisConfig     `yaml:"redis"`
	Cache      CacheConfig     `yaml:"cache"`
	RateLimits RateLimitConfig `yaml:"rate_limits"`
	Identity   IdentityConfig  `yaml:"identity"`
	Telemetry  TelemetryConfig `yaml:"telemetry"`
	Log        LogConfig       `yaml:"log"`
}

// AppConfig names the deployment for health output.
type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"` // "development", "staging", "production"
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	TrustProxy      bool          `yaml:"trust_proxy"` // use X-Forwarded-For for anonymous rate-limit identity
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // file path or ":memory:"
}

// RedisConfig holds the optional shared store connection.
// An empty URL, or a store that does not answer at startup, means local-only mode.
type RedisConfig struct {
	URL         string        `yaml:"url"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	OpTimeout   time.Duration `yaml:"op_timeout"`
}

// CacheConfig holds value cache settings.
type CacheConfig struct {
	MaxSize    int           `yaml:"max_size"`    // local store entry limit
	DefaultTTL time.Duration `yaml:"default_ttl"` // TTL when callers pass zero
	MaxTTL     time.Duration `yaml:"max_ttl"`     // local store TTL ceiling
	ProfileTTL time.Duration `yaml:"profile_ttl"`
	ListTTL    time.Duration `yaml:"list_ttl"`
}

// RateLimitConfig overrides the built-in limit profiles.
type RateLimitConfig struct {
	Profiles      map[string]ProfileEntry `yaml:"profiles"`
	SweepInterval time.Duration           `yaml:"sweep_interval"` // local window eviction period
}

// ProfileEntry is a (limit, window) pair in the config file.
type ProfileEntry struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// IdentityConfig points at the external identity provider core.
type IdentityConfig struct {
	ConnectionURI   string        `yaml:"connection_uri"`
	APIKey          string        `yaml:"api_key"`
	Timeout         time.Duration `yaml:"timeout"`
	SessionCacheTTL time.Duration `yaml:"session_cache_ttl"`
	Breaker         BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the circuit breaker in front of the identity core.
// Zero values use the breaker's defaults.
type BreakerConfig struct {
	ErrorThreshold float64       `yaml:"error_threshold"`
	MinSamples     int           `yaml:"min_samples"`
	Window         time.Duration `yaml:"window"`
	OpenTimeout    time.Duration `yaml:"open_timeout"`
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

// LogConfig controls the default slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Default returns the configuration used when a file leaves fields unset.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:        "OtakuShelf",
			Environment: "development",
		},
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			DSN: "otaku_shelf.db",
		},
		Redis: RedisConfig{
			DialTimeout: 2 * time.Second,
			OpTimeout:   250 * time.Millisecond,
		},
		Cache: CacheConfig{
			MaxSize:    10_000,
			DefaultTTL: time.Hour,
			MaxTTL:     24 * time.Hour,
			ProfileTTL: 10 * time.Minute,
			ListTTL:    2 * time.Minute,
		},
		RateLimits: RateLimitConfig{
			SweepInterval: 5 * time.Minute,
		},
		Identity: IdentityConfig{
			ConnectionURI:   "http://localhost:3567",
			Timeout:         5 * time.Second,
			SessionCacheTTL: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads and parses a YAML config file, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnv(data)

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
