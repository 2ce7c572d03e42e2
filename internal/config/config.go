package config

import (
	"time"
)

// Config represents the complete application configuration.
// Layer 1: built-in defaults (SetDefaults)
// Layer 2: user config file (~/.config/karmalens/config.yaml) and .env
// Layer 3: environment variables and runtime overrides
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Store      StoreConfig      `mapstructure:"store"`
	Reddit     RedditConfig     `mapstructure:"reddit"`
	Collection CollectionConfig `mapstructure:"collection"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Health     HealthConfig     `mapstructure:"health"`
	Debug      DebugConfig      `mapstructure:"debug"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// CronSecret, when set, must be presented as a bearer token to trigger
	// a full collection run over HTTP.
	CronSecret string `mapstructure:"cron_secret"`

	// AdminToken enables POST /admin/signal for remote shutdown and reload.
	AdminToken string `mapstructure:"admin_token"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// RedditConfig selects and tunes the Reddit API client.
type RedditConfig struct {
	// Mode is one of auto, public, oauth, mock. Auto uses OAuth when
	// credentials are present.
	Mode         string        `mapstructure:"mode"`
	UserAgent    string        `mapstructure:"user_agent"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	Timeout      time.Duration `mapstructure:"timeout"`
	BaseURL      string        `mapstructure:"base_url"`
	OAuthBaseURL string        `mapstructure:"oauth_base_url"`
	TokenURL     string        `mapstructure:"token_url"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Fallback  FallbackConfig  `mapstructure:"fallback"`
}

// RateLimitConfig bounds requests per sliding window.
type RateLimitConfig struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
	RetryAfter  time.Duration `mapstructure:"retry_after"`
}

// RetryConfig controls retries of transient Reddit failures.
type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
}

// FallbackConfig configures alternate public endpoints.
type FallbackConfig struct {
	Enabled             bool     `mapstructure:"enabled"`
	Endpoints           []string `mapstructure:"endpoints"`
	RequestsPerSecond   float64  `mapstructure:"requests_per_second"`
	Burst               int      `mapstructure:"burst"`
	AssumeExistsOnBlock bool     `mapstructure:"assume_exists_on_block"`
}

// CollectionConfig tunes batch collection.
type CollectionConfig struct {
	BatchSize       int           `mapstructure:"batch_size"`
	BatchDelay      time.Duration `mapstructure:"batch_delay"`
	FreshnessWindow time.Duration `mapstructure:"freshness_window"`

	// Interval schedules CollectAll while serving. Zero disables it.
	Interval    time.Duration `mapstructure:"interval"`
	LogCapacity int           `mapstructure:"log_capacity"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Server log profile: SIMPLE (console text) or STRUCTURED (JSON)
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// WARNING: Only enable in development/staging environments
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}
