// Package config provides centralized configuration management for KarmaLens.
// It layers built-in defaults, an optional YAML config file and .env file read
// through viper, environment variables mapped with gofulmen/config, and
// runtime overrides.
package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/karmalens/karmalens/internal/appid"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// EnvVarSpec defines environment variable mappings for config fields
// following the pattern: {PREFIX}_{NAME} maps to config path
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// SetDefaults registers default values on v. Explicitly set values and
// values read from a config file are not affected.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.cron_secret", "")
	v.SetDefault("server.admin_token", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", "")
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	// Reddit client defaults
	v.SetDefault("reddit.mode", "auto")
	v.SetDefault("reddit.user_agent", "karmalens/0.1 (karma tracker)")
	v.SetDefault("reddit.client_id", "")
	v.SetDefault("reddit.client_secret", "")
	v.SetDefault("reddit.timeout", "10s")
	v.SetDefault("reddit.base_url", "")
	v.SetDefault("reddit.oauth_base_url", "")
	v.SetDefault("reddit.token_url", "")
	v.SetDefault("reddit.rate_limit.max_requests", 60)
	v.SetDefault("reddit.rate_limit.window", "1m")
	v.SetDefault("reddit.rate_limit.retry_after", "60s")
	v.SetDefault("reddit.retry.max_retries", 3)
	v.SetDefault("reddit.retry.base_delay", "1s")
	v.SetDefault("reddit.retry.max_delay", "30s")
	v.SetDefault("reddit.fallback.enabled", true)
	v.SetDefault("reddit.fallback.endpoints", []string{
		"https://www.reddit.com",
		"https://old.reddit.com",
		"https://api.reddit.com",
	})
	v.SetDefault("reddit.fallback.requests_per_second", 0.5)
	v.SetDefault("reddit.fallback.burst", 1)
	v.SetDefault("reddit.fallback.assume_exists_on_block", false)

	// Collection defaults
	v.SetDefault("collection.batch_size", 5)
	v.SetDefault("collection.batch_delay", "2s")
	v.SetDefault("collection.freshness_window", "24h")
	v.SetDefault("collection.interval", "0s")
	v.SetDefault("collection.log_capacity", 1000)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)

	// Debug defaults
	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)
}

// Load decodes configuration from the global viper instance.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	return LoadFrom(ctx, viper.GetViper(), runtimeOverrides...)
}

// LoadFrom decodes configuration from v, applying environment overrides and
// then runtime overrides in order.
func LoadFrom(ctx context.Context, v *viper.Viper, runtimeOverrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	merged := v.AllSettings()
	mergeSettings(merged, envOverrides)
	for _, override := range runtimeOverrides {
		mergeSettings(merged, override)
	}

	// Unmarshal into typed config struct
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(merged); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	setConfig(cfg)

	return cfg, nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// getEnvSpecs returns environment variable specifications for config mapping.
// Reddit credentials are also accepted without the app prefix.
func getEnvSpecs() []EnvVarSpec {
	prefix := appid.EnvPrefix + "_"

	return []EnvVarSpec{
		// Server config
		{Name: prefix + "HOST", Path: []string{"server", "host"}, Type: EnvString},
		{Name: prefix + "PORT", Path: []string{"server", "port"}, Type: EnvInt},
		// Duration fields are parsed as strings and converted by mapstructure decode hook
		{Name: prefix + "READ_TIMEOUT", Path: []string{"server", "read_timeout"}, Type: EnvString},
		{Name: prefix + "WRITE_TIMEOUT", Path: []string{"server", "write_timeout"}, Type: EnvString},
		{Name: prefix + "IDLE_TIMEOUT", Path: []string{"server", "idle_timeout"}, Type: EnvString},
		{Name: prefix + "SHUTDOWN_TIMEOUT", Path: []string{"server", "shutdown_timeout"}, Type: EnvString},
		{Name: "CRON_SECRET", Path: []string{"server", "cron_secret"}, Type: EnvString},
		{Name: prefix + "ADMIN_TOKEN", Path: []string{"server", "admin_token"}, Type: EnvString},

		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},

		// Store config
		{Name: prefix + "DB_DRIVER", Path: []string{"store", "driver"}, Type: EnvString},
		{Name: prefix + "DB_PATH", Path: []string{"store", "path"}, Type: EnvString},
		{Name: prefix + "DB_URL", Path: []string{"store", "url"}, Type: EnvString},
		{Name: prefix + "DB_AUTH_TOKEN", Path: []string{"store", "auth_token"}, Type: EnvString},

		// Reddit config
		{Name: "REDDIT_CLIENT_ID", Path: []string{"reddit", "client_id"}, Type: EnvString},
		{Name: "REDDIT_CLIENT_SECRET", Path: []string{"reddit", "client_secret"}, Type: EnvString},
		{Name: "REDDIT_USER_AGENT", Path: []string{"reddit", "user_agent"}, Type: EnvString},
		{Name: prefix + "REDDIT_MODE", Path: []string{"reddit", "mode"}, Type: EnvString},
		{Name: prefix + "REDDIT_TIMEOUT", Path: []string{"reddit", "timeout"}, Type: EnvString},
		{Name: prefix + "REDDIT_MAX_REQUESTS", Path: []string{"reddit", "rate_limit", "max_requests"}, Type: EnvInt},
		{Name: prefix + "REDDIT_MAX_RETRIES", Path: []string{"reddit", "retry", "max_retries"}, Type: EnvInt},
		{Name: prefix + "REDDIT_FALLBACK_ENABLED", Path: []string{"reddit", "fallback", "enabled"}, Type: EnvBool},
		{Name: prefix + "REDDIT_FALLBACK_ENDPOINTS", Path: []string{"reddit", "fallback", "endpoints"}, Type: EnvString},

		// Collection config
		{Name: prefix + "BATCH_SIZE", Path: []string{"collection", "batch_size"}, Type: EnvInt},
		{Name: prefix + "BATCH_DELAY", Path: []string{"collection", "batch_delay"}, Type: EnvString},
		{Name: prefix + "FRESHNESS_WINDOW", Path: []string{"collection", "freshness_window"}, Type: EnvString},
		{Name: prefix + "COLLECT_INTERVAL", Path: []string{"collection", "interval"}, Type: EnvString},

		// Metrics config
		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},

		// Health config
		{Name: prefix + "HEALTH_ENABLED", Path: []string{"health", "enabled"}, Type: EnvBool},

		// Debug config
		{Name: prefix + "DEBUG_ENABLED", Path: []string{"debug", "enabled"}, Type: EnvBool},
		{Name: prefix + "DEBUG_PPROF_ENABLED", Path: []string{"debug", "pprof_enabled"}, Type: EnvBool},
	}
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(appid.ConfigName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(appid.ConfigName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		return "./" + appid.BinaryName + ".db"
	}
	return filepath.Join(dataDir, appid.BinaryName+".db")
}

// mergeSettings deep-merges src into dst. Nested maps merge key by key;
// other values replace.
func mergeSettings(dst, src map[string]any) {
	for key, value := range src {
		key = strings.ToLower(key)
		srcMap, srcIsMap := value.(map[string]any)
		if !srcIsMap {
			dst[key] = value
			continue
		}
		dstMap, dstIsMap := dst[key].(map[string]any)
		if !dstIsMap {
			dstMap = map[string]any{}
			dst[key] = dstMap
		}
		mergeSettings(dstMap, srcMap)
	}
}
