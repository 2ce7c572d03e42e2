package config

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		t.Setenv("XDG_DATA_HOME", t.TempDir())

		cfg, err := LoadFrom(ctx, viper.New())
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Verify server defaults
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
		assert.Empty(t, cfg.Server.CronSecret)

		// Verify store defaults
		assert.Equal(t, "libsql", cfg.Store.Driver)
		expectedStorePath := filepath.Join(gfconfig.GetAppDataDir("karmalens"), "karmalens.db")
		assert.Equal(t, expectedStorePath, cfg.Store.Path)
		assert.Equal(t, "", cfg.Store.URL)

		// Verify reddit defaults
		assert.Equal(t, "auto", cfg.Reddit.Mode)
		assert.Equal(t, 10*time.Second, cfg.Reddit.Timeout)
		assert.Equal(t, 60, cfg.Reddit.RateLimit.MaxRequests)
		assert.Equal(t, time.Minute, cfg.Reddit.RateLimit.Window)
		assert.Equal(t, 60*time.Second, cfg.Reddit.RateLimit.RetryAfter)
		assert.Equal(t, 3, cfg.Reddit.Retry.MaxRetries)
		assert.Equal(t, time.Second, cfg.Reddit.Retry.BaseDelay)
		assert.Equal(t, 30*time.Second, cfg.Reddit.Retry.MaxDelay)
		assert.True(t, cfg.Reddit.Fallback.Enabled)
		assert.Len(t, cfg.Reddit.Fallback.Endpoints, 3)
		assert.Equal(t, 0.5, cfg.Reddit.Fallback.RequestsPerSecond)

		// Verify collection defaults
		assert.Equal(t, 5, cfg.Collection.BatchSize)
		assert.Equal(t, 2*time.Second, cfg.Collection.BatchDelay)
		assert.Equal(t, 24*time.Hour, cfg.Collection.FreshnessWindow)
		assert.Equal(t, time.Duration(0), cfg.Collection.Interval)
		assert.Equal(t, 1000, cfg.Collection.LogCapacity)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "STRUCTURED", cfg.Logging.Profile)
		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, 9090, cfg.Metrics.Port)
		assert.True(t, cfg.Health.Enabled)
		assert.False(t, cfg.Debug.PprofEnabled)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"collection": map[string]any{
				"batch_size": 10,
			},
		}

		cfg, err := LoadFrom(ctx, viper.New(), overrides)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, 10, cfg.Collection.BatchSize)

		// Verify non-overridden values remain default
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 2*time.Second, cfg.Collection.BatchDelay)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("KARMALENS_PORT", "3000")
		t.Setenv("KARMALENS_LOG_LEVEL", "warn")
		t.Setenv("KARMALENS_METRICS_ENABLED", "false")
		t.Setenv("KARMALENS_BATCH_DELAY", "5s")
		t.Setenv("REDDIT_CLIENT_ID", "client-abc")
		t.Setenv("REDDIT_CLIENT_SECRET", "secret-xyz")
		t.Setenv("CRON_SECRET", "cron-123")

		cfg, err := LoadFrom(ctx, viper.New())
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.False(t, cfg.Metrics.Enabled)
		assert.Equal(t, 5*time.Second, cfg.Collection.BatchDelay)
		assert.Equal(t, "client-abc", cfg.Reddit.ClientID)
		assert.Equal(t, "secret-xyz", cfg.Reddit.ClientSecret)
		assert.Equal(t, "cron-123", cfg.Server.CronSecret)
	})

	t.Run("FallbackEndpointsFromEnv", func(t *testing.T) {
		t.Setenv("KARMALENS_REDDIT_FALLBACK_ENDPOINTS", "https://a.example,https://b.example")

		cfg, err := LoadFrom(ctx, viper.New())
		require.NoError(t, err)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Reddit.Fallback.Endpoints)
	})

	// Test config precedence: runtime > env > viper
	t.Run("ConfigPrecedence", func(t *testing.T) {
		t.Setenv("KARMALENS_PORT", "4000")

		v := viper.New()
		v.Set("server.port", 3500)
		v.Set("server.host", "example.internal")

		cfg, err := LoadFrom(ctx, v, map[string]any{"server": map[string]any{"port": 5000}})
		require.NoError(t, err)
		assert.Equal(t, 5000, cfg.Server.Port)
		assert.Equal(t, "example.internal", cfg.Server.Host)

		cfg, err = LoadFrom(ctx, v)
		require.NoError(t, err)
		assert.Equal(t, 4000, cfg.Server.Port)
	})

	t.Run("StoreURLSkipsDefaultPath", func(t *testing.T) {
		cfg, err := LoadFrom(ctx, viper.New(), map[string]any{
			"store": map[string]any{"url": "libsql://db.example.turso.io"},
		})
		require.NoError(t, err)
		assert.Empty(t, cfg.Store.Path)
	})
}

func TestGetConfig(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), viper.New(), map[string]any{
		"server": map[string]any{"port": 8181},
	})
	require.NoError(t, err)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
	assert.Equal(t, 8181, retrieved.Server.Port)
}

func TestEnvSpecs(t *testing.T) {
	specs := getEnvSpecs()
	assert.NotEmpty(t, specs)

	envVarNames := make(map[string]bool)
	for _, spec := range specs {
		envVarNames[spec.Name] = true
	}

	assert.True(t, envVarNames["KARMALENS_LOG_LEVEL"], "LOG_LEVEL env var must be mapped")
	assert.True(t, envVarNames["KARMALENS_PORT"], "PORT env var must be mapped")
	assert.True(t, envVarNames["KARMALENS_DB_PATH"], "DB_PATH env var must be mapped")
	assert.True(t, envVarNames["REDDIT_CLIENT_ID"], "REDDIT_CLIENT_ID env var must be mapped")
	assert.True(t, envVarNames["REDDIT_CLIENT_SECRET"], "REDDIT_CLIENT_SECRET env var must be mapped")
	assert.True(t, envVarNames["CRON_SECRET"], "CRON_SECRET env var must be mapped")
}

func TestLoadCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := LoadFrom(ctx, viper.New())
	require.ErrorIs(t, err, context.Canceled)
}

func TestMergeSettings(t *testing.T) {
	dst := map[string]any{
		"server": map[string]any{"host": "localhost", "port": 8080},
		"debug":  true,
	}
	mergeSettings(dst, map[string]any{
		"server": map[string]any{"PORT": 9090},
		"extra":  map[string]any{"key": "value"},
	})

	server := dst["server"].(map[string]any)
	assert.Equal(t, "localhost", server["host"])
	assert.Equal(t, 9090, server["port"])
	assert.Equal(t, true, dst["debug"])
	assert.Equal(t, map[string]any{"key": "value"}, dst["extra"])
}
