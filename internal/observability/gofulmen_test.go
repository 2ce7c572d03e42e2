package observability_test

import (
	"testing"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/logging"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/karmalens/karmalens/internal/observability"
)

func TestLoggers(t *testing.T) {
	t.Run("CLI logger creation", func(t *testing.T) {
		observability.InitCLILogger("karmalens-test", false)
		require.NotNil(t, observability.CLILogger)

		observability.CLILogger.Info("Test CLI log message", zap.String("username", "alice"))
	})

	t.Run("Logger prefers server logger", func(t *testing.T) {
		previous := observability.ServerLogger
		t.Cleanup(func() { observability.ServerLogger = previous })

		observability.ServerLogger = nil
		observability.InitCLILogger("karmalens-test", true)
		require.Same(t, observability.CLILogger, observability.Logger())

		t.Setenv("KARMALENS_ENV", "Test")
		observability.InitServerLogger(observability.ServerLogOptions{
			Service:   "karmalens-test",
			Level:     "DEBUG",
			Namespace: "karmalens",
		})
		require.NotNil(t, observability.ServerLogger)
		require.Same(t, observability.ServerLogger, observability.Logger())

		observability.Logger().Debug("Collection run started", zap.String("run_id", "run-1"))
	})

	t.Run("Structured profile with correlation middleware", func(t *testing.T) {
		logger, err := logging.New(&logging.LoggerConfig{
			Profile:      logging.ProfileStructured,
			DefaultLevel: "INFO",
			Service:      "karmalens-correlation",
			Environment:  "test",
			Middleware: []logging.MiddlewareConfig{
				{Name: "correlation", Enabled: true, Order: 100, Config: make(map[string]any)},
			},
			Sinks: []logging.SinkConfig{
				{
					Type:    "console",
					Format:  "json",
					Console: &logging.ConsoleSinkConfig{Stream: "stderr", Colorize: false},
				},
			},
		})
		require.NoError(t, err)

		logger.Info("Collected user data", zap.String("username", "bob"), zap.Int64("karma", 42))
	})
}

func TestEmbeddedCrucible(t *testing.T) {
	version := crucible.GetVersion()
	require.NotEmpty(t, version.Gofulmen)
	require.NotEmpty(t, version.Crucible)
	require.NotEmpty(t, crucible.GetVersionString())
}

func TestMetricsURLUsesBoundPort(t *testing.T) {
	require.False(t, observability.MetricsEnabled())
	require.Equal(t, "http://127.0.0.1:9090/metrics", observability.MetricsURL())
}
