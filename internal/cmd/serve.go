package cmd

import (
	"context"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	errwrap "github.com/karmalens/karmalens/internal/errors"
	"github.com/karmalens/karmalens/internal/metrics"
	"github.com/karmalens/karmalens/internal/observability"
	"github.com/karmalens/karmalens/internal/server"
	"github.com/karmalens/karmalens/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if !observability.MetricsEnabled() {
		return errwrap.NewServiceUnavailableError("metrics exporter not initialized")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the HTTP API server with graceful shutdown support.

When collection.interval is set, a full collection runs on that schedule.
POST /api/collect triggers a run on demand; set CRON_SECRET to require a
bearer token.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config file reload`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")
	serveCmd.Flags().Duration("interval", 0, "run a full collection on this interval (0 disables)")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("collection.interval", serveCmd.Flags().Lookup("interval"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	identity := GetAppIdentity()
	namespace := identity.BinaryName

	logLevel := viper.GetString("logging.level")
	if verbose {
		logLevel = "debug"
	}
	observability.InitServerLogger(observability.ServerLogOptions{
		Service:   identity.BinaryName,
		Level:     logLevel,
		Profile:   viper.GetString("logging.profile"),
		Namespace: namespace,
	})
	logger := observability.ServerLogger

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	rt, err := openRuntime(ctx, true)
	if err != nil {
		logger.Error("Failed to open runtime", zap.Error(err))
		return errwrap.WrapInternal(ctx, err, "startup failed")
	}

	cfg := rt.Config
	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(observability.MetricsOptions{
			Namespace: namespace,
			Port:      cfg.Metrics.Port,
		}); err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			_ = rt.Close()
			return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
		}
	}
	metrics.SetServerStartTime(time.Now().Unix())

	logger.Info("Initializing server",
		zap.String("service", identity.BinaryName),
		zap.String("version", versionInfo.Version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("metrics_enabled", cfg.Metrics.Enabled),
		zap.Duration("collection_interval", cfg.Collection.Interval),
		zap.Bool("cron_secret_set", cfg.Server.CronSecret != ""))

	handlers.InitHealthManager(versionInfo.Version)
	hm := handlers.GetHealthManager()
	hm.RegisterChecker("store", handlers.CheckerFunc(rt.Store.Ping))
	if cfg.Metrics.Enabled {
		hm.RegisterChecker("telemetry", telemetryHealthChecker{})
	}
	handlers.SetAppIdentity(identity)
	handlers.SetComponents(handlers.ComponentInfo{
		RedditMode:         cfg.Reddit.Mode,
		StoreDriver:        rt.Store.Driver(),
		CollectionInterval: cfg.Collection.Interval.String(),
	})

	api := &handlers.API{
		Store:      rt.Store,
		Collector:  rt.Collector,
		Log:        rt.Log,
		CronSecret: cfg.Server.CronSecret,
	}
	srv := server.New(cfg.Server, api)

	scheduler := &collectionScheduler{
		Collector: rt.Collector,
		Interval:  cfg.Collection.Interval,
		Logger:    logger,
	}
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Run(ctx)
	}()

	// LIFO: stop the scheduler and server first, then close the store and flush logs.
	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Flushing logger...")
		if err := logger.Sync(); err != nil {
			logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		if err := rt.Close(); err != nil {
			logger.Warn("Failed to close store", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		cancel()
		<-schedulerDone

		if err := srv.Shutdown(ctx); err != nil {
			return errwrap.WrapInternal(ctx, err, "server shutdown failed")
		}
		logger.Info("HTTP server stopped gracefully")
		return nil
	})

	signals.OnReload(func(ctx context.Context) error {
		logger.Info("Received SIGHUP: attempting config reload")
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				logger.Info("No config file found - using defaults and environment variables")
				return nil
			}
			logger.Error("Failed to reload config file",
				zap.String("file", viper.ConfigFileUsed()),
				zap.Error(err))
			return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
		}
		logger.Info("Configuration reloaded; restart to apply server and store changes",
			zap.String("file", viper.ConfigFileUsed()))
		return nil
	})

	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
		}
	}()

	go func() {
		if err := signals.Listen(cmd.Context()); err != nil {
			logger.Error("Signal handler error", zap.Error(err))
			errChan <- err
		}
	}()

	if err := <-errChan; err != nil {
		return errwrap.WrapInternal(cmd.Context(), err, "server error")
	}
	return nil
}
