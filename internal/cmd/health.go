package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/karmalens/karmalens/internal/config"
	errwrap "github.com/karmalens/karmalens/internal/errors"
	"github.com/karmalens/karmalens/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify that configuration loads and the snapshot store is reachable and migrated.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		logger.Info("Running health check...")

		if versionInfo.Version == "" {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		logger.Debug("Version check passed", zap.String("version", versionInfo.Version))
		logger.Info("✅ Version information available")

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		cfg, err := config.Load(ctx)
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Configuration invalid", errwrap.WrapConfigInvalid(ctx, err, "configuration invalid"))
			return
		}
		logger.Info("✅ Configuration loaded")

		db, err := openStore(ctx, cfg)
		if err != nil {
			ExitWithCode(logger, foundry.ExitFailure, "Store unavailable", errwrap.WrapDatabaseError(ctx, err, "store unavailable"))
			return
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup on command exit

		if err := db.Ping(ctx); err != nil {
			ExitWithCode(logger, foundry.ExitFailure, "Store ping failed", errwrap.WrapDatabaseError(ctx, err, "store ping failed"))
			return
		}
		logger.Info(fmt.Sprintf("✅ Store reachable (%s)", db.Driver()))

		logger.Info("")
		logger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
