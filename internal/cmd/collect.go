package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/karmalens/karmalens/internal/core"
	"github.com/karmalens/karmalens/internal/metrics"
	"github.com/karmalens/karmalens/internal/observability"
	"github.com/karmalens/karmalens/internal/output"
)

var collectCmd = &cobra.Command{
	Use:   "collect [username]...",
	Short: "Collect karma snapshots",
	Long: `Collect karma snapshots.

With no arguments every tracked user whose latest snapshot is older than the
freshness window is collected in batches, and a run report is printed.
With usernames, a fresh snapshot is stored for each one regardless of age.`,
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)
	addOutputFlag(collectCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
	formatter, err := formatterFor(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt, err := openRuntime(ctx, true)
	if err != nil {
		return err
	}
	defer rt.Close() // nolint:errcheck // best-effort cleanup on command exit

	if len(args) == 0 {
		run, err := rt.Collector.CollectAll(ctx)
		metrics.RecordCommand("collect_all", err == nil)
		if err != nil {
			return err
		}
		rendered, err := formatter.FormatReport(output.NewReport(run))
		if err != nil {
			return err
		}
		return printRendered(cmd, rendered)
	}

	usernames, err := normalizeUsernames(args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var failed int
	for _, username := range usernames {
		snap, err := rt.Collector.CollectUser(ctx, username)
		metrics.RecordCommand("collect_user", err == nil)
		if err != nil {
			failed++
			classified := core.Classify(err, username)
			observability.CLILogger.Debug("Collection failed",
				zap.String("username", username),
				zap.String("error_type", string(classified.Type)),
				zap.Error(classified.Cause))
			_, _ = fmt.Fprintf(out, "%s: %s\n", username, classified.Message)
			continue
		}
		_, _ = fmt.Fprintf(out, "%s: karma %d (posts %d, comments %d)\n",
			username, snap.Karma, snap.PostCount, snap.CommentCount)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d collections failed", failed, len(usernames))
	}
	return nil
}
