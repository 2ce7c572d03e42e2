package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/karmalens/karmalens/internal/output"
)

var historyCmd = &cobra.Command{
	Use:   "history <username>",
	Short: "Show stored karma snapshots for a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 30, "Maximum snapshots to show (0 for all)")
	addOutputFlag(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	usernames, err := normalizeUsernames(args)
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	if limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	formatter, err := formatterFor(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt, err := openRuntime(ctx, false)
	if err != nil {
		return err
	}
	defer rt.Close() // nolint:errcheck // best-effort cleanup on command exit

	snapshots, err := rt.Store.ListSnapshots(ctx, usernames[0], limit)
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "no snapshots for %s\n", usernames[0])
		return err
	}
	rendered, err := formatter.FormatHistory(output.History{Username: usernames[0], Snapshots: snapshots})
	if err != nil {
		return err
	}
	return printRendered(cmd, rendered)
}
