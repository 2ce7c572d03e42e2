package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/karmalens/karmalens/internal/output"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the latest collection run with recovery recommendations",
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	addOutputFlag(reportCmd)
}

func runReport(cmd *cobra.Command, _ []string) error {
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

	run, err := rt.Store.LatestRun(ctx)
	if err != nil {
		return err
	}
	if run == nil {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "no collection runs recorded")
		return err
	}
	rendered, err := formatter.FormatReport(output.NewReport(run))
	if err != nil {
		return err
	}
	return printRendered(cmd, rendered)
}
