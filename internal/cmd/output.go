package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/karmalens/karmalens/internal/output"
)

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "table", "Output format: table, json, yaml, markdown")
}

func formatterFor(cmd *cobra.Command) (output.Formatter, error) {
	raw, err := cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}
	format, err := output.ParseFormat(raw)
	if err != nil {
		return nil, err
	}
	return output.NewFormatter(format), nil
}

func printRendered(cmd *cobra.Command, rendered string) error {
	_, err := fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}
