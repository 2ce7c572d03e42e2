package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/karmalens/karmalens/internal/collectlog"
	"github.com/karmalens/karmalens/internal/config"
	"github.com/karmalens/karmalens/internal/core"
	"github.com/karmalens/karmalens/internal/metrics"
	"github.com/karmalens/karmalens/internal/output"
)

var checkCmd = &cobra.Command{
	Use:   "check <username>",
	Short: "Look up a user's current karma without storing it",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringP("output", "o", "table", "Output format: table, json")
}

func runCheck(cmd *cobra.Command, args []string) error {
	usernames, err := normalizeUsernames(args)
	if err != nil {
		return err
	}
	username := usernames[0]

	raw, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	format, err := output.ParseFormat(raw)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	client, err := newRedditClient(cfg.Reddit, collectlog.New(cfg.Collection.LogCapacity))
	if err != nil {
		return err
	}

	stat, err := client.FetchUserData(ctx, username)
	metrics.RecordCommand("check", err == nil)
	if err != nil {
		classified := core.Classify(err, username)
		return fmt.Errorf("%s: %s", username, classified.Message)
	}

	if format == output.FormatJSON {
		data, err := json.MarshalIndent(stat, "", "  ")
		if err != nil {
			return err
		}
		return printRendered(cmd, string(data))
	}
	return printRendered(cmd, renderStat(stat))
}

func renderStat(stat *core.UserStat) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle("u/" + stat.Username)
	t.AppendRows([]table.Row{
		{"Karma", stat.Karma},
		{"Link karma (posts)", stat.PostCount},
		{"Comment karma (comments)", stat.CommentCount},
	})
	return t.Render()
}
