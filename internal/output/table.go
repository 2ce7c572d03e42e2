package output

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/karmalens/karmalens/internal/core"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// FormatUsers renders tracked users with their latest karma.
func (f *TableFormatter) FormatUsers(rows []UserRow) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"User", "Karma", "Posts", "Comments", "Collected", "Tracked since"})

	for _, row := range rows {
		karma, posts, comments, collected := latestColumns(row.Latest)
		t.AppendRow(table.Row{row.Username, karma, posts, comments, collected, formatTime(row.AddedAt)})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d tracked", len(rows)), "", "", "", "", ""})

	return t.Render(), nil
}

// FormatHistory renders a user's snapshots with karma changes.
func (f *TableFormatter) FormatHistory(history History) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle("u/" + history.Username)
	t.AppendHeader(table.Row{"Collected", "Karma", "Change", "Posts", "Comments"})

	for i, snap := range history.Snapshots {
		t.AppendRow(table.Row{
			formatTime(snap.CollectedAt),
			snap.Karma,
			karmaChange(history.Snapshots, i),
			snap.PostCount,
			snap.CommentCount,
		})
	}

	if net, ok := netChange(history.Snapshots); ok {
		t.AppendFooter(table.Row{fmt.Sprintf("%d snapshots", len(history.Snapshots)), "", signed(net), "", ""})
	}

	return t.Render(), nil
}

// FormatReport renders run totals, failures and recommendations.
func (f *TableFormatter) FormatReport(report Report) (string, error) {
	run := report.Run
	if run == nil {
		run = &core.CollectionRunMetrics{}
	}

	summary := table.NewWriter()
	summary.SetStyle(table.StyleRounded)
	summary.SetTitle("Collection report")
	summary.AppendRows([]table.Row{
		{"Run", run.RunID},
		{"Started", formatTime(run.StartTime)},
		{"Duration", run.Duration.String()},
		{"Total", run.TotalUsers},
		{"Successful", run.SuccessfulCollections},
		{"Failed", run.FailedCollections},
		{"Skipped", run.SkippedCollections},
		{"Batches", run.Batches},
	})
	rendered := summary.Render()

	if len(run.Errors) > 0 {
		failures := table.NewWriter()
		failures.SetStyle(table.StyleRounded)
		failures.AppendHeader(table.Row{"User", "Type", "Retryable", "Error"})
		for _, item := range run.Errors {
			failures.AppendRow(table.Row{item.Username, string(item.ErrorType), item.Retryable, item.Error})
		}
		rendered += "\n" + failures.Render()
	}

	rendered += renderAnalysisSections(analysisSections(report.Analysis), false)
	return rendered, nil
}
