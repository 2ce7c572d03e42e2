package output

import (
	"fmt"
	"strings"

	"github.com/karmalens/karmalens/internal/core"
)

// MarkdownFormatter renders results as markdown tables.
type MarkdownFormatter struct{}

func (f *MarkdownFormatter) FormatUsers(rows []UserRow) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Tracked users\n\n")
	sb.WriteString("| User | Karma | Posts | Comments | Collected |\n")
	sb.WriteString("|------|-------|-------|----------|-----------|\n")

	for _, row := range rows {
		karma, posts, comments, collected := latestColumns(row.Latest)
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
			escapeMarkdownCell(row.Username), karma, posts, comments, collected))
	}
	return sb.String(), nil
}

func (f *MarkdownFormatter) FormatHistory(history History) (string, error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## u/%s karma history\n\n", escapeMarkdownCell(history.Username)))
	sb.WriteString("| Collected | Karma | Change | Posts | Comments |\n")
	sb.WriteString("|-----------|-------|--------|-------|----------|\n")

	for i, snap := range history.Snapshots {
		sb.WriteString(fmt.Sprintf("| %s | %d | %s | %d | %d |\n",
			formatTime(snap.CollectedAt), snap.Karma, karmaChange(history.Snapshots, i), snap.PostCount, snap.CommentCount))
	}

	if net, ok := netChange(history.Snapshots); ok {
		sb.WriteString(fmt.Sprintf("\n**Net change**: %s\n", signed(net)))
	}
	return sb.String(), nil
}

func (f *MarkdownFormatter) FormatReport(report Report) (string, error) {
	run := report.Run
	if run == nil {
		run = &core.CollectionRunMetrics{}
	}

	var sb strings.Builder
	sb.WriteString("## Collection report\n\n")
	if run.RunID != "" {
		sb.WriteString(fmt.Sprintf("Run `%s` started %s, took %s.\n\n", run.RunID, formatTime(run.StartTime), run.Duration))
	}
	sb.WriteString("| Total | Successful | Failed | Skipped | Batches |\n")
	sb.WriteString("|-------|------------|--------|---------|---------|\n")
	sb.WriteString(fmt.Sprintf("| %d | %d | %d | %d | %d |\n",
		run.TotalUsers, run.SuccessfulCollections, run.FailedCollections, run.SkippedCollections, run.Batches))

	sb.WriteString(renderAnalysisSections(analysisSections(report.Analysis), true))
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
