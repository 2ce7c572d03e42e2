package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/karmalens/karmalens/internal/collectlog"
	"github.com/karmalens/karmalens/internal/core"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// UserRow is a tracked user with its most recent snapshot, if any.
type UserRow struct {
	Username string         `json:"username" yaml:"username"`
	AddedAt  time.Time      `json:"added_at" yaml:"added_at"`
	Latest   *core.Snapshot `json:"latest,omitempty" yaml:"latest,omitempty"`
}

// History is the snapshot series for one user, newest first.
type History struct {
	Username  string          `json:"username" yaml:"username"`
	Snapshots []core.Snapshot `json:"snapshots" yaml:"snapshots"`
}

// Report pairs a collection run with its recovery analysis.
type Report struct {
	Run      *core.CollectionRunMetrics `json:"run" yaml:"run"`
	Analysis collectlog.Analysis        `json:"analysis" yaml:"analysis"`
}

// Formatter renders CLI results.
type Formatter interface {
	FormatUsers(rows []UserRow) (string, error)
	FormatHistory(history History) (string, error)
	FormatReport(report Report) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatYAML), "yml":
		return FormatYAML, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatYAML:
		return &YAMLFormatter{}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// NewReport builds a Report, analyzing the run's errors.
func NewReport(run *core.CollectionRunMetrics) Report {
	report := Report{Run: run}
	if run != nil {
		report.Analysis = collectlog.Analyze(run.Errors)
	} else {
		report.Analysis = collectlog.Analyze(nil)
	}
	return report
}
