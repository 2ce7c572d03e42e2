package collectlog

import (
	"fmt"
	"strings"

	"github.com/karmalens/karmalens/internal/core"
)

// Analysis groups failed usernames by how they should be handled next.
type Analysis struct {
	RetryableUsers   []string `json:"retryable_users" yaml:"retryable_users"`
	PermanentUsers   []string `json:"permanent_users" yaml:"permanent_users"`
	RateLimitedUsers []string `json:"rate_limited_users" yaml:"rate_limited_users"`
	SuspendedUsers   []string `json:"suspended_users" yaml:"suspended_users"`
	Recommendations  []string `json:"recommendations" yaml:"recommendations"`
}

// Analyze buckets collection errors and derives recommendations. It is pure.
func Analyze(errs []core.CollectionError) Analysis {
	analysis := Analysis{
		RetryableUsers:   []string{},
		PermanentUsers:   []string{},
		RateLimitedUsers: []string{},
		SuspendedUsers:   []string{},
	}

	for _, item := range errs {
		errType := item.ErrorType
		if errType == "" {
			errType = core.ClassifyMessage(item.Error)
		}

		switch {
		case errType == core.ErrorRateLimited:
			analysis.RateLimitedUsers = append(analysis.RateLimitedUsers, item.Username)
		case errType == core.ErrorUserSuspended:
			analysis.SuspendedUsers = append(analysis.SuspendedUsers, item.Username)
		case !errType.Retryable():
			analysis.PermanentUsers = append(analysis.PermanentUsers, item.Username)
		default:
			analysis.RetryableUsers = append(analysis.RetryableUsers, item.Username)
		}
	}

	analysis.Recommendations = recommendations(analysis)
	return analysis
}

func recommendations(a Analysis) []string {
	out := make([]string, 0, 4)
	if n := len(a.RateLimitedUsers); n > 0 {
		out = append(out, fmt.Sprintf("%d users hit rate limits - consider increasing delays between batches", n))
	}
	if n := len(a.SuspendedUsers); n > 0 {
		out = append(out, fmt.Sprintf("%d users are suspended or private - consider removing them from tracking", n))
	}
	if n := len(a.PermanentUsers); n > 0 {
		out = append(out, fmt.Sprintf("%d users failed permanently - verify these usernames", n))
	}
	if n := len(a.RetryableUsers); n > 0 {
		out = append(out, fmt.Sprintf("%d users had transient errors - retry collection for these users", n))
	}
	if len(out) == 0 {
		out = append(out, "No errors detected - collection completed successfully")
	}
	return out
}

// FormatReport renders run totals and the analysis as plain text.
func FormatReport(metrics *core.CollectionRunMetrics, a Analysis) string {
	var b strings.Builder

	b.WriteString("Collection Report\n")
	b.WriteString("=================\n")
	if metrics != nil {
		if metrics.RunID != "" {
			fmt.Fprintf(&b, "Run:        %s\n", metrics.RunID)
		}
		if !metrics.StartTime.IsZero() {
			fmt.Fprintf(&b, "Started:    %s\n", metrics.StartTime.UTC().Format("2006-01-02 15:04:05 MST"))
		}
		fmt.Fprintf(&b, "Duration:   %s\n", metrics.Duration)
		fmt.Fprintf(&b, "Total:      %d\n", metrics.TotalUsers)
		fmt.Fprintf(&b, "Successful: %d\n", metrics.SuccessfulCollections)
		fmt.Fprintf(&b, "Failed:     %d\n", metrics.FailedCollections)
		fmt.Fprintf(&b, "Skipped:    %d\n", metrics.SkippedCollections)
	}

	writeBucket(&b, "Rate limited", a.RateLimitedUsers)
	writeBucket(&b, "Suspended", a.SuspendedUsers)
	writeBucket(&b, "Permanent failures", a.PermanentUsers)
	writeBucket(&b, "Retryable", a.RetryableUsers)

	b.WriteString("\nRecommendations:\n")
	for _, rec := range a.Recommendations {
		fmt.Fprintf(&b, "  - %s\n", rec)
	}
	return b.String()
}

func writeBucket(b *strings.Builder, label string, users []string) {
	if len(users) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s (%d): %s\n", label, len(users), strings.Join(users, ", "))
}
