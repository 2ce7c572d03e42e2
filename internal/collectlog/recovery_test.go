package collectlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/karmalens/karmalens/internal/core"
)

func TestAnalyzeBuckets(t *testing.T) {
	analysis := Analyze([]core.CollectionError{
		{Username: "limited", Error: "Reddit API rate limit exceeded", ErrorType: core.ErrorRateLimited, Retryable: true},
		{Username: "gone", Error: "Reddit user not found", ErrorType: core.ErrorUserNotFound},
		{Username: "banned", Error: "account suspended", ErrorType: core.ErrorUserSuspended},
		{Username: "flaky", Error: "connection reset", ErrorType: core.ErrorNetwork, Retryable: true},
		{Username: "garbled", Error: "bad payload", ErrorType: core.ErrorInvalidData},
	})

	require.Equal(t, []string{"limited"}, analysis.RateLimitedUsers)
	require.Equal(t, []string{"banned"}, analysis.SuspendedUsers)
	require.Equal(t, []string{"gone", "garbled"}, analysis.PermanentUsers)
	require.Equal(t, []string{"flaky"}, analysis.RetryableUsers)
	require.Len(t, analysis.Recommendations, 4)
	require.Equal(t, "1 users hit rate limits - consider increasing delays between batches", analysis.Recommendations[0])
}

func TestAnalyzeFallsBackToMessage(t *testing.T) {
	analysis := Analyze([]core.CollectionError{
		{Username: "a", Error: "Too Many Requests"},
		{Username: "b", Error: "this account is private"},
		{Username: "c", Error: "something odd"},
	})

	require.Equal(t, []string{"a"}, analysis.RateLimitedUsers)
	require.Equal(t, []string{"b"}, analysis.SuspendedUsers)
	require.Equal(t, []string{"c"}, analysis.RetryableUsers)
}

func TestAnalyzeNoErrors(t *testing.T) {
	analysis := Analyze(nil)
	require.Equal(t, []string{"No errors detected - collection completed successfully"}, analysis.Recommendations)
	require.Empty(t, analysis.PermanentUsers)
}

func TestFormatReport(t *testing.T) {
	metrics := &core.CollectionRunMetrics{
		RunID:                 "run-1",
		StartTime:             time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		Duration:              3 * time.Second,
		TotalUsers:            2,
		SuccessfulCollections: 1,
		FailedCollections:     1,
	}
	analysis := Analyze([]core.CollectionError{
		{Username: "bob", Error: "not found", ErrorType: core.ErrorUserNotFound},
	})

	report := FormatReport(metrics, analysis)
	require.Contains(t, report, "Run:        run-1")
	require.Contains(t, report, "Total:      2")
	require.Contains(t, report, "Failed:     1")
	require.Contains(t, report, "Permanent failures (1): bob")
	require.Contains(t, report, "1 users failed permanently - verify these usernames")
}
