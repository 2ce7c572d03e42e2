package metrics

import (
	"strconv"
	"time"
)

// Collection and Reddit client metric names
const (
	CollectionRunsTotal      = "collection_runs_total"
	CollectionRunDuration    = "collection_run_duration_ms"
	CollectionUsersTotal     = "collection_users_total"
	RedditRequestsTotal      = "reddit_requests_total"
	RedditRetriesTotal       = "reddit_retries_total"
	OAuthTokenRefreshesTotal = "oauth_token_refresh_total"
)

// Collection outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// RecordCollectionRun records a finished collection run
func RecordCollectionRun(success bool, duration time.Duration) {
	counter(CollectionRunsTotal, map[string]string{"status": outcome(success, "success", "failure")})
	histogram(CollectionRunDuration, duration, nil)
}

// RecordUserCollection records the outcome for one user within a run
func RecordUserCollection(result string) {
	counter(CollectionUsersTotal, map[string]string{"outcome": result})
}

// RecordRedditRequest records an outbound Reddit HTTP request
func RecordRedditRequest(endpoint string, status int) {
	counter(RedditRequestsTotal, map[string]string{
		"endpoint": endpoint,
		"status":   strconv.Itoa(status),
	})
}

// RecordRetry records a retry scheduled by the retry executor
func RecordRetry(errorType string) {
	counter(RedditRetriesTotal, map[string]string{"error_type": errorType})
}

// RecordTokenRefresh records an OAuth client-credentials exchange
func RecordTokenRefresh(success bool) {
	counter(OAuthTokenRefreshesTotal, map[string]string{"status": outcome(success, "success", "failure")})
}
