package core

import "time"

// CollectionError records a single failed user collection within a run.
type CollectionError struct {
	Username  string    `json:"username"`
	Error     string    `json:"error"`
	ErrorType ErrorType `json:"error_type,omitempty"`
	Retryable bool      `json:"retryable"`
}

// CollectionRunMetrics summarizes one CollectAll invocation.
type CollectionRunMetrics struct {
	RunID                 string            `json:"run_id"`
	StartTime             time.Time         `json:"start_time"`
	EndTime               time.Time         `json:"end_time"`
	Duration              time.Duration     `json:"duration"`
	TotalUsers            int               `json:"total_users"`
	SuccessfulCollections int               `json:"successful_collections"`
	FailedCollections     int               `json:"failed_collections"`
	SkippedCollections    int               `json:"skipped_collections"`
	Batches               int               `json:"batches"`
	Errors                []CollectionError `json:"errors"`
}

// Finalize stamps the end of a run.
func (m *CollectionRunMetrics) Finalize(end time.Time) {
	if m == nil {
		return
	}
	m.EndTime = end
	m.Duration = end.Sub(m.StartTime)
	if m.Errors == nil {
		m.Errors = []CollectionError{}
	}
}
