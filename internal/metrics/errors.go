package metrics

import (
	"strconv"
)

// Error metric names
const (
	ErrorsTotalName      = "api_errors_total"
	PanicsTotalName      = "panics_total"
	ErrorsByEndpointName = "api_errors_by_endpoint"
	CollectionErrorsName = "collection_errors_total"
)

// RecordError counts an API error response by envelope code and status
func RecordError(errorCode string, httpStatus int) {
	counter(ErrorsTotalName, map[string]string{
		"error_code":  errorCode,
		"http_status": strconv.Itoa(httpStatus),
	})
}

// RecordPanic counts a recovered handler panic
func RecordPanic() {
	counter(PanicsTotalName, nil)
}

// RecordErrorByEndpoint counts an API error against the request path
func RecordErrorByEndpoint(endpoint string, errorCode string) {
	counter(ErrorsByEndpointName, map[string]string{
		"endpoint":   endpoint,
		"error_code": errorCode,
	})
}

// RecordCollectionError counts a classified per-user collection failure
func RecordCollectionError(errorType string) {
	counter(CollectionErrorsName, map[string]string{"error_type": errorType})
}
