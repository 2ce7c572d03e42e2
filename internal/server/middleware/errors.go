package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/karmalens/karmalens/internal/metrics"
	"github.com/karmalens/karmalens/internal/observability"
)

// ErrorResponse is the failure body shared with the API handlers
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// Recovery turns a handler panic into a 500 error envelope. The stack trace
// is logged with the request ID and never returned to the caller.
// http.ErrAbortHandler is re-raised so net/http can abort the connection.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}

			envelope := errors.NewErrorEnvelope("INTERNAL_ERROR", fmt.Sprintf("panic: %v", recovered)).
				WithCorrelationID(GetRequestID(r.Context()))
			envelope, _ = envelope.WithSeverity(errors.SeverityCritical)

			metrics.RecordPanic()
			if logger := observability.Logger(); logger != nil {
				logger.Error(envelope.Message,
					zap.String("error_code", envelope.Code),
					zap.String("request_id", envelope.CorrelationID),
					zap.String("path", r.URL.Path),
					zap.String("stack_trace", string(debug.Stack())))
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(ErrorResponse{
				Success:   false,
				Error:     "internal server error",
				Code:      envelope.Code,
				RequestID: envelope.CorrelationID,
			})
		}()

		next.ServeHTTP(w, r)
	})
}
