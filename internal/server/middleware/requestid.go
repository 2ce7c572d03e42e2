package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds caller-supplied IDs before they reach logs and
// error envelopes.
const maxRequestIDLength = 64

type requestIDContextKey string

// RequestIDContextKey is the context key holding the request ID.
const RequestIDContextKey requestIDContextKey = "request_id"

// RequestID assigns every request an ID, echoes it in the response header and
// stores it in the request context. A caller-supplied X-Request-ID (for
// example from a cron runner) is reused when it is short and made of
// letters, digits, dots, underscores or hyphens; otherwise a UUID is generated.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		if requestID == "" && validRequestID(r.Header.Get(RequestIDHeader)) {
			requestID = r.Header.Get(RequestIDHeader)
		}
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), requestID)))
	})
}

// WithRequestID returns a copy of ctx carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDContextKey, id)
}

// GetRequestID returns the request ID stored by RequestID or chi's
// middleware.RequestID, or "" when neither ran.
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if requestID, ok := ctx.Value(RequestIDContextKey).(string); ok {
		return requestID
	}
	return middleware.GetReqID(ctx)
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.':
		default:
			return false
		}
	}
	return true
}
