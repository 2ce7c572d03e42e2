package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/karmalens/karmalens/internal/observability"
)

// HTTP metric names
const (
	httpRequestsTotal     = "http_requests_total"
	httpRequestDuration   = "http_request_duration_ms"
	httpRequestSizeBytes  = "http_request_size_bytes"
	httpResponseSizeBytes = "http_response_size_bytes"
	httpErrorsTotal       = "http_errors_total"
)

// statusRecorder captures the status code and body size written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += int64(n)
	return n, err
}

// routeLabels maps raw paths to bounded labels when no chi pattern is
// available. Prefix entries end in "/".
var routeLabels = []struct {
	prefix string
	label  string
}{
	{"/health", "/health/*"},
	{"/version", "/version"},
	{"/metrics", "/metrics"},
	{"/api/users/", "/api/users/{username}"},
	{"/api/collect/", "/api/collect/{username}"},
}

// getEndpointPattern returns the chi route pattern for r, falling back to a
// fixed label set so usernames never become metric labels.
func getEndpointPattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	path := r.URL.Path
	if path == "/" {
		return "/"
	}
	for _, route := range routeLabels {
		if strings.HasSuffix(route.prefix, "/") {
			if strings.HasPrefix(path, route.prefix) {
				return route.label
			}
			continue
		}
		if path == route.prefix || strings.HasPrefix(path, route.prefix+"/") {
			return route.label
		}
	}
	return "/unknown"
}

func errorClass(status int) string {
	switch {
	case status >= 500:
		return "server_error"
	case status >= 400:
		return "client_error"
	default:
		return ""
	}
}

// RequestMetrics emits request count, latency, sizes and errors for each
// request, then logs the completed request with its request ID.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sys := observability.TelemetrySystem
		if sys == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		duration := time.Since(start)

		requestSize, _ := strconv.ParseInt(r.Header.Get("Content-Length"), 10, 64)
		endpoint := getEndpointPattern(r)
		status := strconv.Itoa(rec.status)

		labels := map[string]string{"method": r.Method, "endpoint": endpoint, "status": status}
		sizeLabels := map[string]string{"method": r.Method, "endpoint": endpoint}

		_ = sys.Counter(httpRequestsTotal, 1, labels)
		_ = sys.Histogram(httpRequestDuration, duration, labels)
		_ = sys.Gauge(httpRequestSizeBytes, float64(requestSize), sizeLabels)
		_ = sys.Gauge(httpResponseSizeBytes, float64(rec.bytes), sizeLabels)

		if class := errorClass(rec.status); class != "" {
			_ = sys.Counter(httpErrorsTotal, 1, map[string]string{
				"method":     r.Method,
				"endpoint":   endpoint,
				"status":     status,
				"error_type": class,
			})
		}

		if logger := observability.Logger(); logger != nil {
			logger.Info("HTTP request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("endpoint", endpoint),
				zap.Int("status", rec.status),
				zap.Duration("duration", duration),
				zap.Int64("request_size", requestSize),
				zap.Int64("response_size", rec.bytes),
				zap.String("request_id", GetRequestID(r.Context())),
			)
		}
	})
}
