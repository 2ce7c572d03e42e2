package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karmalens/karmalens/internal/observability"
)

func setupTelemetry(t *testing.T) *telemetrytesting.FakeCollector {
	t.Helper()

	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: collector})
	require.NoError(t, err)

	original := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() { observability.TelemetrySystem = original })

	return collector
}

func serve(handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRequestMetricsEmitsPerStatus(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantErrors bool
	}{
		{"snapshot list", http.StatusOK, false},
		{"untracked user", http.StatusNotFound, true},
		{"collection failed", http.StatusInternalServerError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := setupTelemetry(t)
			handler := RequestMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"success":true}`))
			}))

			rec := serve(handler, http.MethodPost, "/api/users", `{"username":"alice"}`)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, `{"success":true}`, rec.Body.String())
			assert.Positive(t, collector.CountMetricsByName(httpRequestsTotal))
			assert.Positive(t, collector.CountMetricsByName(httpRequestDuration))
			assert.Positive(t, collector.CountMetricsByName(httpRequestSizeBytes))
			assert.Positive(t, collector.CountMetricsByName(httpResponseSizeBytes))
			assert.Equal(t, tt.wantErrors, collector.CountMetricsByName(httpErrorsTotal) > 0)
		})
	}
}

func TestRequestMetricsPassThroughWithoutTelemetry(t *testing.T) {
	original := observability.TelemetrySystem
	observability.TelemetrySystem = nil
	t.Cleanup(func() { observability.TelemetrySystem = original })

	handler := RequestMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	assert.Equal(t, http.StatusAccepted, serve(handler, http.MethodGet, "/api/report", "").Code)
}

func TestRequestMetricsKeepsRequestID(t *testing.T) {
	collector := setupTelemetry(t)

	handler := RequestID(RequestMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "cron-run-7", GetRequestID(r.Context()))
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/collect", nil)
	req.Header.Set(RequestIDHeader, "cron-run-7")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "cron-run-7", rec.Header().Get(RequestIDHeader))
	assert.Positive(t, collector.CountMetricsByName(httpRequestsTotal))
}

func TestGetEndpointPattern(t *testing.T) {
	tests := map[string]string{
		"/health":                    "/health/*",
		"/health/ready":              "/health/*",
		"/healthz":                   "/unknown",
		"/version":                   "/version",
		"/metrics":                   "/metrics",
		"/api/users":                 "/unknown",
		"/api/users/alice/snapshots": "/api/users/{username}",
		"/api/collect/alice":         "/api/collect/{username}",
		"/api/unknown":               "/unknown",
		"/":                          "/",
	}

	for path, want := range tests {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, want, getEndpointPattern(httptest.NewRequest(http.MethodGet, path, nil)))
		})
	}
}

func TestErrorClass(t *testing.T) {
	assert.Equal(t, "", errorClass(http.StatusCreated))
	assert.Equal(t, "client_error", errorClass(http.StatusNotFound))
	assert.Equal(t, "server_error", errorClass(http.StatusServiceUnavailable))
}
