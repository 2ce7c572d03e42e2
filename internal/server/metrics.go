package server

import (
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/karmalens/karmalens/internal/errors"
	"github.com/karmalens/karmalens/internal/observability"
)

var metricsProxyClient = &http.Client{
	Timeout: 5 * time.Second,
}

// hopHeaders are not copied from the exporter response.
var hopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// MetricsHandler serves /metrics on the API port by proxying the Prometheus
// exporter's scrape endpoint.
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	if observability.PrometheusExporter == nil {
		HandleError(w, r, apperrors.NewServiceUnavailableError("metrics exporter not initialized"))
		return
	}

	target := observability.MetricsURL()
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		HandleError(w, r, apperrors.WrapInternal(r.Context(), err, "unable to build metrics request"))
		return
	}
	if accept := r.Header.Get("Accept"); accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := metricsProxyClient.Do(req)
	if err != nil {
		envelope := apperrors.NewServiceUnavailableError("metrics exporter unreachable")
		envelope, _ = envelope.WithContext(map[string]interface{}{"metrics_url": target})
		HandleError(w, r, envelope)
		return
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup of exporter response

	for key, values := range resp.Header {
		if hopHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	if resp.Header.Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		if logger := observability.Logger(); logger != nil {
			logger.Warn("Failed to stream metrics response", zap.Error(err))
		}
	}
}
