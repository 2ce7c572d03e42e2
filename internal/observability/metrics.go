package observability

import (
	"fmt"
	"net"
	"strconv"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/fulmenhq/gofulmen/telemetry/exporters"
)

// defaultMetricsPort is assumed when the exporter was asked for a random
// port and its bound address cannot be read back.
const defaultMetricsPort = 9090

var (
	// TelemetrySystem receives every counter, gauge and histogram. Metric
	// helpers are no-ops while it is nil.
	TelemetrySystem *telemetry.System

	// PrometheusExporter serves the scrape endpoint that /metrics proxies.
	PrometheusExporter *exporters.PrometheusExporter

	metricsPort int
)

// MetricsOptions configures the Prometheus exporter.
type MetricsOptions struct {
	// Namespace prefixes every metric name.
	Namespace string
	// Port is the exporter listen port; 0 picks a free port.
	Port int
}

// InitMetrics starts the Prometheus exporter and installs a telemetry
// system that emits to it.
func InitMetrics(opts MetricsOptions) error {
	port := opts.Port
	if port < 0 {
		port = 0
	}
	metricsPort = port

	exporter := exporters.NewPrometheusExporter(opts.Namespace, fmt.Sprintf(":%d", port))
	if err := exporter.Start(); err != nil {
		return fmt.Errorf("start prometheus exporter: %w", err)
	}
	PrometheusExporter = exporter

	if bound, err := portOf(exporter.GetAddr()); err == nil {
		metricsPort = bound
	} else if port == 0 {
		metricsPort = defaultMetricsPort
	}

	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: exporter})
	if err != nil {
		return fmt.Errorf("create telemetry system: %w", err)
	}
	TelemetrySystem = sys
	return nil
}

// MetricsEnabled reports whether InitMetrics completed.
func MetricsEnabled() bool {
	return TelemetrySystem != nil && PrometheusExporter != nil
}

// GetMetricsPort returns the port the exporter is listening on, or 0.
func GetMetricsPort() int {
	return metricsPort
}

// MetricsURL returns the loopback scrape URL of the exporter.
func MetricsURL() string {
	port := metricsPort
	if port == 0 {
		port = defaultMetricsPort
	}
	return "http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(port)) + "/metrics"
}

func portOf(addr string) (int, error) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(port)
}
