package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/errors"

	"github.com/karmalens/karmalens/internal/metrics"
)

// Check results reported per registered checker.
const (
	checkHealthy   = "healthy"
	checkUnhealthy = "unhealthy"
	checkTimeout   = "timeout"
	checkDegraded  = "degraded"
)

// HealthResponse is the aggregate /health body.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	Timestamp     string            `json:"timestamp"`
	UptimeSeconds int64             `json:"uptime_seconds,omitempty"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// ProbeResponse is the body of the live, ready and startup probes.
type ProbeResponse struct {
	Status    string    `json:"status"`
	Probe     string    `json:"probe"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthChecker is implemented by components that can report their health,
// such as the snapshot store.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// CheckerFunc adapts a function such as a store ping to HealthChecker
type CheckerFunc func(ctx context.Context) error

// CheckHealth calls f(ctx).
func (f CheckerFunc) CheckHealth(ctx context.Context) error {
	return f(ctx)
}

type probe struct {
	name    string
	timeout time.Duration
	failure string
}

var (
	aggregateProbe = probe{name: "aggregate", timeout: 5 * time.Second, failure: "aggregate health check failed"}
	liveProbe      = probe{name: "live", timeout: 2 * time.Second, failure: "liveness probe failed"}
	readyProbe     = probe{name: "ready", timeout: 5 * time.Second, failure: "readiness probe failed"}
	startupProbe   = probe{name: "startup", timeout: 3 * time.Second, failure: "startup probe failed"}
)

// HealthManager runs the registered checkers for each probe.
type HealthManager struct {
	Clock func() time.Time

	mu       sync.RWMutex
	checkers map[string]HealthChecker
	version  string
}

// NewHealthManager creates a manager reporting the given build version.
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		checkers: make(map[string]HealthChecker),
		version:  version,
	}
}

// RegisterChecker adds or replaces the checker reported under name.
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers[name] = checker
}

func (hm *HealthManager) now() time.Time {
	if hm.Clock != nil {
		return hm.Clock()
	}
	return time.Now()
}

func (hm *HealthManager) snapshot() ([]string, map[string]HealthChecker) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	names := make([]string, 0, len(hm.checkers))
	checkers := make(map[string]HealthChecker, len(hm.checkers))
	for name, checker := range hm.checkers {
		names = append(names, name)
		checkers[name] = checker
	}
	sort.Strings(names)
	return names, checkers
}

// runHealthChecks runs every checker in name order. Once ctx expires the
// remaining checkers are reported as timed out without being called.
func (hm *HealthManager) runHealthChecks(ctx context.Context) map[string]string {
	names, checkers := hm.snapshot()
	results := make(map[string]string, len(names))

	for _, name := range names {
		if ctx.Err() != nil {
			results[name] = checkTimeout
			continue
		}

		start := time.Now()
		err := checkers[name].CheckHealth(ctx)
		metrics.RecordHealthCheck(name, err == nil, time.Since(start))

		switch {
		case err == nil:
			results[name] = checkHealthy
		case ctx.Err() != nil:
			results[name] = checkTimeout
		default:
			results[name] = checkUnhealthy
		}
	}

	return results
}

// determineOverallStatus folds per-check results: any unhealthy check wins,
// then degraded or timed out checks, otherwise healthy.
func (hm *HealthManager) determineOverallStatus(checks map[string]string) string {
	status := checkHealthy
	for _, result := range checks {
		switch result {
		case checkUnhealthy:
			return checkUnhealthy
		case checkDegraded, checkTimeout:
			status = checkDegraded
		}
	}
	return status
}

// evaluate runs the checks for p. It writes the error response and returns
// false when the result is unhealthy.
func (hm *HealthManager) evaluate(w http.ResponseWriter, r *http.Request, p probe) (string, map[string]string, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), p.timeout)
	defer cancel()

	checks := hm.runHealthChecks(ctx)
	status := hm.determineOverallStatus(checks)
	if status == checkUnhealthy {
		envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", p.failure)
		respondWithError(w, r, enrichHealthEnvelope(envelope, p.name, status, checks))
		return status, checks, false
	}
	return status, checks, true
}

// HealthHandler serves the aggregate health report including server uptime.
func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status, checks, ok := hm.evaluate(w, r, aggregateProbe)
	if !ok {
		return
	}

	now := hm.now()
	writeHealthJSON(w, HealthResponse{
		Status:        status,
		Version:       hm.version,
		Timestamp:     now.UTC().Format(time.RFC3339),
		UptimeSeconds: int64(metrics.ObserveUptime(now) / time.Second),
		Checks:        checks,
	})
}

// LivenessHandler reports whether the process is running.
func (hm *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, liveProbe)
}

// ReadinessHandler reports whether the store and other dependencies can
// serve API traffic.
func (hm *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, readyProbe)
}

// StartupHandler reports whether initialization has completed.
func (hm *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, startupProbe)
}

func (hm *HealthManager) serveProbe(w http.ResponseWriter, r *http.Request, p probe) {
	status, _, ok := hm.evaluate(w, r, p)
	if !ok {
		return
	}
	writeHealthJSON(w, ProbeResponse{
		Status:    status,
		Probe:     p.name,
		Timestamp: hm.now().UTC(),
	})
}

func writeHealthJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}

func enrichHealthEnvelope(envelope *errors.ErrorEnvelope, probe, status string, checks map[string]string) *errors.ErrorEnvelope {
	if envelope == nil {
		return nil
	}

	details := map[string]interface{}{
		"status": status,
		"probe":  probe,
	}
	if len(checks) > 0 {
		details["checks"] = checks
	}
	envelope = envelope.WithDetails(details)

	contextData := map[string]interface{}{
		"status": status,
		"probe":  probe,
	}
	var failing []string
	for name, result := range checks {
		if result != checkHealthy {
			failing = append(failing, name)
		}
	}
	if len(failing) > 0 {
		sort.Strings(failing)
		contextData["unhealthy_checks"] = failing
	}

	envelope, _ = envelope.WithContext(contextData)
	return envelope
}

var (
	globalMu            sync.RWMutex
	globalHealthManager *HealthManager
)

// InitHealthManager replaces the process-wide health manager.
func InitHealthManager(version string) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalHealthManager = NewHealthManager(version)
}

// GetHealthManager returns the process-wide health manager, or nil.
func GetHealthManager() *HealthManager {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalHealthManager
}

func withGlobalManager(p probe, serve func(*HealthManager, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hm := GetHealthManager(); hm != nil {
			serve(hm, w, r)
			return
		}
		envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "health manager not initialized")
		respondWithError(w, r, enrichHealthEnvelope(envelope, p.name, "unknown", nil))
	}
}

// Package-level probe handlers backed by the process-wide manager.
var (
	HealthHandler    = withGlobalManager(aggregateProbe, (*HealthManager).HealthHandler)
	LivenessHandler  = withGlobalManager(liveProbe, (*HealthManager).LivenessHandler)
	ReadinessHandler = withGlobalManager(readyProbe, (*HealthManager).ReadinessHandler)
	StartupHandler   = withGlobalManager(startupProbe, (*HealthManager).StartupHandler)
)
