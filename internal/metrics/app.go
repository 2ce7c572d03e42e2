package metrics

import (
	"sync/atomic"
	"time"

	"github.com/karmalens/karmalens/internal/observability"
)

// Command, tracking and server lifecycle metric names
const (
	CommandsTotal       = "commands_total"
	TrackedUsers        = "tracked_users"
	HealthChecksTotal   = "health_checks_total"
	HealthCheckDuration = "health_check_duration_ms"
	ServerStartTime     = "server_start_time_seconds"
	ServerUptime        = "server_uptime_seconds"
)

var serverStart atomic.Int64

func counter(name string, tags map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Counter(name, 1, tags)
	}
}

func gauge(name string, value float64, tags map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Gauge(name, value, tags)
	}
}

func histogram(name string, d time.Duration, tags map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Histogram(name, d, tags)
	}
}

func outcome(ok bool, pass, fail string) string {
	if ok {
		return pass
	}
	return fail
}

// RecordCommand counts a CLI command or API operation by result
func RecordCommand(command string, success bool) {
	counter(CommandsTotal, map[string]string{
		"command": command,
		"status":  outcome(success, "success", "failure"),
	})
}

// SetTrackedUsers publishes the size of the tracked-user list
func SetTrackedUsers(count int) {
	gauge(TrackedUsers, float64(count), nil)
}

// RecordHealthCheck records one named health check and how long it took
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	counter(HealthChecksTotal, map[string]string{
		"check":  checkName,
		"status": outcome(healthy, "healthy", "unhealthy"),
	})
	histogram(HealthCheckDuration, duration, map[string]string{"check": checkName})
}

// SetServerStartTime records the server start as a Unix timestamp and
// anchors later uptime observations to it.
func SetServerStartTime(timestamp int64) {
	serverStart.Store(timestamp)
	gauge(ServerStartTime, float64(timestamp), nil)
}

// SetServerUptime publishes the server uptime in seconds
func SetServerUptime(seconds int64) {
	gauge(ServerUptime, float64(seconds), nil)
}

// ObserveUptime publishes and returns the time elapsed since
// SetServerStartTime. It returns zero when the server was never started.
func ObserveUptime(now time.Time) time.Duration {
	start := serverStart.Load()
	if start == 0 {
		return 0
	}
	uptime := now.Sub(time.Unix(start, 0))
	if uptime < 0 {
		uptime = 0
	}
	SetServerUptime(int64(uptime / time.Second))
	return uptime
}
