package metrics

import (
	"time"

	"github.com/pricewise/pricewise/internal/observability"
)

// Server lifecycle and health metrics
const (
	HealthCheckTotal    = "health_check_total"
	HealthCheckDuration = "health_check_duration_ms"
	ServerStartTime     = "server_start_time_seconds"
)

// counter emits a counter when telemetry is initialized.
func counter(name string, value float64, labels map[string]string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(name, value, labels)
	}
}

// RecordHealthCheck records one health check run and its outcome
// (healthy, unhealthy, timeout).
func RecordHealthCheck(check string, status string, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	counter(HealthCheckTotal, 1, map[string]string{
		"check":  check,
		"status": status,
	})
	_ = observability.TelemetrySystem.Histogram(HealthCheckDuration, duration, map[string]string{
		"check": check,
	})
}

// SetServerStartTime records when the HTTP server began accepting requests.
func SetServerStartTime(at time.Time) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(ServerStartTime, float64(at.Unix()), nil)
	}
}
