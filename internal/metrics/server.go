package metrics

import (
	"strconv"
	"time"
)

const (
	ActiveConnections   = "app_active_connections"
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"
	ServerStartTime     = "app_server_start_time_seconds"

	ErrorsTotalName      = "errors_total"
	PanicsTotalName      = "panics_total"
	ErrorsByEndpointName = "errors_by_endpoint"
)

// SetActiveConnections reports the open HTTP connection count.
func SetActiveConnections(n int64) {
	gauge(ActiveConnections, float64(n), nil)
}

// RecordHealthCheck counts one dependency check and its latency.
func RecordHealthCheck(check string, healthy bool, d time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	count(HealthCheckTotal, map[string]string{"check": check, "status": status})
	observe(HealthCheckDuration, d, map[string]string{"check": check})
}

// SetServerStartTime records when serve began listening (unix seconds).
func SetServerStartTime(unix int64) {
	gauge(ServerStartTime, float64(unix), nil)
}

// RecordError counts an error envelope written to a client.
func RecordError(code string, httpStatus int) {
	count(ErrorsTotalName, map[string]string{"error_code": code, "http_status": strconv.Itoa(httpStatus)})
}

// RecordErrorByEndpoint counts an error envelope per route pattern.
func RecordErrorByEndpoint(endpoint, code string) {
	count(ErrorsByEndpointName, map[string]string{"endpoint": endpoint, "error_code": code})
}

// RecordPanic counts a recovered handler panic.
func RecordPanic() {
	count(PanicsTotalName, nil)
}
