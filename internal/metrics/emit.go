// Package metrics names and emits the storelens Prometheus metrics. Every
// helper is a no-op until observability.InitMetrics installs the telemetry
// system, so CLI runs pay nothing.
package metrics

import (
	"time"

	"github.com/storelens/storelens/internal/observability"
)

func count(name string, labels map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Counter(name, 1, labels)
	}
}

func gauge(name string, value float64, labels map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Gauge(name, value, labels)
	}
}

func observe(name string, d time.Duration, labels map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Histogram(name, d, labels)
	}
}
