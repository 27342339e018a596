package metrics

import (
	"time"

	"github.com/ossanalytics/ossanalytics/internal/observability"
)

// Collection metric names.
const (
	PackagesCollectedTotal = "packages_collected_total"
	CollectDurationMs      = "collect_duration_ms"
	DatasetsServed         = "datasets_served"
)

// RecordPackageCollected counts a finished package collection.
func RecordPackageCollected(pkg string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			PackagesCollectedTotal,
			1,
			map[string]string{"status": status},
		)
		_ = observability.TelemetrySystem.Histogram(
			CollectDurationMs,
			duration,
			map[string]string{"package": pkg},
		)
	}
}

// SetDatasetsServed reports how many package datasets the server exposes.
func SetDatasetsServed(count int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(DatasetsServed, float64(count), nil)
	}
}
