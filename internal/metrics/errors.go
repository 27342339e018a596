package metrics

import (
	"strconv"

	"github.com/ossanalytics/ossanalytics/internal/observability"
)

// Error metric names.
const (
	ErrorsTotalName = "errors_total"
	PanicsTotalName = "panics_total"
)

// RecordError counts an HTTP error response by code and status.
func RecordError(errorCode string, httpStatus int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			ErrorsTotalName,
			1,
			map[string]string{
				"error_code":  errorCode,
				"http_status": strconv.Itoa(httpStatus),
			},
		)
	}
}

// RecordPanic counts a recovered handler panic.
func RecordPanic() {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(PanicsTotalName, 1, nil)
	}
}
