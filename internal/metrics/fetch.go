package metrics

import (
	"time"

	"github.com/ossanalytics/ossanalytics/internal/observability"
)

// Fetch metric names.
const (
	FetchRequestsTotal = "fetch_requests_total"
	FetchRetriesTotal  = "fetch_retries_total"
	FetchDurationMs    = "fetch_duration_ms"
)

// Fetch outcomes.
const (
	OutcomeCacheHit = "cache_hit"
	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
	OutcomeError    = "error"
)

// RecordFetch counts a finished request by upstream host and outcome.
func RecordFetch(source, outcome string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			FetchRequestsTotal,
			1,
			map[string]string{
				"source":  source,
				"outcome": outcome,
			},
		)
	}
}

// RecordRetry counts a throttled attempt that will be retried.
func RecordRetry(source, reason string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			FetchRetriesTotal,
			1,
			map[string]string{
				"source": source,
				"reason": reason,
			},
		)
	}
}

// RecordFetchDuration records the latency of one network attempt.
func RecordFetchDuration(source string, duration time.Duration) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Histogram(
			FetchDurationMs,
			duration,
			map[string]string{"source": source},
		)
	}
}
