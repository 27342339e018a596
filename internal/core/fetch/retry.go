package fetch

import (
	"net/http"
	"time"

	"github.com/ossanalytics/ossanalytics/internal/core"
)

// DefaultMaxAttempts bounds the attempts made for one logical request.
const DefaultMaxAttempts = 3

// State is a step in the retry state machine.
type State int

const (
	StateAttempting State = iota
	StateWaiting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateWaiting:
		return "waiting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Decision is the transition chosen after an attempt.
type Decision struct {
	State     State
	Wait      time.Duration
	RateLimit core.RateLimitState
	Attempts  int
	// Reason is "rate_limit", "retry_after" or "" for the chosen wait.
	Reason string
}

// Classify maps one response to the next state. It has no side effects, so
// the whole retry policy can be exercised without a server or real sleeps.
func Classify(status int, header http.Header, attempt, maxAttempts int, now time.Time) Decision {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	if status >= 200 && status < 300 {
		return Decision{State: StateSucceeded, Attempts: attempt}
	}

	state := ParseRateLimit(header, now)
	decision := Decision{RateLimit: state, Attempts: attempt}

	switch {
	case state.Exhausted():
		decision.State = StateWaiting
		decision.Reason = "rate_limit"
		decision.Wait = state.ResetAt.Sub(now)
	case state.RetryAfter != nil:
		decision.State = StateWaiting
		decision.Reason = "retry_after"
		decision.Wait = *state.RetryAfter
	default:
		decision.State = StateFailed
		return decision
	}

	if attempt >= maxAttempts {
		decision.State = StateFailed
		decision.Wait = 0
		return decision
	}

	if decision.Wait <= 0 {
		decision.Wait = backoffFloor(attempt)
	}
	return decision
}

// backoffFloor is used when a throttling response names no usable delay.
func backoffFloor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Second << (attempt - 1)
}
