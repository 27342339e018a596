package core

import "time"

// RateLimitState is what a single response said about the caller's quota.
// Nil fields mean the response did not carry that signal. It informs the
// next attempt of the same logical request only and is never persisted.
type RateLimitState struct {
	Remaining  *int
	ResetAt    *time.Time
	RetryAfter *time.Duration
}

// Exhausted reports whether the quota is spent and a reset time is known.
func (s RateLimitState) Exhausted() bool {
	return s.Remaining != nil && *s.Remaining == 0 && s.ResetAt != nil
}
