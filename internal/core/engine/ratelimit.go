package engine

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is the single coordination point for request budgets shared by
// concurrent collection tasks. It paces requests per endpoint with a token
// bucket; quota resets reported by a server stay with the request that saw
// them.
type RateLimiter struct {
	Limits map[string]RateLimit
	Margin float64

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// RateLimit represents a rate limit window.
type RateLimit struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// DefaultLimits provides conservative defaults per endpoint.
var DefaultLimits = map[string]RateLimit{
	"api.github.com":     {RequestsPerWindow: 5000, WindowDuration: time.Hour},
	"api.npmjs.org":      {RequestsPerWindow: 60, WindowDuration: time.Minute},
	"registry.npmjs.org": {RequestsPerWindow: 100, WindowDuration: time.Minute},
}

// Wait blocks until a request to endpoint fits the budget or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context, endpoint string) error {
	if r == nil {
		return nil
	}
	endpoint = strings.ToLower(strings.TrimSpace(endpoint))
	if endpoint == "" {
		return nil
	}
	return r.bucket(endpoint).Wait(ctx)
}

// ApplyOverrides merges per-endpoint request overrides (per minute).
func (r *RateLimiter) ApplyOverrides(overrides map[string]int) {
	if r == nil || len(overrides) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Limits == nil {
		r.Limits = make(map[string]RateLimit, len(DefaultLimits))
		for key, limit := range DefaultLimits {
			r.Limits[key] = limit
		}
	}

	for endpoint, value := range overrides {
		endpoint = strings.ToLower(strings.TrimSpace(endpoint))
		if endpoint == "" || value <= 0 {
			continue
		}
		r.Limits[endpoint] = RateLimit{
			RequestsPerWindow: value,
			WindowDuration:    time.Minute,
		}
		delete(r.buckets, endpoint)
	}
}

// ApplySafetyMargin adjusts the effective request limits by a ratio (0-1].
func (r *RateLimiter) ApplySafetyMargin(margin float64) {
	if r == nil {
		return
	}
	if margin <= 0 || margin > 1 {
		return
	}
	r.mu.Lock()
	r.Margin = margin
	r.buckets = nil
	r.mu.Unlock()
}

func (r *RateLimiter) bucket(endpoint string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.buckets == nil {
		r.buckets = make(map[string]*rate.Limiter)
	}
	if b, ok := r.buckets[endpoint]; ok {
		return b
	}

	limit := r.getLimit(endpoint)
	every := limit.WindowDuration / time.Duration(limit.RequestsPerWindow)
	b := rate.NewLimiter(rate.Every(every), limit.RequestsPerWindow)
	r.buckets[endpoint] = b
	return b
}

func (r *RateLimiter) getLimit(endpoint string) RateLimit {
	if r == nil {
		return RateLimit{RequestsPerWindow: 1, WindowDuration: time.Minute}
	}

	limits := r.Limits
	if limits == nil {
		limits = DefaultLimits
	}

	if limit, ok := limits[endpoint]; ok && limit.RequestsPerWindow > 0 && limit.WindowDuration > 0 {
		return r.applyMargin(limit)
	}

	return r.applyMargin(RateLimit{RequestsPerWindow: 30, WindowDuration: time.Minute})
}

func (r *RateLimiter) applyMargin(limit RateLimit) RateLimit {
	if r == nil || r.Margin <= 0 || r.Margin > 1 {
		return limit
	}
	adjusted := int(math.Floor(float64(limit.RequestsPerWindow) * r.Margin))
	if adjusted < 1 {
		adjusted = 1
	}
	limit.RequestsPerWindow = adjusted
	return limit
}
