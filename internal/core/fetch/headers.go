package fetch

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ossanalytics/ossanalytics/internal/core"
)

// NormalizeHeaders flattens response headers into lower-case single values.
func NormalizeHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	keys := make([]string, 0, len(header))
	for key := range header {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		values := header[key]
		if len(values) == 0 {
			continue
		}
		out[strings.ToLower(key)] = strings.Join(values, ", ")
	}
	return out
}

// ParseRateLimit reads the quota and retry signals from a response.
func ParseRateLimit(header http.Header, now time.Time) core.RateLimitState {
	var state core.RateLimitState
	if header == nil {
		return state
	}

	if raw := strings.TrimSpace(header.Get("X-RateLimit-Remaining")); raw != "" {
		if remaining, err := strconv.Atoi(raw); err == nil {
			state.Remaining = &remaining
		}
	}

	if raw := strings.TrimSpace(header.Get("X-RateLimit-Reset")); raw != "" {
		if seconds, err := strconv.ParseInt(raw, 10, 64); err == nil {
			reset := time.Unix(seconds, 0).UTC()
			state.ResetAt = &reset
		}
	}

	if wait, ok := retryAfter(header, now); ok {
		state.RetryAfter = &wait
	}

	return state
}

// retryAfter accepts both delta-seconds and HTTP-date forms.
func retryAfter(header http.Header, now time.Time) (time.Duration, bool) {
	raw := strings.TrimSpace(header.Get("Retry-After"))
	if raw == "" {
		return 0, false
	}

	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		if seconds < 0 {
			seconds = 0
		}
		return time.Duration(seconds * float64(time.Second)), true
	}
	if parsed, err := http.ParseTime(raw); err == nil {
		wait := parsed.Sub(now)
		if wait < 0 {
			wait = 0
		}
		return wait, true
	}

	return 0, false
}

// FindRelLink returns the URL tagged with rel=name in a Link header value.
func FindRelLink(link string, name string) string {
	if strings.TrimSpace(link) == "" {
		return ""
	}

	for _, part := range strings.Split(link, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.TrimSpace(segments[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		target = strings.TrimSuffix(strings.TrimPrefix(target, "<"), ">")

		for _, param := range segments[1:] {
			key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
			if !ok || !strings.EqualFold(strings.TrimSpace(key), "rel") {
				continue
			}
			value = strings.Trim(strings.TrimSpace(value), `"`)
			for _, rel := range strings.Fields(value) {
				if rel == name {
					return target
				}
			}
		}
	}

	return ""
}
