// Package fetch issues cached, rate-limit aware GET requests against the
// GitHub and npm JSON APIs and walks their paginated listings.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/ossanalytics/ossanalytics/internal/core"
	"github.com/ossanalytics/ossanalytics/internal/core/cache"
	"github.com/ossanalytics/ossanalytics/internal/core/engine"
	"github.com/ossanalytics/ossanalytics/internal/metrics"
)

// maxBodyBytes caps a single response body.
const maxBodyBytes = 64 << 20

// Client performs GET requests through the response cache.
type Client struct {
	Cache       cache.Store
	HTTP        *http.Client
	Limiter     *engine.RateLimiter
	Logger      *logging.Logger
	MaxAttempts int
	UserAgent   string
	Clock       func() time.Time
	// Sleep blocks the calling goroutine only; it must honour ctx.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Options carries per-request headers.
type Options struct {
	Accept        string
	Authorization string
}

// Response is a successful (or cached) JSON response.
type Response struct {
	URL       string
	Headers   map[string]string
	Body      json.RawMessage
	FromCache bool
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if r == nil {
		return errors.New("nil response")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode %s: %w", r.URL, err)
	}
	return nil
}

// Request fetches rawURL, serving it from the cache when present. Rate
// limiting state is local to this call and its retries.
func (c *Client) Request(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	if c == nil {
		return nil, errors.New("fetch client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := cache.Key(rawURL); err != nil {
		return nil, err
	}
	source := sourceOf(rawURL)

	if c.Cache != nil {
		entry, err := c.Cache.Get(ctx, rawURL)
		switch {
		case err == nil:
			metrics.RecordFetch(source, metrics.OutcomeCacheHit)
			return &Response{URL: rawURL, Headers: entry.Headers, Body: entry.Body, FromCache: true}, nil
		case !errors.Is(err, cache.ErrNotFound):
			return nil, err
		}
	}

	maxAttempts := c.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	for attempt := 1; ; attempt++ {
		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx, source); err != nil {
				return nil, err
			}
		}

		c.debug("fetch", zap.String("url", rawURL), zap.Int("attempt", attempt))
		startedAt := time.Now()
		status, header, body, err := c.do(ctx, rawURL, opts)
		metrics.RecordFetchDuration(source, time.Since(startedAt))
		if err != nil {
			metrics.RecordFetch(source, metrics.OutcomeError)
			return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
		}

		decision := Classify(status, header, attempt, maxAttempts, c.now())
		switch decision.State {
		case StateSucceeded:
			if !json.Valid(body) {
				metrics.RecordFetch(source, metrics.OutcomeError)
				return nil, fmt.Errorf("fetch %s: response is not valid JSON", rawURL)
			}
			headers := NormalizeHeaders(header)
			if c.Cache != nil {
				entry := &core.CacheEntry{URL: rawURL, Headers: headers, Body: json.RawMessage(body)}
				if err := c.Cache.Put(ctx, rawURL, entry); err != nil {
					return nil, fmt.Errorf("cache %s: %w", rawURL, err)
				}
			}
			metrics.RecordFetch(source, metrics.OutcomeSuccess)
			return &Response{URL: rawURL, Headers: headers, Body: json.RawMessage(body)}, nil

		case StateWaiting:
			metrics.RecordRetry(source, decision.Reason)
			c.warn("request throttled, waiting before retry",
				zap.String("url", rawURL),
				zap.Int("status", status),
				zap.Int("attempt", attempt),
				zap.String("reason", decision.Reason),
				zap.Duration("wait", decision.Wait))
			if err := c.sleep(ctx, decision.Wait); err != nil {
				return nil, err
			}

		default:
			metrics.RecordFetch(source, metrics.OutcomeFailed)
			return nil, &FetchError{URL: rawURL, Status: status, Attempts: decision.Attempts}
		}
	}
}

func (c *Client) do(ctx context.Context, rawURL string, opts Options) (int, http.Header, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, nil, err
	}

	accept := strings.TrimSpace(opts.Accept)
	if accept == "" {
		accept = "application/json"
	}
	req.Header.Set("Accept", accept)
	if auth := strings.TrimSpace(opts.Authorization); auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	client := c.HTTP
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, resp.Header, body, nil
}

func (c *Client) now() time.Time {
	if c != nil && c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

func (c *Client) debug(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Debug(msg, fields...)
	}
}

func (c *Client) warn(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Warn(msg, fields...)
	}
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func sourceOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}
