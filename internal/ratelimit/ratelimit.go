// Package ratelimit provides an HTTP client that retries requests answered
// with 429 Too Many Requests, honoring Retry-After and falling back to capped
// exponential backoff.
package ratelimit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Config holds configuration for the rate-limiting HTTP client.
type Config struct {
	// MaxRetries is the number of retries after a 429. Zero disables retries.
	MaxRetries int

	// BaseDelay is the initial backoff delay when no Retry-After is sent.
	// Default: 1 second
	BaseDelay time.Duration

	// MaxDelay caps the backoff delay and any Retry-After value.
	// Default: 10 seconds
	MaxDelay time.Duration

	// EnableJitter adds ±20% random jitter to computed backoff delays.
	EnableJitter bool

	// HTTPClient performs the requests. Default: a client without timeout;
	// callers bound requests through the context.
	HTTPClient *http.Client

	// Stats is an optional tracker for rate limit events.
	Stats *Stats

	// Service names the remote service in error messages.
	Service string
}

// Client is an HTTP client that handles rate limiting with backoff.
type Client struct {
	httpClient   *http.Client
	maxRetries   int
	baseDelay    time.Duration
	maxDelay     time.Duration
	enableJitter bool
	stats        *Stats
	service      string
}

// NewClient creates a new rate-limiting HTTP client.
func NewClient(cfg Config) *Client {
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}

	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		httpClient:   httpClient,
		maxRetries:   maxRetries,
		baseDelay:    baseDelay,
		maxDelay:     maxDelay,
		enableJitter: cfg.EnableJitter,
		stats:        cfg.Stats,
		service:      cfg.Service,
	}
}

// Do sends a request with the given body and headers, retrying on 429.
// The body is re-sent on every attempt. Any non-429 response is returned to
// the caller, who owns closing its body.
func (c *Client) Do(ctx context.Context, method, url string, body []byte, header http.Header) (*http.Response, error) {
	var lastRetryAfter time.Duration

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		for k, vals := range header {
			for _, v := range vals {
				req.Header.Add(k, v)
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		if c.stats != nil {
			c.stats.RecordRateLimit()
		}

		retryAfter := ParseRetryAfter(resp.Header.Get("Retry-After"))
		if retryAfter != nil {
			lastRetryAfter = *retryAfter
		}

		if attempt >= c.maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.calculateBackoff(attempt, retryAfter)):
		}
	}

	return nil, &RateLimitError{
		Service:    c.service,
		RetryAfter: lastRetryAfter,
		Attempts:   c.maxRetries + 1,
	}
}

// calculateBackoff computes the delay before the next attempt.
func (c *Client) calculateBackoff(attempt int, retryAfter *time.Duration) time.Duration {
	if retryAfter != nil {
		if *retryAfter > c.maxDelay {
			return c.maxDelay
		}
		return *retryAfter
	}

	delay := c.baseDelay * time.Duration(math.Pow(2, float64(attempt)))
	if delay > c.maxDelay {
		delay = c.maxDelay
	}

	if c.enableJitter {
		jitterFactor := 0.8 + rand.Float64()*0.4
		delay = time.Duration(float64(delay) * jitterFactor)
	}

	return delay
}

// RateLimitError is returned when every attempt was answered with 429.
type RateLimitError struct {
	Service    string
	RetryAfter time.Duration // Last Retry-After sent by the server, zero if none
	Attempts   int
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	service := e.Service
	if service == "" {
		service = "API"
	}
	return fmt.Sprintf("%s rate limit exceeded after %d attempt(s)", service, e.Attempts)
}

// ParseRetryAfter parses the Retry-After header value in either seconds or
// HTTP-date form. Returns nil if the value is empty or invalid.
func ParseRetryAfter(value string) *time.Duration {
	if value == "" {
		return nil
	}

	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds < 0 {
			return nil
		}
		d := time.Duration(seconds) * time.Second
		return &d
	}

	if t, err := http.ParseTime(value); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return &d
	}

	return nil
}

// Stats tracks rate limit statistics.
type Stats struct {
	mu              sync.RWMutex
	rateLimitCount  int64
	lastRateLimitAt time.Time
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{}
}

// RecordRateLimit records a rate limit event.
func (s *Stats) RecordRateLimit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimitCount++
	s.lastRateLimitAt = time.Now()
}

// RateLimitCount returns the total number of rate limit events.
func (s *Stats) RateLimitCount() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rateLimitCount
}

// LastRateLimitTime returns the time of the last rate limit event.
func (s *Stats) LastRateLimitTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRateLimitAt
}
