package webresource

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HeaderRetryAfter is the retry-after header (seconds or HTTP date).
const HeaderRetryAfter = "Retry-After"

// RateLimiter throttles downloads with a token bucket and honours per-host
// Retry-After backoff reported by servers.
type RateLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt map[string]time.Time
	now     func() time.Time
}

// NewRateLimiter creates a limiter allowing perSecond requests per second.
// Zero or negative disables throttling; Retry-After is honoured regardless.
func NewRateLimiter(perSecond float64) *RateLimiter {
	r := &RateLimiter{
		retryAt: make(map[string]time.Time),
		now:     time.Now,
	}
	if perSecond > 0 {
		burst := max(1, int(perSecond))
		r.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return r
}

// Wait blocks until a request to host may be made.
func (r *RateLimiter) Wait(ctx context.Context, host string) error {
	r.mu.Lock()
	retryAt := r.retryAt[host]
	r.mu.Unlock()

	if wait := retryAt.Sub(r.now()); wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}

	if r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}

// Record inspects a response and returns the server-requested delay, if any.
// The delay also applies to later requests to the same host.
func (r *RateLimiter) Record(host string, resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusServiceUnavailable {
		return 0
	}
	now := r.now()
	d := ParseRetryAfter(resp.Header.Get(HeaderRetryAfter), now)
	if d <= 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if at := now.Add(d); at.After(r.retryAt[host]) {
		r.retryAt[host] = at
	}
	return d
}

// ParseRetryAfter parses a Retry-After value given in seconds or as an HTTP date.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
