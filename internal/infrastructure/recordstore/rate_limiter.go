// Package recordstore implements the remote record store API client.
package recordstore

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER - Token Bucket implementation
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiter implements the Token Bucket algorithm to control request rate
// against the records platform, which throttles aggressive clients.
type RateLimiter struct {
	mu sync.Mutex

	maxTokens   float64       // Maximum tokens in the bucket
	refillRate  float64       // Tokens added per second
	tokens      float64       // Current token count
	lastRefill  time.Time     // Last time tokens were added
	minInterval time.Duration // Minimum interval between requests
	lastRequest time.Time     // Time of last request
	waitTimeout time.Duration // Maximum time to wait for a token
	blockedTill time.Time     // Hard block after a 429 response
}

// RateLimiterConfig contains configuration for the rate limiter.
type RateLimiterConfig struct {
	// RequestsPerSecond is the maximum sustained request rate.
	RequestsPerSecond float64

	// BurstSize is the maximum number of requests that can be made in a burst.
	BurstSize int

	// MinInterval is the minimum time between requests (even with tokens available).
	MinInterval time.Duration

	// WaitTimeout is the maximum time to wait for a token.
	WaitTimeout time.Duration
}

// DefaultRateLimiterConfig returns conservative defaults for the records
// platform's published limits.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 4.0,
		BurstSize:         5,
		MinInterval:       100 * time.Millisecond,
		WaitTimeout:       30 * time.Second,
	}
}

// NewRateLimiter creates a new RateLimiter with the given configuration.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 4.0
	}
	if config.BurstSize <= 0 {
		config.BurstSize = 5
	}
	now := time.Now()
	return &RateLimiter{
		maxTokens:   float64(config.BurstSize),
		refillRate:  config.RequestsPerSecond,
		tokens:      float64(config.BurstSize), // Start with full bucket
		lastRefill:  now,
		minInterval: config.MinInterval,
		lastRequest: now.Add(-config.MinInterval), // Allow immediate first request
		waitTimeout: config.WaitTimeout,
	}
}

// ErrRateLimitWait is returned when a token could not be acquired within
// the configured wait timeout.
var ErrRateLimitWait = errors.New("recordstore: timed out waiting for rate limit token")

// Allow blocks until a request may proceed, the context is cancelled, or
// the wait timeout elapses.
func (r *RateLimiter) Allow(ctx context.Context) error {
	deadline := time.Now().Add(r.waitTimeout)

	for {
		wait := r.reserve()
		if wait <= 0 {
			return nil
		}
		if time.Now().Add(wait).After(deadline) {
			return ErrRateLimitWait
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// RecordRateLimitHit blocks further requests for the server-suggested
// duration after a 429 response.
func (r *RateLimiter) RecordRateLimitHit(retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	until := time.Now().Add(retryAfter)
	if until.After(r.blockedTill) {
		r.blockedTill = until
	}
}

// reserve takes a token if possible and returns 0, otherwise returns how
// long to wait before trying again.
func (r *RateLimiter) reserve() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	if now.Before(r.blockedTill) {
		return r.blockedTill.Sub(now)
	}

	// Refill
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.tokens += elapsed * r.refillRate
	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}
	r.lastRefill = now

	if sinceLast := now.Sub(r.lastRequest); sinceLast < r.minInterval {
		return r.minInterval - sinceLast
	}

	if r.tokens < 1 {
		deficit := 1 - r.tokens
		return time.Duration(deficit / r.refillRate * float64(time.Second))
	}

	r.tokens--
	r.lastRequest = now
	return 0
}
