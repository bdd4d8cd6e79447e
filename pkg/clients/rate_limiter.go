// Package clients provides shared client-side infrastructure for connectors:
// rate limiting and circuit breaking. Connectors reach these through
// BaseConnector rather than using the package directly.
package clients

import (
	"context"
	"sync"
	"time"
)

// RateLimiter controls the rate of operations against an external resource.
type RateLimiter interface {
	// Allow reports whether an operation may proceed immediately
	Allow() bool
	// Wait blocks until an operation may proceed or the context is done
	Wait(ctx context.Context) error
	// SetRate updates the sustained rate in operations per second
	SetRate(rate float64)
	// GetStats returns current limiter statistics
	GetStats() RateLimiterStats
}

// RateLimiterStats holds rate limiter counters for metrics reporting.
type RateLimiterStats struct {
	Rate            float64
	Burst           int
	AllowedRequests int64
	BlockedRequests int64
}

// NewRateLimiter creates a token bucket limiter with the given sustained
// rate (operations per second) and burst capacity.
func NewRateLimiter(rate int, burst int) RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &tokenBucketLimiter{
		rate:       float64(rate),
		burst:      burst,
		tokens:     float64(burst),
		lastRefill: time.Now(),
	}
}

type tokenBucketLimiter struct {
	mu         sync.Mutex
	rate       float64
	burst      int
	tokens     float64
	lastRefill time.Time
	allowed    int64
	blocked    int64
}

func (tb *tokenBucketLimiter) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.rate <= 0 {
		tb.allowed++
		return true
	}
	if tb.tokens >= 1 {
		tb.tokens--
		tb.allowed++
		return true
	}
	tb.blocked++
	return false
}

func (tb *tokenBucketLimiter) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		tb.refill()
		// A non-positive rate disables limiting entirely; without this
		// guard the wait computation below divides by zero.
		if tb.rate <= 0 {
			tb.allowed++
			tb.mu.Unlock()
			return nil
		}
		if tb.tokens >= 1 {
			tb.tokens--
			tb.allowed++
			tb.mu.Unlock()
			return nil
		}
		// Time until the next token becomes available
		wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.blocked++
		tb.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (tb *tokenBucketLimiter) SetRate(rate float64) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.rate = rate
}

func (tb *tokenBucketLimiter) GetStats() RateLimiterStats {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return RateLimiterStats{
		Rate:            tb.rate,
		Burst:           tb.burst,
		AllowedRequests: tb.allowed,
		BlockedRequests: tb.blocked,
	}
}

// refill adds tokens based on elapsed time. Callers must hold the mutex.
func (tb *tokenBucketLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.lastRefill = now

	tb.tokens += elapsed * tb.rate
	if tb.tokens > float64(tb.burst) {
		tb.tokens = float64(tb.burst)
	}
}
