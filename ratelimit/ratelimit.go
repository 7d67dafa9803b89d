// Package ratelimit provides the client-side token bucket that paces
// outbound requests to the compression service.
//
// Each transport attempt consumes exactly one token before any network I/O
// happens. Tokens refill continuously at the configured per-minute rate up
// to the burst capacity, so short bursts are served instantly while
// sustained traffic converges to the configured rate.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultPerMinute is the default sustained request budget.
	DefaultPerMinute = 300

	// DefaultBurst is the default bucket capacity.
	DefaultBurst = 10
)

// Limiter is a token bucket safe for concurrent use.
type Limiter struct {
	bucket *rate.Limiter
	limit  rate.Limit
}

// New creates a limiter sustaining perMinute requests per minute with the
// given burst capacity. Non-positive arguments fall back to the defaults.
func New(perMinute, burst int) *Limiter {
	if perMinute <= 0 {
		perMinute = DefaultPerMinute
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	limit := rate.Limit(float64(perMinute) / 60.0)
	return &Limiter{bucket: rate.NewLimiter(limit, burst), limit: limit}
}

// TryAcquire takes one token without blocking. When the bucket is empty it
// returns false plus the time until one full token has refilled; no token
// is consumed in that case.
func (l *Limiter) TryAcquire() (bool, time.Duration) {
	return l.TryAcquireAt(time.Now())
}

// TryAcquireAt is TryAcquire evaluated at an explicit instant. Tests use it
// to exercise refill behavior without real waiting.
func (l *Limiter) TryAcquireAt(now time.Time) (bool, time.Duration) {
	if l.bucket.AllowN(now, 1) {
		return true, 0
	}
	missing := 1 - l.bucket.TokensAt(now)
	if missing < 0 {
		missing = 0
	}
	wait := time.Duration(missing / float64(l.limit) * float64(time.Second))
	if wait <= 0 {
		wait = time.Millisecond
	}
	return false, wait
}

// Acquire blocks until one token is consumed or ctx is done. On
// cancellation it returns the context error and no token is consumed.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, wait := l.TryAcquire()
		if ok {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Tokens reports the tokens currently available.
func (l *Limiter) Tokens() float64 {
	return l.bucket.Tokens()
}

// TokensAt reports the tokens available at an explicit instant.
func (l *Limiter) TokensAt(now time.Time) float64 {
	return l.bucket.TokensAt(now)
}

// Burst reports the bucket capacity.
func (l *Limiter) Burst() int {
	return l.bucket.Burst()
}
