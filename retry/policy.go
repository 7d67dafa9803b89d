// Package retry provides the backoff policy applied between transport
// attempts when a request fails with a retryable error.
//
// Delays grow exponentially from BaseDelay by Factor per attempt and are
// capped at MaxDelay. With Jitter enabled the slept delay is drawn
// uniformly from [0, delay), which spreads out retries from concurrent
// callers hitting the same outage.
package retry

import (
	crand "crypto/rand"
	"math"
	"math/big"
	"time"
)

const (
	// DefaultMaxAttempts is the default number of transport attempts
	// allowed per logical operation, the first attempt included.
	DefaultMaxAttempts = 3

	// DefaultBaseDelay is the delay scheduled after the first failed attempt.
	DefaultBaseDelay = 100 * time.Millisecond

	// DefaultMaxDelay caps the computed delay regardless of attempt number.
	DefaultMaxDelay = 10 * time.Second

	// DefaultFactor is the exponential growth factor between attempts.
	DefaultFactor = 2.0
)

// Policy controls how many attempts a logical operation may spend and how
// long to wait between them. The zero value is not directly usable; call
// Normalize to backfill missing fields with defaults.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Factor      float64
	Jitter      bool
}

// Default returns the policy used when the caller configures none.
func Default() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Factor:      DefaultFactor,
		Jitter:      true,
	}
}

// Normalize returns a copy of p with zero or out-of-range fields replaced
// by defaults. Jitter is left as set; false is a valid choice.
func (p Policy) Normalize() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.Factor < 1 {
		p.Factor = DefaultFactor
	}
	return p
}

// Delay returns the pre-jitter delay scheduled after the given attempt.
// Attempts are numbered from 1, so the delay after the first failed attempt
// is BaseDelay, after the second BaseDelay*Factor, and so on up to MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.BaseDelay) * math.Pow(p.Factor, float64(attempt-1))
	if limit := float64(p.MaxDelay); d > limit || math.IsInf(d, 1) {
		d = limit
	}
	return time.Duration(d)
}

// Backoff returns the delay to actually sleep after the given attempt.
// With Jitter enabled the result is uniform in [0, Delay(attempt)).
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.Delay(attempt)
	if !p.Jitter || d <= 0 {
		return d
	}
	n, err := crand.Int(crand.Reader, big.NewInt(int64(d)))
	if err != nil {
		// On RNG failure, fall back to the full delay
		return d
	}
	return time.Duration(n.Int64())
}
