// Package retry implements the webhook retry subsystem: exponential
// backoff scheduling, batch reprocessing of due records, and the
// dead-letter path for exhausted ones.
package retry

import (
	"math"
	"math/rand"
	"time"

	"github.com/quotelane/lead_pipeline/internal/config"
)

// Policy holds the backoff tuning for retry scheduling
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      time.Duration
}

// DefaultPolicy returns the standard backoff policy: five attempts,
// one-second base delay doubling up to a five-minute cap, with up to one
// second of jitter either way
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    5 * time.Minute,
		Multiplier:  2,
		Jitter:      time.Second,
	}
}

// PolicyFromConfig builds a Policy from loaded configuration
func PolicyFromConfig(cfg config.RetryConfig) Policy {
	policy := Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
		Multiplier:  cfg.Multiplier,
		Jitter:      cfg.Jitter,
	}

	defaults := DefaultPolicy()
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = defaults.MaxAttempts
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = defaults.BaseDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = defaults.MaxDelay
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = defaults.Multiplier
	}

	return policy
}

// Delay returns the backoff delay before the given attempt (1-indexed):
// base * multiplier^(attempt-1), capped at MaxDelay, with random jitter
// applied in both directions. The result is never negative.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	backoff := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if backoff > float64(p.MaxDelay) {
		backoff = float64(p.MaxDelay)
	}

	delay := time.Duration(backoff)
	if p.Jitter > 0 {
		// jitter in [-Jitter, +Jitter]
		delay += time.Duration(rand.Int63n(int64(2*p.Jitter)+1)) - p.Jitter
	}

	if delay < 0 {
		delay = 0
	}
	return delay
}
