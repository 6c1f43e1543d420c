// Package retrypolicy implements exponential-backoff retry with jitter,
// error-kind classification, and deadline awareness.
package retrypolicy

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/thetangstr/vehiclesearch/domain"
)

// Policy configures backoff bounds for one operation class.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultPolicy returns conservative generic-upstream defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// Calculator produces successive backoff delays for a single retry loop.
// It is not safe for concurrent reuse across independent operations — one
// Calculator per call site.
type Calculator struct {
	policy     Policy
	retryCount int
}

// NewCalculator builds a Calculator for one retry loop.
func NewCalculator(p Policy) *Calculator {
	return &Calculator{policy: p}
}

func pow(base float64, exp int) float64 {
	if exp <= 0 {
		return 1
	}
	result := base
	for i := 1; i < exp; i++ {
		result *= base
	}
	return result
}

// NextDelay returns the delay before the next attempt and advances the
// internal retry counter, applying up to 25% jitter.
func (c *Calculator) NextDelay() time.Duration {
	delay := time.Duration(float64(c.policy.InitialDelay) * pow(c.policy.Multiplier, c.retryCount))
	if delay > c.policy.MaxDelay {
		delay = c.policy.MaxDelay
	}
	jitter := time.Duration(float64(delay) * 0.25 * rand.Float64())
	delay += jitter
	c.retryCount++
	return delay
}

// Reset zeroes the retry counter for reuse.
func (c *Calculator) Reset() {
	c.retryCount = 0
}

// Attempts reports how many NextDelay calls have been made so far.
func (c *Calculator) Attempts() int {
	return c.retryCount
}

// Do runs fn, retrying on retryable *domain.AdapterError up to
// policy.MaxAttempts, sleeping the backoff delay between attempts while
// honoring ctx's deadline. It returns the last error if every attempt
// fails, or immediately on a non-retryable error.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	calc := NewCalculator(p)
	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := calc.NextDelay()
			if deadline, ok := ctx.Deadline(); ok && time.Now().Add(delay).After(deadline) {
				return lastErr
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return lastErr
}

func isRetryable(err error) bool {
	var ae *domain.AdapterError
	if errors.As(err, &ae) {
		return ae.Retryable()
	}
	// Unclassified errors are assumed transient-once.
	return true
}
