// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/chorusml/chorus/pkg/errors"
)

// Policy controls retry behavior with exponential backoff.
type Policy struct {
	// MaxAttempts is the maximum number of attempts (must be >= 1).
	MaxAttempts int

	// BaseDelay is the backoff delay before the second attempt.
	BaseDelay time.Duration

	// MaxDelay caps the exponential backoff delay.
	MaxDelay time.Duration

	// Multiplier for exponential backoff (default 2.0).
	Multiplier float64

	// Jitter is the upper bound of the uniform random delay added to
	// each backoff to prevent thundering herd.
	Jitter time.Duration

	// Retryable determines if an error should be retried.
	// If nil, errors.IsRetryable is used.
	Retryable func(error) bool
}

// DefaultPolicy returns the production retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      250 * time.Millisecond,
		Retryable:   errors.IsRetryable,
	}
}

// TestPolicy returns the collapsed policy used in test environments:
// a single attempt with a short delay bound.
func TestPolicy() Policy {
	return Policy{
		MaxAttempts: 1,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		Multiplier:  1.0,
		Retryable:   errors.IsRetryable,
	}
}

// WithMaxAttempts returns a new policy with MaxAttempts set.
func (p Policy) WithMaxAttempts(n int) Policy {
	p.MaxAttempts = n
	return p
}

// WithBaseDelay returns a new policy with BaseDelay set.
func (p Policy) WithBaseDelay(d time.Duration) Policy {
	p.BaseDelay = d
	return p
}

// WithRetryable returns a new policy with the retry predicate set.
func (p Policy) WithRetryable(fn func(error) bool) Policy {
	p.Retryable = fn
	return p
}

// Do executes fn with retry logic, returning the last error if all
// attempts fail. If the context is done while sleeping between
// attempts, the last error is returned without further attempts.
func (p Policy) Do(ctx context.Context, fn func(context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Retryable == nil {
		p.Retryable = errors.IsRetryable
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := p.backoff(attempt)
			select {
			case <-ctx.Done():
				if lastErr != nil {
					return lastErr
				}
				return errors.Classify(ctx.Err())
			case <-time.After(delay):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !p.Retryable(err) {
			return err
		}
	}

	return lastErr
}

// backoff computes the delay before the given attempt (attempt >= 2):
// min(BaseDelay * Multiplier^(attempt-2), MaxDelay) + uniform(0, Jitter).
func (p Policy) backoff(attempt int) time.Duration {
	mult := p.Multiplier
	if mult == 0 {
		mult = 2.0
	}

	delay := time.Duration(float64(p.BaseDelay) * math.Pow(mult, float64(attempt-2)))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.Jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(p.Jitter)))
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}
