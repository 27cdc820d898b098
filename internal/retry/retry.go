// Package retry wraps a single check attempt with exponential backoff.
//
// Delays grow as baseDelay·2^i with a small uniform jitter added so many
// keys failing at once do not retry in lockstep. Backoff sleeps abort
// promptly on context cancellation.
package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Policy configures retry behavior.
type Policy struct {
	// MaxRetries is the total number of attempts made.
	MaxRetries int

	// BaseDelay is the delay before the second attempt; subsequent delays
	// double from there.
	BaseDelay time.Duration
}

// Delay returns the backoff before retrying after attempt index i,
// including jitter: baseDelay·2^i plus a uniform draw from [0, 0.1·delay].
func (p Policy) Delay(i int) time.Duration {
	delay := p.BaseDelay << uint(i)
	jitter := time.Duration(rand.Float64() * 0.1 * float64(delay))
	return delay + jitter
}

// Do runs attempt up to p.MaxRetries times, sleeping between attempts while
// retryable reports the latest result as transient.
//
// Do returns the final result, the number of attempts made, and a non-nil
// error only when ctx was cancelled mid-backoff. A non-retryable result
// short-circuits immediately; exhausting all attempts returns the last
// result as-is for the caller to annotate.
func Do[T any](ctx context.Context, p Policy, attempt func(context.Context) T, retryable func(T) bool) (T, int, error) {
	var last T

	attempts := p.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		last = attempt(ctx)
		if !retryable(last) {
			return last, i + 1, nil
		}
		if i == attempts-1 {
			break
		}

		timer := time.NewTimer(p.Delay(i))
		select {
		case <-ctx.Done():
			timer.Stop()
			return last, i + 1, ctx.Err()
		case <-timer.C:
		}
	}

	return last, attempts, nil
}
