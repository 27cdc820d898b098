// Package ratelimit provides sliding-window admission control for outbound
// requests.
//
// The limiter admits at most maxRequests requests in any trailing window.
// Callers block in [Limiter.Acquire] until admission is granted or their
// context is cancelled.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Stats is a point-in-time view of the limiter for observability.
type Stats struct {
	// Current is the number of admissions inside the trailing window.
	Current int `json:"current"`

	// Remaining is how many more requests could be admitted right now.
	Remaining int `json:"remaining"`

	// MaxRequests is the configured window capacity.
	MaxRequests int `json:"max_requests"`

	// WindowSeconds is the configured window length in seconds.
	WindowSeconds float64 `json:"window_seconds"`
}

// Limiter is a sliding-window rate limiter safe for concurrent use.
//
// Admission timestamps are kept in a time-ordered queue guarded by a single
// mutex; the check-and-append in Acquire is one atomic section. Construct
// with [NewLimiter].
type Limiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	admitted    []time.Time

	now func() time.Time
}

// NewLimiter creates a limiter admitting at most maxRequests per trailing
// window.
func NewLimiter(maxRequests int, window time.Duration) *Limiter {
	return &Limiter{
		maxRequests: maxRequests,
		window:      window,
		admitted:    make([]time.Time, 0, maxRequests),
		now:         time.Now,
	}
}

// Acquire blocks until the caller is admitted or ctx is cancelled.
//
// When the window is at capacity the caller sleeps until the oldest admission
// leaves the window, then re-checks: another waiter may have taken the freed
// slot, so the loop continues until this caller wins a slot.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)

		if len(l.admitted) < l.maxRequests {
			l.admitted = append(l.admitted, now)
			l.mu.Unlock()
			return nil
		}

		wait := l.admitted[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		if wait <= 0 {
			// the oldest entry expired between prune and here; loop and retry
			continue
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

// Stats returns the current limiter state.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())

	remaining := l.maxRequests - len(l.admitted)
	if remaining < 0 {
		remaining = 0
	}
	return Stats{
		Current:       len(l.admitted),
		Remaining:     remaining,
		MaxRequests:   l.maxRequests,
		WindowSeconds: l.window.Seconds(),
	}
}

// prune drops admissions that have left the trailing window.
// Caller must hold l.mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	idx := 0
	for idx < len(l.admitted) && !l.admitted[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		l.admitted = append(l.admitted[:0], l.admitted[idx:]...)
	}
}
