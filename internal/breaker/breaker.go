// Package breaker implements a circuit breaker guarding the upstream host.
//
// All monitored keys share one upstream, so one breaker instance gates every
// check. After a run of consecutive failures the breaker opens and checks are
// short-circuited without network calls until a cooldown elapses, at which
// point a single trial request decides whether the circuit closes again.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Allow] while the circuit is open.
//
// An ErrOpen outcome must not be fed back into the breaker as a failure;
// it represents a skipped attempt, not an observed one.
var ErrOpen = errors.New("circuit open")

// State is the breaker position.
type State string

const (
	// StateClosed passes attempts through. Initial state.
	StateClosed State = "CLOSED"

	// StateOpen short-circuits all attempts until the cooldown elapses.
	StateOpen State = "OPEN"

	// StateHalfOpen allows exactly one trial attempt through.
	StateHalfOpen State = "HALF_OPEN"
)

// Snapshot is a read-consistent view of the breaker for observability.
type Snapshot struct {
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	OpenedAt            time.Time `json:"opened_at,omitempty"`
	TrialInFlight       bool      `json:"trial_in_flight"`
}

// Breaker is a CLOSED/OPEN/HALF_OPEN circuit breaker safe for concurrent use.
//
// Usage per attempt: call [Breaker.Allow]; when it returns nil, perform the
// attempt and report the outcome with exactly one call to [Breaker.Success]
// or [Breaker.Failure]. When Allow returns [ErrOpen], skip the attempt and
// report nothing.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	cooldown         time.Duration

	state               State
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool

	now func() time.Time
}

// New creates a closed [Breaker] that opens after failureThreshold
// consecutive failures and stays open for cooldown before probing.
func New(failureThreshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		state:            StateClosed,
		now:              time.Now,
	}
}

// Allow reports whether an attempt may proceed.
//
// While open, Allow transitions to half-open once the cooldown has elapsed
// and admits the caller as the single trial; every other caller gets
// [ErrOpen] until the trial resolves via [Breaker.Success] or
// [Breaker.Failure].
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.trialInFlight = true
		return nil

	case StateHalfOpen:
		if b.trialInFlight {
			return ErrOpen
		}
		b.trialInFlight = true
		return nil
	}
	return nil
}

// Success records a successful attempt.
//
// In half-open state the trial succeeded and the circuit closes; in closed
// state the consecutive-failure count resets.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.state = StateClosed
		b.trialInFlight = false
		b.consecutiveFailures = 0
	case StateClosed:
		b.consecutiveFailures = 0
	}
}

// Failure records a failed attempt.
//
// In half-open state the trial failed and the circuit re-opens with a fresh
// cooldown; in closed state the failure count increments and the circuit
// opens once it reaches the threshold.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.state = StateOpen
		b.trialInFlight = false
		b.openedAt = b.now()
	case StateClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.failureThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	}
}

// Cancel releases an admitted attempt without recording an outcome.
//
// Used when an attempt is aborted (shutdown) rather than observed: a
// half-open trial slot is handed back so the next caller can probe, and no
// counters move.
func (b *Breaker) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.trialInFlight = false
	}
}

// State returns the current breaker position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns a read-consistent view of the breaker.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFailures,
		OpenedAt:            b.openedAt,
		TrialInFlight:       b.trialInFlight,
	}
}
