// Package track remembers the last observed status per key and decides when
// a transition warrants a notification.
//
// The rule is deliberately narrow: notify only on arrival at open, and only
// when the previous observation was something else (or absent). Repeated
// open observations never re-trigger, which is what keeps notification spam
// out of subscribers' inboxes.
package track

import (
	"sync"

	"github.com/betawatch/betawatch/internal/parse"
)

// Tracker holds per-key previous status, safe for concurrent use.
//
// Construct with [NewTracker]. Entries persist for as long as the key is
// monitored; call [Tracker.Forget] when a key is removed.
type Tracker struct {
	mu       sync.Mutex
	previous map[string]parse.Status
}

// NewTracker creates an empty [Tracker].
func NewTracker() *Tracker {
	return &Tracker{previous: make(map[string]parse.Status)}
}

// ShouldNotify reports whether observing next for key warrants a
// notification: true iff next is open and the previous observation is absent
// or not open.
func (t *Tracker) ShouldNotify(key string, next parse.Status) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shouldNotifyLocked(key, next)
}

// Record stores next as the latest observation for key, regardless of
// whether it triggered a notification.
func (t *Tracker) Record(key string, next parse.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.previous[key] = next
}

// Observe combines ShouldNotify and Record under one lock so the decision
// and the update cannot interleave with a concurrent observer of the same
// key.
func (t *Tracker) Observe(key string, next parse.Status) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	notify := t.shouldNotifyLocked(key, next)
	t.previous[key] = next
	return notify
}

// Previous returns the last recorded status for key, if any.
func (t *Tracker) Previous(key string) (parse.Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	status, ok := t.previous[key]
	return status, ok
}

// Forget drops the stored status for key.
func (t *Tracker) Forget(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.previous, key)
}

// shouldNotifyLocked applies the notification rule. Caller must hold t.mu.
func (t *Tracker) shouldNotifyLocked(key string, next parse.Status) bool {
	if next != parse.StatusOpen {
		return false
	}
	prev, seen := t.previous[key]
	return !seen || prev != parse.StatusOpen
}
