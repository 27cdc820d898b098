package track

import (
	"testing"

	"github.com/betawatch/betawatch/internal/parse"
)

func TestObserve_FirstOpenNotifies(t *testing.T) {
	tr := NewTracker()
	if !tr.Observe("abc12345", parse.StatusOpen) {
		t.Error("first open observation must notify")
	}
}

func TestObserve_RepeatedOpenDoesNotRenotify(t *testing.T) {
	tr := NewTracker()
	tr.Observe("abc12345", parse.StatusOpen)
	if tr.Observe("abc12345", parse.StatusOpen) {
		t.Error("open → open must not notify again")
	}
}

func TestObserve_ClosedToOpenNotifies(t *testing.T) {
	tr := NewTracker()
	tr.Observe("abc12345", parse.StatusClosed)
	if !tr.Observe("abc12345", parse.StatusOpen) {
		t.Error("closed → open must notify")
	}
}

func TestObserve_OpenFullOpenNotifiesOnReturn(t *testing.T) {
	tr := NewTracker()
	if !tr.Observe("abc12345", parse.StatusOpen) {
		t.Fatal("first open must notify")
	}
	if tr.Observe("abc12345", parse.StatusFull) {
		t.Error("open → full must not notify")
	}
	if !tr.Observe("abc12345", parse.StatusOpen) {
		t.Error("full → open must notify again")
	}
}

func TestObserve_NonOpenStatusesNeverNotify(t *testing.T) {
	for _, status := range []parse.Status{parse.StatusFull, parse.StatusClosed, parse.StatusUnknown, parse.StatusError} {
		tr := NewTracker()
		if tr.Observe("abc12345", status) {
			t.Errorf("first %q observation must not notify", status)
		}
	}
}

func TestObserve_RecordsRegardlessOfDecision(t *testing.T) {
	tr := NewTracker()
	tr.Observe("abc12345", parse.StatusFull)

	prev, ok := tr.Previous("abc12345")
	if !ok || prev != parse.StatusFull {
		t.Errorf("Previous() = %q, %v; want %q recorded despite notify=false", prev, ok, parse.StatusFull)
	}
}

func TestObserve_KeysAreIndependent(t *testing.T) {
	tr := NewTracker()
	tr.Observe("abc12345", parse.StatusOpen)

	if !tr.Observe("xyz98765", parse.StatusOpen) {
		t.Error("a different key's first open must notify independently")
	}
}

func TestShouldNotify_DoesNotRecord(t *testing.T) {
	tr := NewTracker()
	if !tr.ShouldNotify("abc12345", parse.StatusOpen) {
		t.Fatal("ShouldNotify() = false, want true for first open")
	}
	// the decision alone must not update state
	if !tr.ShouldNotify("abc12345", parse.StatusOpen) {
		t.Error("ShouldNotify() must be side-effect free")
	}

	tr.Record("abc12345", parse.StatusOpen)
	if tr.ShouldNotify("abc12345", parse.StatusOpen) {
		t.Error("ShouldNotify() = true after recording open, want false")
	}
}

func TestForget_ResetsKey(t *testing.T) {
	tr := NewTracker()
	tr.Observe("abc12345", parse.StatusOpen)
	tr.Forget("abc12345")

	if !tr.Observe("abc12345", parse.StatusOpen) {
		t.Error("a forgotten key behaves as never observed")
	}
}
