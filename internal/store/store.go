package store

import "time"

// KeyStatus is the storage representation of one monitored key's latest
// check result, shaped for JSON serialization by the REST API. It is
// decoupled from the checker's internal types so the API surface can
// evolve independently.
type KeyStatus struct {
	// Key is the monitored beta key.
	Key string `json:"key"`

	// DisplayName is the app name extracted from the page, if known.
	DisplayName string `json:"display_name,omitempty"`

	// Status is the availability classification (e.g. "open", "full").
	Status string `json:"status"`

	// Error contains the error detail when Status is "error".
	// nil indicates no error.
	Error *string `json:"error"`

	// FromCache marks results answered from the status cache.
	FromCache bool `json:"from_cache"`

	// Attempts is how many fetch attempts the result took.
	Attempts int `json:"attempts"`

	// CheckedAt is the timestamp of the last completed check.
	CheckedAt time.Time `json:"checked_at"`
}

// Store defines the interface for recording and reading key statuses.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Update stores a new status, keyed by Key. Subsequent updates for
	// the same key replace the previous value.
	Update(status KeyStatus)

	// Get returns the stored status for key, if any.
	Get(key string) (KeyStatus, bool)

	// GetAll returns all currently stored statuses sorted by key.
	// The returned slice is a snapshot; modifications do not affect
	// the store.
	GetAll() []KeyStatus
}
