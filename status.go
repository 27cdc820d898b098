package betawatch

import (
	"time"

	"github.com/betawatch/betawatch/internal/checker"
)

// Status represents the availability of a TestFlight beta.
//
// Status is a string type that can hold one of five predefined values:
// [StatusOpen], [StatusFull], [StatusClosed], [StatusUnknown], or
// [StatusError]. Using a string type allows for easy JSON serialization and
// human-readable logging while maintaining type safety through the defined
// constants.
type Status string

const (
	// StatusOpen indicates the beta is accepting new testers.
	StatusOpen Status = "open"

	// StatusFull indicates the beta has reached its tester limit.
	StatusFull Status = "full"

	// StatusClosed indicates the beta is no longer accepting testers.
	StatusClosed Status = "closed"

	// StatusUnknown indicates the page was fetched but matched no known
	// availability phrasing.
	StatusUnknown Status = "unknown"

	// StatusError indicates the check itself failed: a network error, an
	// HTTP error response, or a skipped attempt while the circuit is open.
	StatusError Status = "error"
)

// String returns the string representation of the status.
// This implements the fmt.Stringer interface.
func (s Status) String() string {
	return string(s)
}

// StatusRecord holds the outcome of checking a single beta key.
//
// StatusRecord is immutable after creation and contains all information
// about a check, including the determined status, the app's display name
// when it could be extracted, and error detail when the check failed.
type StatusRecord struct {
	// Key is the beta key that was checked.
	Key string

	// Status is the determined availability of the beta.
	Status Status

	// DisplayName is the app name extracted from the page title.
	// Empty when the title did not match the expected form.
	DisplayName string

	// RawSnippet contains bounded text from the status element, preserved
	// for debugging unrecognized pages.
	RawSnippet string

	// CheckedAt is the timestamp when the underlying fetch completed. For
	// cached results this is the original fetch time, not the read time.
	CheckedAt time.Time

	// ErrorDetail describes the failure when Status is [StatusError].
	// Empty otherwise.
	ErrorDetail string

	// FromCache is true when the record was answered from the status
	// cache without a network request.
	FromCache bool

	// Attempts is the number of fetch attempts the check took. Zero for
	// cache hits and checks skipped by the circuit breaker.
	Attempts int
}

// recordToPublic converts the checker's internal record to the public type.
func recordToPublic(rec checker.Record) StatusRecord {
	return StatusRecord{
		Key:         rec.Key,
		Status:      Status(rec.Status),
		DisplayName: rec.DisplayName,
		RawSnippet:  rec.RawSnippet,
		CheckedAt:   rec.FetchedAt,
		ErrorDetail: rec.ErrorDetail,
		FromCache:   rec.FromCache,
		Attempts:    rec.Attempts,
	}
}
