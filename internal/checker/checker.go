// Package checker orchestrates a single resilient availability check.
//
// A check composes, in order: key validation, the status cache, the circuit
// breaker gate, rate-limited retry-wrapped fetching, page classification,
// and the bookkeeping that follows (cache write, breaker outcome, status
// transition tracking, metrics). Every outcome is normalized into a [Record];
// only invalid keys and context cancellation surface as errors.
package checker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/betawatch/betawatch/internal/breaker"
	"github.com/betawatch/betawatch/internal/cache"
	"github.com/betawatch/betawatch/internal/fetch"
	"github.com/betawatch/betawatch/internal/metrics"
	"github.com/betawatch/betawatch/internal/parse"
	"github.com/betawatch/betawatch/internal/ratelimit"
	"github.com/betawatch/betawatch/internal/retry"
	"github.com/betawatch/betawatch/internal/track"
)

// DefaultBaseURL is the upstream join-page prefix keys are appended to.
const DefaultBaseURL = "https://testflight.apple.com/join/"

// ErrInvalidKey is returned for keys that fail format validation.
// Validation happens before any network activity.
var ErrInvalidKey = errors.New("invalid key: must be 8-12 alphanumeric characters")

// keyPattern is the accepted key format.
var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9]{8,12}$`)

// ValidateKey reports whether key has the accepted format.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// Record is the immutable outcome of one completed check.
type Record struct {
	// Key is the monitored key this record describes.
	Key string

	// Status is the availability classification.
	Status parse.Status

	// DisplayName is the app name extracted from the page, if any.
	DisplayName string

	// RawSnippet is bounded diagnostic text from the page.
	RawSnippet string

	// FetchedAt is when the underlying page fetch completed (or the
	// cached record's original fetch time when FromCache is true).
	FetchedAt time.Time

	// ErrorDetail describes an error status. Empty otherwise.
	ErrorDetail string

	// FromCache marks records answered from the status cache.
	FromCache bool

	// Attempts is how many fetch attempts this record took.
	// Zero for cache hits and circuit-open short-circuits.
	Attempts int
}

// Outcome pairs a [Record] with its notification decision.
type Outcome struct {
	Record Record

	// Notify is true when this check observed a transition into open
	// that subscribers should hear about. Always false for cache hits
	// and for duplicate callers that joined an in-flight check.
	Notify bool
}

// Fetcher is the transport dependency; satisfied by [fetch.Client].
type Fetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string) (fetch.Response, error)
}

// Config carries the orchestration knobs.
type Config struct {
	// BaseURL is prepended to keys to form the page URL.
	// Empty defaults to [DefaultBaseURL].
	BaseURL string

	// CacheTTL is how long successful classifications stay cached.
	CacheTTL time.Duration

	// Retry is the backoff policy around fetch attempts.
	Retry retry.Policy
}

// inflight is one in-progress check that duplicate callers can join.
type inflight struct {
	done    chan struct{}
	outcome Outcome
	err     error
}

// Checker runs availability checks over shared resilience primitives.
//
// All monitored keys share one Checker: its fetcher, rate limiter, breaker,
// cache, tracker, and metrics instances are shared across keys.
// Construct with [New]; methods are safe for concurrent use.
type Checker struct {
	cfg     Config
	fetcher Fetcher
	parser  *parse.Parser
	limiter *ratelimit.Limiter
	brk     *breaker.Breaker
	cache   *cache.Cache[Record]
	tracker *track.Tracker
	metrics *metrics.Collector
	logger  *slog.Logger

	mu       sync.Mutex
	inflight map[string]*inflight
}

// New creates a [Checker] wiring together the shared primitives.
func New(
	cfg Config,
	fetcher Fetcher,
	parser *parse.Parser,
	limiter *ratelimit.Limiter,
	brk *breaker.Breaker,
	statusCache *cache.Cache[Record],
	tracker *track.Tracker,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Checker {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		cfg:      cfg,
		fetcher:  fetcher,
		parser:   parser,
		limiter:  limiter,
		brk:      brk,
		cache:    statusCache,
		tracker:  tracker,
		metrics:  collector,
		logger:   logger,
		inflight: make(map[string]*inflight),
	}
}

// Check runs one availability check for key.
//
// Invalid keys fail fast with [ErrInvalidKey] before any I/O. A concurrent
// duplicate check for the same key joins the in-flight one and shares its
// record, with Notify forced false so a transition is announced exactly once.
// If the in-flight leader is cancelled, a joiner whose own context is still
// live runs its own check instead of inheriting the leader's cancellation.
// All other failures are normalized into an error-status [Record]; the only
// other error return is context cancellation.
func (c *Checker) Check(ctx context.Context, key string) (Outcome, error) {
	if err := ValidateKey(key); err != nil {
		return Outcome{}, err
	}

	for {
		c.mu.Lock()
		fl, joined := c.inflight[key]
		if !joined {
			fl = &inflight{done: make(chan struct{})}
			c.inflight[key] = fl
		}
		c.mu.Unlock()

		if !joined {
			outcome, err := c.runCheck(ctx, key)

			fl.outcome = outcome
			fl.err = err
			c.mu.Lock()
			delete(c.inflight, key)
			c.mu.Unlock()
			close(fl.done)

			return outcome, err
		}

		select {
		case <-fl.done:
			if fl.err != nil {
				// the cancellation belonged to the leader, not us
				if ctx.Err() == nil && (errors.Is(fl.err, context.Canceled) ||
					errors.Is(fl.err, context.DeadlineExceeded)) {
					continue
				}
				return Outcome{}, fl.err
			}
			// the leader already announced any transition
			shared := fl.outcome
			shared.Notify = false
			return shared, nil
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
	}
}

// runCheck performs the actual check pipeline for the in-flight leader.
func (c *Checker) runCheck(ctx context.Context, key string) (Outcome, error) {
	if rec, ok := c.cache.Get(key); ok {
		rec.FromCache = true
		c.metrics.RecordCacheHit()
		c.metrics.RecordCheck(rec.Status, rec.Status != parse.StatusError)
		c.logger.Debug("cache hit", "key", key, "status", rec.Status)
		return Outcome{Record: rec}, nil
	}

	if err := c.brk.Allow(); err != nil {
		// skipped attempt: no network call, no breaker tally update
		rec := Record{
			Key:         key,
			Status:      parse.StatusError,
			FetchedAt:   time.Now(),
			ErrorDetail: "circuit open",
		}
		c.metrics.RecordCheck(rec.Status, false)
		c.logger.Debug("short-circuited", "key", key)
		return Outcome{Record: rec}, nil
	}

	rec, attempts, err := retry.Do(ctx, c.cfg.Retry,
		func(ctx context.Context) Record { return c.attempt(ctx, key) },
		func(r Record) bool { return r.Status == parse.StatusError },
	)
	rec.Attempts = attempts
	if err == nil && rec.Status == parse.StatusError && ctx.Err() != nil {
		// cancellation during the final attempt comes back as an
		// error-status record, not a retry.Do error; fold it into
		// the abort path so it never counts as an upstream failure
		err = ctx.Err()
	}
	if err != nil {
		// aborted, not observed: hand back any half-open trial slot
		c.brk.Cancel()
		return Outcome{}, err
	}

	if rec.Status == parse.StatusError {
		if attempts > 1 {
			rec.ErrorDetail = fmt.Sprintf("failed after %d attempts: %s", attempts, rec.ErrorDetail)
		}
		c.brk.Failure()
	} else {
		c.brk.Success()
		c.cache.Put(key, rec, c.cfg.CacheTTL)
	}

	notify := c.tracker.Observe(key, rec.Status)
	c.metrics.RecordCheck(rec.Status, rec.Status != parse.StatusError)

	return Outcome{Record: rec, Notify: notify}, nil
}

// attempt performs one rate-limited fetch+parse round.
//
// Admission is acquired per attempt so retries cannot exceed the sliding
// window either.
func (c *Checker) attempt(ctx context.Context, key string) Record {
	rec := Record{Key: key, FetchedAt: time.Now()}

	if err := c.limiter.Acquire(ctx); err != nil {
		rec.Status = parse.StatusError
		rec.ErrorDetail = "cancelled while waiting for rate limit"
		return rec
	}

	url := c.cfg.BaseURL + key
	resp, err := c.fetcher.Fetch(ctx, url, map[string]string{"Accept-Language": "en-us"})
	rec.FetchedAt = time.Now()
	if err != nil {
		rec.Status = parse.StatusError
		rec.ErrorDetail = networkErrorDetail(err)
		c.logger.Debug("fetch failed", "key", key, "error", err)
		return rec
	}

	result := c.parser.Page(resp.Body, resp.StatusCode)
	rec.Status = result.Status
	rec.DisplayName = result.DisplayName
	rec.RawSnippet = result.Snippet
	rec.ErrorDetail = result.ErrorDetail
	return rec
}

// networkErrorDetail renders a transport failure for the record.
func networkErrorDetail(err error) string {
	var netErr *fetch.NetworkError
	if errors.As(err, &netErr) {
		return fmt.Sprintf("%s error: %v", netErr.Kind, netErr.Err)
	}
	return err.Error()
}
