package betawatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/betawatch/betawatch/internal/breaker"
	"github.com/betawatch/betawatch/internal/cache"
	"github.com/betawatch/betawatch/internal/checker"
	"github.com/betawatch/betawatch/internal/fetch"
	"github.com/betawatch/betawatch/internal/metrics"
	"github.com/betawatch/betawatch/internal/parse"
	"github.com/betawatch/betawatch/internal/ratelimit"
	"github.com/betawatch/betawatch/internal/retry"
	"github.com/betawatch/betawatch/internal/server"
	"github.com/betawatch/betawatch/internal/store"
	"github.com/betawatch/betawatch/internal/track"
)

const (
	defaultPollInterval     = 30 * time.Second
	defaultPort             = 8080
	defaultMaxConcurrency   = 5
	defaultConnectTimeout   = 5 * time.Second
	defaultRequestTimeout   = 10 * time.Second
	defaultRateMaxRequests  = 100
	defaultRateWindow       = 60 * time.Second
	defaultFailureThreshold = 5
	defaultCooldown         = 60 * time.Second
	defaultMaxRetries       = 3
	defaultBaseDelay        = time.Second
	defaultCacheTTL         = 5 * time.Minute
	defaultCacheCapacity    = 256
)

// Watcher is the main orchestrator for TestFlight beta monitoring.
//
// Watcher periodically checks the configured beta keys, stores their latest
// status, serves it over a small HTTP API, and alerts registered notifiers
// when a beta opens. It is created using [New] with functional options and
// started with [Watcher.Start].
//
// The typical lifecycle is:
//
//	w, err := betawatch.New(betawatch.WithKeys("abc12345"))
//	if err != nil {
//	    slog.Error("failed to create watcher", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	w.Start(ctx) // blocks until context cancelled
//
// The caller controls the lifecycle via the context. Cancel the context to
// trigger graceful shutdown.
type Watcher struct {
	keys           []string
	pollInterval   time.Duration
	port           int
	maxConcurrency int
	heartbeat      time.Duration
	notifiers      []Notifier
	logger         *slog.Logger

	checker   *checker.Checker
	limiter   *ratelimit.Limiter
	breaker   *breaker.Breaker
	collector *metrics.Collector
	store     *store.MemoryStore
}

// New creates a new [Watcher] instance with the given options.
//
// At least one key must be configured via [WithKey] or [WithKeys]. Other
// options have sensible defaults:
//   - Polling interval: 30 seconds
//   - Port: 8080
//   - Max concurrency: 5
//   - Rate limit: 100 requests per 60 seconds
//   - Circuit breaker: opens after 5 consecutive failures, 60 second cooldown
//   - Retry: 3 attempts, 1 second base delay
//   - Cache: 5 minute TTL, 256 entries
//
// Returns an error if no keys are configured or if any option is invalid.
func New(opts ...Option) (*Watcher, error) {
	cfg := &wConfig{
		pollInterval:     defaultPollInterval,
		port:             defaultPort,
		maxConcurrency:   defaultMaxConcurrency,
		connectTimeout:   defaultConnectTimeout,
		requestTimeout:   defaultRequestTimeout,
		rateMaxRequests:  defaultRateMaxRequests,
		rateWindow:       defaultRateWindow,
		failureThreshold: defaultFailureThreshold,
		cooldown:         defaultCooldown,
		maxRetries:       defaultMaxRetries,
		baseDelay:        defaultBaseDelay,
		cacheTTL:         defaultCacheTTL,
		cacheCapacity:    defaultCacheCapacity,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if len(cfg.keys) == 0 {
		return nil, errors.New("at least one key is required")
	}
	keys, err := dedupeKeys(cfg.keys)
	if err != nil {
		return nil, err
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := fetch.NewClient(fetch.Options{
		ConnectTimeout: cfg.connectTimeout,
		RequestTimeout: cfg.requestTimeout,
	})
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.NewLimiter(cfg.rateMaxRequests, cfg.rateWindow)
	brk := breaker.New(cfg.failureThreshold, cfg.cooldown)
	collector := metrics.NewCollector()

	chk := checker.New(
		checker.Config{
			BaseURL:  cfg.baseURL,
			CacheTTL: cfg.cacheTTL,
			Retry:    retry.Policy{MaxRetries: cfg.maxRetries, BaseDelay: cfg.baseDelay},
		},
		client,
		parse.NewParser(nil),
		limiter,
		brk,
		cache.New[checker.Record](cfg.cacheCapacity),
		track.NewTracker(),
		collector,
		logger,
	)

	return &Watcher{
		keys:           keys,
		pollInterval:   cfg.pollInterval,
		port:           cfg.port,
		maxConcurrency: cfg.maxConcurrency,
		heartbeat:      cfg.heartbeat,
		notifiers:      cfg.notifiers,
		logger:         logger,
		checker:        chk,
		limiter:        limiter,
		breaker:        brk,
		collector:      collector,
		store:          store.NewMemoryStore(),
	}, nil
}

// Check runs a single on-demand availability check for key.
//
// Check shares the watcher's cache, rate limiter, and circuit breaker, and
// updates the stored status, but does not trigger notifiers. It can be
// called whether or not the watcher is started.
func (w *Watcher) Check(ctx context.Context, key string) (StatusRecord, error) {
	outcome, err := w.checker.Check(ctx, key)
	if err != nil {
		return StatusRecord{}, err
	}
	record := recordToPublic(outcome.Record)
	w.store.Update(statusToStore(record))
	return record, nil
}

// Keys returns a copy of the watched keys.
func (w *Watcher) Keys() []string {
	cp := make([]string, len(w.keys))
	copy(cp, w.keys)
	return cp
}

// Port returns the configured HTTP port for the status API server.
func (w *Watcher) Port() int {
	return w.port
}

// PollingInterval returns the configured interval between check cycles.
func (w *Watcher) PollingInterval() time.Duration {
	return w.pollInterval
}

// Start begins checking keys and serving the status API.
//
// Start is a blocking call that runs until the provided context is
// cancelled. During execution:
//
//   - All configured keys are checked immediately, then at the configured interval
//   - The HTTP API starts on the configured port
//   - Notifiers fire when a beta transitions into open
//   - If configured, a heartbeat signal is emitted periodically
//
// The caller controls the lifecycle via context cancellation. For signal
// handling, use [signal.NotifyContext]:
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//	w.Start(ctx)
//
// Returns nil on graceful shutdown. Returns an error if the HTTP server
// fails to start.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info("betawatch starting", "key_count", len(w.keys))
	w.logger.Info("polling configured", "interval", w.pollInterval.String())
	w.logger.Info("api available", "url", fmt.Sprintf("http://localhost:%d", w.port))

	if ctx.Err() != nil {
		return nil
	}

	httpServer := server.NewServer(w.store, w.collector, w.limiter, w.breaker, w.port, w.logger)
	if err := httpServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	var wg sync.WaitGroup

	if w.heartbeat > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.runHeartbeat(ctx)
		}()
	}

	w.runCycle(ctx)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			w.logger.Info("betawatch stopped")
			return nil
		case <-ticker.C:
			w.runCycle(ctx)
		}
	}
}

// runCycle checks all keys concurrently, respecting maxConcurrency.
func (w *Watcher) runCycle(ctx context.Context) {
	jobs := make(chan string, len(w.keys))

	var wg sync.WaitGroup
	for i := 0; i < w.maxConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range jobs {
				w.checkKey(ctx, key)
			}
		}()
	}

	for _, key := range w.keys {
		select {
		case jobs <- key:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		}
	}
	close(jobs)

	wg.Wait()
}

// checkKey runs one check, records the result, and fires notifiers on an
// open transition.
func (w *Watcher) checkKey(ctx context.Context, key string) {
	outcome, err := w.checker.Check(ctx, key)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("check aborted", "key", key, "error", err)
		}
		return
	}

	record := recordToPublic(outcome.Record)
	// store update first, so notifiers observe persisted state
	w.store.Update(statusToStore(record))

	logAttrs := []any{
		"key", key,
		"status", record.Status,
		"from_cache", record.FromCache,
		"attempts", record.Attempts,
	}
	if record.Status == StatusError {
		w.logger.Warn("check completed with error", append(logAttrs, "error", record.ErrorDetail)...)
	} else {
		w.logger.Debug("check completed", logAttrs...)
	}

	if outcome.Notify {
		w.logger.Info("beta opened", "key", key, "display_name", record.DisplayName)
		for _, n := range w.notifiers {
			w.notifySafe(ctx, n, record)
		}
	}
}

// notifySafe invokes a notifier with panic recovery.
//
// Panics are logged with a correlation ID and full stack trace but do not
// propagate; a misbehaving notifier cannot crash the watcher.
func (w *Watcher) notifySafe(ctx context.Context, n Notifier, record StatusRecord) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			w.logger.Error("notifier panicked",
				"correlation_id", correlationID,
				"key", record.Key,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	if err := n.Notify(ctx, record); err != nil {
		w.logger.Error("notifier failed", "key", record.Key, "error", err)
	}
}

// runHeartbeat emits a periodic liveness signal until ctx is cancelled.
func (w *Watcher) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(w.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := w.collector.Snapshot()
			w.logger.Info("heartbeat", "total_checks", snap.TotalChecks, "failures", snap.FailureCount)
			for _, n := range w.notifiers {
				hb, ok := n.(Heartbeater)
				if !ok {
					continue
				}
				if err := hb.Heartbeat(ctx); err != nil {
					w.logger.Error("heartbeat delivery failed", "error", err)
				}
			}
		}
	}
}

// statusToStore converts a public record to its storage representation.
func statusToStore(r StatusRecord) store.KeyStatus {
	var errStr *string
	if r.ErrorDetail != "" {
		s := r.ErrorDetail
		errStr = &s
	}

	return store.KeyStatus{
		Key:         r.Key,
		DisplayName: r.DisplayName,
		Status:      string(r.Status),
		Error:       errStr,
		FromCache:   r.FromCache,
		Attempts:    r.Attempts,
		CheckedAt:   r.CheckedAt,
	}
}
