package betawatch

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// wConfig holds mutable state during Watcher construction.
type wConfig struct {
	keys             []string
	baseURL          string
	pollInterval     time.Duration
	port             int
	maxConcurrency   int
	connectTimeout   time.Duration
	requestTimeout   time.Duration
	rateMaxRequests  int
	rateWindow       time.Duration
	failureThreshold int
	cooldown         time.Duration
	maxRetries       int
	baseDelay        time.Duration
	cacheTTL         time.Duration
	cacheCapacity    int
	heartbeat        time.Duration
	notifiers        []Notifier
	logger           *slog.Logger
}

// Option is a function that configures a [Watcher] instance during
// construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*wConfig) error

// WithKey adds a single beta key to the watch list.
//
// Can be called multiple times. At least one key must be configured for
// [New] to succeed. The key is validated immediately; see [ValidateKey].
func WithKey(key string) Option {
	return func(cfg *wConfig) error {
		if err := ValidateKey(key); err != nil {
			return err
		}
		cfg.keys = append(cfg.keys, key)
		return nil
	}
}

// WithKeys adds multiple beta keys to the watch list.
//
// Equivalent to calling [WithKey] for each key.
func WithKeys(keys ...string) Option {
	return func(cfg *wConfig) error {
		for _, key := range keys {
			if err := ValidateKey(key); err != nil {
				return err
			}
			cfg.keys = append(cfg.keys, key)
		}
		return nil
	}
}

// WithBaseURL overrides the upstream join-page URL prefix that keys are
// appended to. Defaults to the public TestFlight join URL. Intended for
// testing against local servers.
func WithBaseURL(url string) Option {
	return func(cfg *wConfig) error {
		if url == "" {
			return errors.New("base URL cannot be empty")
		}
		cfg.baseURL = url
		return nil
	}
}

// WithPollingInterval sets how often all keys are checked.
//
// Each polling cycle checks all keys concurrently (up to the
// [WithMaxConcurrency] limit). Defaults to 30 seconds if not specified.
//
// Returns an error if the duration is zero or negative.
func WithPollingInterval(d time.Duration) Option {
	return func(cfg *wConfig) error {
		if d <= 0 {
			return errors.New("polling interval must be positive")
		}
		cfg.pollInterval = d
		return nil
	}
}

// WithPort sets the HTTP port for the status API server.
//
// Defaults to 8080 if not specified. Returns an error if the port is
// outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *wConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithMaxConcurrency sets the maximum number of keys checked simultaneously
// during each polling cycle. Defaults to 5 if not specified.
//
// Note that the shared rate limiter bounds outbound requests regardless of
// this setting; concurrency above the rate limit only queues workers.
func WithMaxConcurrency(n int) Option {
	return func(cfg *wConfig) error {
		if n <= 0 {
			return errors.New("max concurrency must be positive")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithTimeouts sets the connection and total request timeouts for upstream
// fetches. The request timeout must exceed the connect timeout.
// Defaults to 5s connect, 10s request.
func WithTimeouts(connect, request time.Duration) Option {
	return func(cfg *wConfig) error {
		if connect <= 0 || request <= 0 {
			return errors.New("timeouts must be positive")
		}
		if request <= connect {
			return errors.New("request timeout must exceed connect timeout")
		}
		cfg.connectTimeout = connect
		cfg.requestTimeout = request
		return nil
	}
}

// WithRateLimit configures the sliding-window rate limiter shared by all
// keys: at most maxRequests upstream fetches within any trailing window.
// Defaults to 100 requests per 60 seconds.
func WithRateLimit(maxRequests int, window time.Duration) Option {
	return func(cfg *wConfig) error {
		if maxRequests <= 0 {
			return errors.New("rate limit max requests must be positive")
		}
		if window <= 0 {
			return errors.New("rate limit window must be positive")
		}
		cfg.rateMaxRequests = maxRequests
		cfg.rateWindow = window
		return nil
	}
}

// WithCircuitBreaker configures the shared circuit breaker: after
// failureThreshold consecutive failed checks the circuit opens and checks
// are skipped until cooldown elapses, then a single trial probe decides
// whether to close it again. Defaults to 5 failures, 60 second cooldown.
func WithCircuitBreaker(failureThreshold int, cooldown time.Duration) Option {
	return func(cfg *wConfig) error {
		if failureThreshold <= 0 {
			return errors.New("failure threshold must be positive")
		}
		if cooldown <= 0 {
			return errors.New("cooldown must be positive")
		}
		cfg.failureThreshold = failureThreshold
		cfg.cooldown = cooldown
		return nil
	}
}

// WithRetry configures retry behavior for failed fetch attempts:
// maxRetries total attempts with exponential backoff starting at baseDelay.
// Defaults to 3 attempts with a 1 second base delay.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(cfg *wConfig) error {
		if maxRetries <= 0 {
			return errors.New("max retries must be positive")
		}
		if baseDelay <= 0 {
			return errors.New("base delay must be positive")
		}
		cfg.maxRetries = maxRetries
		cfg.baseDelay = baseDelay
		return nil
	}
}

// WithCache configures the status cache: successful results are reused for
// ttl, and at most capacity keys are retained with least-recently-used
// eviction. Defaults to a 5 minute TTL and 256 entries.
func WithCache(ttl time.Duration, capacity int) Option {
	return func(cfg *wConfig) error {
		if ttl <= 0 {
			return errors.New("cache TTL must be positive")
		}
		if capacity <= 0 {
			return errors.New("cache capacity must be positive")
		}
		cfg.cacheTTL = ttl
		cfg.cacheCapacity = capacity
		return nil
	}
}

// WithHeartbeat enables a periodic liveness signal at the given interval.
//
// Notifiers implementing [Heartbeater] receive it; otherwise the heartbeat
// is only logged. Disabled by default.
func WithHeartbeat(interval time.Duration) Option {
	return func(cfg *wConfig) error {
		if interval <= 0 {
			return errors.New("heartbeat interval must be positive")
		}
		cfg.heartbeat = interval
		return nil
	}
}

// WithNotifier registers a [Notifier] to receive open-transition alerts.
//
// Multiple notifiers may be registered by calling WithNotifier multiple
// times; they are invoked in registration order. Panics within notifiers
// are recovered and logged; they do not crash the watcher.
//
// Nil notifiers are silently ignored.
func WithNotifier(n Notifier) Option {
	return func(cfg *wConfig) error {
		if n == nil {
			return nil
		}
		cfg.notifiers = append(cfg.notifiers, n)
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Watcher instance.
//
// This allows library consumers to control where logs are written and in
// what format. If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *wConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// dedupeKeys returns keys with duplicates removed, preserving order.
func dedupeKeys(keys []string) ([]string, error) {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if seen[key] {
			return nil, fmt.Errorf("duplicate key: %q", key)
		}
		seen[key] = true
		out = append(out, key)
	}
	return out, nil
}
