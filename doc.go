// Package betawatch provides a resilient watcher for TestFlight beta
// availability.
//
// Betawatch periodically fetches the public join page for each configured
// beta key, classifies the page into an availability status (open, full,
// closed, unknown, or error), and alerts registered notifiers the moment a
// beta transitions into open. All keys share a set of resilience
// primitives: a TTL'd LRU status cache, a sliding-window rate limiter, a
// circuit breaker, and retry with exponential backoff, so the watcher stays
// polite towards the upstream even under aggressive polling.
//
// # Quick Start
//
// Configure keys and start the watcher with graceful shutdown:
//
//	w, _ := betawatch.New(betawatch.WithKeys("abc12345", "def67890"))
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	w.Start(ctx) // blocks until context is cancelled
//
// # Configuration
//
// Betawatch uses the functional options pattern for configuration:
//
//	w, err := betawatch.New(
//	    betawatch.WithKeys("abc12345"),
//	    betawatch.WithPollingInterval(time.Minute),
//	    betawatch.WithRateLimit(60, time.Minute),
//	    betawatch.WithCircuitBreaker(5, 2*time.Minute),
//	    betawatch.WithNotifier(myNotifier),
//	)
//
// # Notifications
//
// A [Notifier] is called exactly once per transition into open: when a key
// is first seen open, or when it reopens after being full or closed.
// Repeated open observations stay silent. The notify subpackage provides
// ready-made Telegram and log notifiers.
//
// # Status API
//
// While running, the watcher serves a small JSON API:
//
//   - GET /healthz: liveness probe
//   - GET /api/status: latest status of every watched key
//   - GET /api/status/{key}: one key's status
//   - GET /api/metrics: check counters, rate limiter occupancy, breaker state
//
// # On-Demand Checks
//
// [Watcher.Check] runs a single check outside the polling loop, sharing the
// watcher's cache, rate limiter, and circuit breaker. The betawatch CLI's
// "check" command is a thin wrapper around it.
package betawatch
