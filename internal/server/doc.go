// Package server provides the HTTP API for betawatch.
//
// This package is internal to betawatch and handles all HTTP concerns:
//
//   - Liveness: "/healthz" for probes
//   - REST API: "/api/status" and "/api/status/{key}" for current statuses
//   - Observability: "/api/metrics" for check counters, rate limiter
//     occupancy, and circuit breaker state
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
//
// Users of the betawatch library should not need to interact with this
// package directly. The server is started automatically by the watcher.
package server
