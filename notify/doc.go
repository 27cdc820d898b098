// Package notify provides ready-made [betawatch.Notifier] implementations.
//
// Two notifiers are included:
//
//   - [Telegram]: delivers alerts to a Telegram chat via the Bot API
//   - [Log]: writes alerts to a structured logger
//
// Both also implement [betawatch.Heartbeater], so they deliver periodic
// liveness signals when the watcher is configured with a heartbeat.
package notify
