package notify

import (
	"context"
	"log/slog"

	"github.com/betawatch/betawatch"
)

// Log is a notifier that writes alerts to a [slog.Logger].
//
// Useful as a default when no delivery channel is configured, and as a
// secondary notifier so alerts always land in the logs.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a logging notifier. A nil logger uses [slog.Default].
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Notify logs the open transition.
func (l *Log) Notify(ctx context.Context, record betawatch.StatusRecord) error {
	l.logger.Info("beta is open",
		"key", record.Key,
		"display_name", record.DisplayName,
		"url", "https://testflight.apple.com/join/"+record.Key,
	)
	return nil
}

// Heartbeat logs a liveness message.
func (l *Log) Heartbeat(ctx context.Context) error {
	l.logger.Info("heartbeat")
	return nil
}
