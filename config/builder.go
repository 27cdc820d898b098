package config

import (
	"github.com/betawatch/betawatch"
	"github.com/betawatch/betawatch/notify"
)

// BuildOptions converts parsed configuration into watcher options.
//
// Only fields present in the config produce options; unset fields fall
// through to the watcher's defaults. A configured Telegram channel is
// constructed here so credential errors surface before the watcher starts.
func BuildOptions(cfg *Config) ([]betawatch.Option, error) {
	opts := []betawatch.Option{
		betawatch.WithKeys(cfg.Keys...),
	}

	if cfg.BaseURL != "" {
		opts = append(opts, betawatch.WithBaseURL(cfg.BaseURL))
	}
	if cfg.PollInterval != 0 {
		opts = append(opts, betawatch.WithPollingInterval(cfg.PollInterval.Duration()))
	}
	if cfg.Port != 0 {
		opts = append(opts, betawatch.WithPort(cfg.Port))
	}
	if cfg.MaxConcurrency != 0 {
		opts = append(opts, betawatch.WithMaxConcurrency(cfg.MaxConcurrency))
	}
	if cfg.Timeouts.Connect != 0 {
		opts = append(opts, betawatch.WithTimeouts(cfg.Timeouts.Connect.Duration(), cfg.Timeouts.Request.Duration()))
	}
	if cfg.RateLimit.MaxRequests != 0 {
		opts = append(opts, betawatch.WithRateLimit(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window.Duration()))
	}
	if cfg.CircuitBreaker.FailureThreshold != 0 {
		opts = append(opts, betawatch.WithCircuitBreaker(cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.Cooldown.Duration()))
	}
	if cfg.Retry.MaxRetries != 0 {
		opts = append(opts, betawatch.WithRetry(cfg.Retry.MaxRetries, cfg.Retry.BaseDelay.Duration()))
	}
	if cfg.Cache.TTL != 0 {
		opts = append(opts, betawatch.WithCache(cfg.Cache.TTL.Duration(), cfg.Cache.Capacity))
	}
	if cfg.Heartbeat != 0 {
		opts = append(opts, betawatch.WithHeartbeat(cfg.Heartbeat.Duration()))
	}

	if tg := cfg.Notify.Telegram; tg != nil {
		notifier, err := notify.NewTelegram(notify.TelegramOptions{
			BotToken: tg.Token,
			ChatID:   tg.ChatID,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, betawatch.WithNotifier(notifier))
	}

	return opts, nil
}
