// Package config provides YAML configuration parsing for betawatch.
//
// This package enables running betawatch as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	keys:
//	  - abc12345
//	  - def67890
//	poll_interval: 1m
//	port: 8080
//
//	rate_limit:
//	  max_requests: 60
//	  window: 60s
//
//	notify:
//	  telegram:
//	    token: ${TELEGRAM_TOKEN}
//	    chat_id: ${TELEGRAM_CHAT_ID}
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// minPollInterval is the minimum allowed polling interval.
// This prevents accidental hammering of the upstream with overly
// aggressive polling.
const minPollInterval = 1 * time.Second

// Config is the root configuration structure for betawatch.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Keys are the beta keys to watch. At least one is required.
	Keys []string `yaml:"keys"`

	// BaseURL overrides the upstream join-page URL prefix.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	BaseURL string `yaml:"base_url"`

	// PollInterval is the time between check cycles.
	// Accepts duration strings like "30s", "1m". Defaults to 30s.
	PollInterval Duration `yaml:"poll_interval"`

	// Port is the HTTP API port. Defaults to 8080.
	Port int `yaml:"port"`

	// MaxConcurrency limits simultaneous key checks per cycle.
	MaxConcurrency int `yaml:"max_concurrency"`

	// Timeouts configures upstream fetch deadlines.
	Timeouts TimeoutsConfig `yaml:"timeouts"`

	// RateLimit configures the shared sliding-window rate limiter.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// CircuitBreaker configures the shared circuit breaker.
	CircuitBreaker BreakerConfig `yaml:"circuit_breaker"`

	// Retry configures backoff around failed fetch attempts.
	Retry RetryConfig `yaml:"retry"`

	// Cache configures the status cache.
	Cache CacheConfig `yaml:"cache"`

	// Heartbeat enables a periodic liveness signal when positive.
	Heartbeat Duration `yaml:"heartbeat"`

	// Notify configures alert delivery channels.
	Notify NotifyConfig `yaml:"notify"`
}

// TimeoutsConfig holds upstream fetch deadlines.
type TimeoutsConfig struct {
	// Connect is the TCP connection timeout.
	Connect Duration `yaml:"connect"`

	// Request is the total request timeout, including the body read.
	// Must exceed Connect.
	Request Duration `yaml:"request"`
}

// RateLimitConfig holds sliding-window rate limiter settings.
type RateLimitConfig struct {
	// MaxRequests is the window capacity.
	MaxRequests int `yaml:"max_requests"`

	// Window is the trailing window length.
	Window Duration `yaml:"window"`
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	// FailureThreshold is how many consecutive failures open the circuit.
	FailureThreshold int `yaml:"failure_threshold"`

	// Cooldown is how long the circuit stays open before a trial probe.
	Cooldown Duration `yaml:"cooldown"`
}

// RetryConfig holds retry settings for failed fetch attempts.
type RetryConfig struct {
	// MaxRetries is the total number of attempts.
	MaxRetries int `yaml:"max_retries"`

	// BaseDelay is the starting backoff delay, doubled per attempt.
	BaseDelay Duration `yaml:"base_delay"`
}

// CacheConfig holds status cache settings.
type CacheConfig struct {
	// TTL is how long successful results are reused.
	TTL Duration `yaml:"ttl"`

	// Capacity is the maximum number of cached keys.
	Capacity int `yaml:"capacity"`
}

// NotifyConfig holds alert delivery channels.
type NotifyConfig struct {
	// Telegram enables Telegram alerts when configured.
	Telegram *TelegramConfig `yaml:"telegram"`
}

// TelegramConfig holds Telegram Bot API credentials.
//
// Token and ChatID support environment variable substitution, so secrets
// can stay out of the config file:
//
//	telegram:
//	  token: ${TELEGRAM_TOKEN}
//	  chat_id: ${TELEGRAM_CHAT_ID}
type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID string `yaml:"chat_id"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in BaseURL and Telegram credentials.
// Validation is structural only; defaults for unset fields are applied by
// the watcher itself.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if len(c.Keys) == 0 {
		return errors.New("at least one key must be defined")
	}

	if c.PollInterval != 0 && c.PollInterval.Duration() < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", minPollInterval, c.PollInterval.Duration())
	}

	if c.Port != 0 && (c.Port < 1 || c.Port > 65535) {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency cannot be negative, got %d", c.MaxConcurrency)
	}

	if c.BaseURL != "" {
		expanded, err := expandEnvVars(c.BaseURL)
		if err != nil {
			return fmt.Errorf("base_url: %w", err)
		}
		c.BaseURL = expanded

		parsedURL, err := url.Parse(c.BaseURL)
		if err != nil {
			return fmt.Errorf("invalid base_url: %w", err)
		}
		if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			return fmt.Errorf("base_url scheme must be http or https, got %q", parsedURL.Scheme)
		}
	}

	if (c.Timeouts.Connect == 0) != (c.Timeouts.Request == 0) {
		return errors.New("timeouts: connect and request must be set together")
	}
	if c.Timeouts.Connect != 0 && c.Timeouts.Request.Duration() <= c.Timeouts.Connect.Duration() {
		return fmt.Errorf("timeouts: request (%s) must exceed connect (%s)",
			c.Timeouts.Request.Duration(), c.Timeouts.Connect.Duration())
	}

	if (c.RateLimit.MaxRequests == 0) != (c.RateLimit.Window == 0) {
		return errors.New("rate_limit: max_requests and window must be set together")
	}
	if c.RateLimit.MaxRequests < 0 {
		return fmt.Errorf("rate_limit: max_requests cannot be negative, got %d", c.RateLimit.MaxRequests)
	}

	if (c.CircuitBreaker.FailureThreshold == 0) != (c.CircuitBreaker.Cooldown == 0) {
		return errors.New("circuit_breaker: failure_threshold and cooldown must be set together")
	}
	if c.CircuitBreaker.FailureThreshold < 0 {
		return fmt.Errorf("circuit_breaker: failure_threshold cannot be negative, got %d", c.CircuitBreaker.FailureThreshold)
	}

	if (c.Retry.MaxRetries == 0) != (c.Retry.BaseDelay == 0) {
		return errors.New("retry: max_retries and base_delay must be set together")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry: max_retries cannot be negative, got %d", c.Retry.MaxRetries)
	}

	if (c.Cache.TTL == 0) != (c.Cache.Capacity == 0) {
		return errors.New("cache: ttl and capacity must be set together")
	}
	if c.Cache.Capacity < 0 {
		return fmt.Errorf("cache: capacity cannot be negative, got %d", c.Cache.Capacity)
	}

	if tg := c.Notify.Telegram; tg != nil {
		expanded, err := expandEnvVars(tg.Token)
		if err != nil {
			return fmt.Errorf("notify.telegram.token: %w", err)
		}
		tg.Token = expanded

		expanded, err = expandEnvVars(tg.ChatID)
		if err != nil {
			return fmt.Errorf("notify.telegram.chat_id: %w", err)
		}
		tg.ChatID = expanded

		if tg.Token == "" {
			return errors.New("notify.telegram: token is required")
		}
		if tg.ChatID == "" {
			return errors.New("notify.telegram: chat_id is required")
		}
	}

	return nil
}
