package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/pbaity/herald/pkg/models"
)

// Validate checks the entire configuration for logical consistency and
// required fields.
func Validate(cfg *models.Config) error {
	if cfg == nil {
		return errors.New("config cannot be nil")
	}

	if err := validateApplicationSettings(&cfg.Application); err != nil {
		return fmt.Errorf("invalid application settings: %w", err)
	}
	if err := validateSidecarSettings(&cfg.Sidecar); err != nil {
		return fmt.Errorf("invalid sidecar settings: %w", err)
	}
	if err := validateRetryPolicy(&cfg.Publish.Retry, "publish.retry"); err != nil {
		return err
	}
	if err := validateIdempotencySettings(&cfg.Idempotency); err != nil {
		return fmt.Errorf("invalid idempotency settings: %w", err)
	}
	if err := validateReminderSettings(&cfg.Reminder); err != nil {
		return fmt.Errorf("invalid reminder settings: %w", err)
	}
	if err := validateConsumerSettings(&cfg.Consumers); err != nil {
		return fmt.Errorf("invalid consumer settings: %w", err)
	}

	return nil
}

func validateApplicationSettings(app *models.ApplicationSettings) error {
	if app.LogLevel != "" {
		level := strings.ToLower(app.LogLevel)
		if level != "debug" && level != "info" && level != "warn" && level != "error" {
			return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", app.LogLevel)
		}
	}
	if app.LogFormat != "" {
		format := strings.ToLower(app.LogFormat)
		if format != "text" && format != "json" {
			return fmt.Errorf("invalid log_format: %s (must be text or json)", app.LogFormat)
		}
	}
	if app.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency cannot be negative: %d", app.MaxConcurrency)
	}
	if app.OutboxCapacity < 0 {
		return fmt.Errorf("outbox_capacity cannot be negative: %d", app.OutboxCapacity)
	}
	return nil
}

func validateSidecarSettings(sc *models.SidecarSettings) error {
	if sc.BaseURL == "" {
		return errors.New("base_url cannot be empty")
	}
	u, err := url.Parse(sc.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url must be a valid URL: %s", sc.BaseURL)
	}
	if sc.PubSubName == "" {
		return errors.New("pubsub_name cannot be empty")
	}
	if sc.StateStore == "" {
		return errors.New("state_store cannot be empty")
	}
	if sc.Timeout.Duration < 0 {
		return errors.New("timeout cannot be negative")
	}
	return nil
}

func validateIdempotencySettings(idem *models.IdempotencySettings) error {
	switch idem.Backend {
	case "sidecar":
	case "redis":
		if idem.Redis.Addr == "" {
			return errors.New("redis.addr required when backend is redis")
		}
	default:
		return fmt.Errorf("invalid backend: %s (must be sidecar or redis)", idem.Backend)
	}
	if idem.TTLSeconds <= 0 {
		return fmt.Errorf("ttl_seconds must be positive: %d", idem.TTLSeconds)
	}
	return nil
}

func validateReminderSettings(rem *models.ReminderSettings) error {
	if rem.CallbackRoute == "" {
		return errors.New("callback_route cannot be empty")
	}
	if !strings.HasPrefix(rem.CallbackRoute, "/") {
		return fmt.Errorf("callback_route must start with '/': %s", rem.CallbackRoute)
	}
	return nil
}

func validateConsumerSettings(cons *models.ConsumerSettings) error {
	if cons.Audit.Enabled && cons.Audit.DBPath == "" {
		return errors.New("audit.db_path required when audit consumer is enabled")
	}
	if cons.Recurrence.Enabled && cons.Recurrence.ProducerAppID == "" {
		return errors.New("recurrence.producer_app_id required when recurrence consumer is enabled")
	}
	return nil
}

func validateRetryPolicy(policy *models.RetryPolicy, name string) error {
	if policy == nil {
		return nil
	}
	if policy.MaxRetries != nil && *policy.MaxRetries < 0 {
		return fmt.Errorf("%s: max_retries cannot be negative", name)
	}
	if policy.Delay != nil && *policy.Delay < 0 {
		return fmt.Errorf("%s: delay cannot be negative", name)
	}
	if policy.BackoffFactor != nil && *policy.BackoffFactor < 1.0 {
		return fmt.Errorf("%s: backoff_factor must be at least 1.0", name)
	}
	return nil
}
