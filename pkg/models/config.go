package models

import "time"

// Config is the root configuration structure for the Herald application.
type Config struct {
	Application ApplicationSettings `yaml:"application"`
	Sidecar     SidecarSettings     `yaml:"sidecar"`
	Publish     PublishSettings     `yaml:"publish"`
	Idempotency IdempotencySettings `yaml:"idempotency"`
	Reminder    ReminderSettings    `yaml:"reminder"`
	Consumers   ConsumerSettings    `yaml:"consumers"`
}

// ApplicationSettings holds global configuration for the application.
type ApplicationSettings struct {
	LogLevel       string `yaml:"log_level"`       // e.g., "debug", "info", "warn", "error"
	LogFormat      string `yaml:"log_format"`      // e.g., "text", "json"
	ListenAddr     string `yaml:"listen_addr"`     // Address for the HTTP server (default ":8080")
	MaxConcurrency int    `yaml:"max_concurrency"` // Number of outbox dispatch workers
	OutboxCapacity int    `yaml:"outbox_capacity"` // Buffered capacity of the outbox intent queue
	OutboxPath     string `yaml:"outbox_path"`     // Optional file for persisting undispatched intents across restarts
}

// SidecarSettings configures the connection to the local sidecar that
// fronts the broker, the state store, the job scheduler, and service
// invocation.
type SidecarSettings struct {
	BaseURL    string   `yaml:"base_url"`    // e.g., "http://localhost:3500"
	PubSubName string   `yaml:"pubsub_name"` // Pub/sub component name (default "pubsub")
	StateStore string   `yaml:"state_store"` // State store component name (default "statestore")
	Timeout    Duration `yaml:"timeout"`     // Per-request timeout (default 10s)
}

// PublishSettings configures the event publisher.
type PublishSettings struct {
	Disabled bool        `yaml:"disabled"` // Local mode: build envelopes but skip broker I/O
	Source   string      `yaml:"source"`   // Producing service identifier stamped on envelopes
	Retry    RetryPolicy `yaml:"retry"`    // Retry policy for broker delivery
}

// IdempotencySettings configures the processed-marker store.
type IdempotencySettings struct {
	Backend    string        `yaml:"backend"`     // "sidecar" (default) or "redis"
	TTLSeconds int           `yaml:"ttl_seconds"` // Marker expiry (default 86400)
	Redis      RedisSettings `yaml:"redis"`
}

// RedisSettings configures the optional Redis marker store backend.
type RedisSettings struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ReminderSettings configures the scheduled-callback lifecycle.
type ReminderSettings struct {
	CallbackRoute string `yaml:"callback_route"` // Route the scheduler posts to when a job fires
}

// ConsumerSettings enables and configures the downstream consumers
// hosted by this process.
type ConsumerSettings struct {
	Audit        AuditSettings        `yaml:"audit"`
	Notification NotificationSettings `yaml:"notification"`
	Recurrence   RecurrenceSettings   `yaml:"recurrence"`
	Sync         SyncSettings         `yaml:"sync"`
}

// AuditSettings configures the compliance audit-log consumer.
type AuditSettings struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"` // SQLite database file path
}

// NotificationSettings configures the reminder notification consumer.
type NotificationSettings struct {
	Enabled bool `yaml:"enabled"`
}

// RecurrenceSettings configures the recurring-task generator consumer.
type RecurrenceSettings struct {
	Enabled       bool   `yaml:"enabled"`
	ProducerAppID string `yaml:"producer_app_id"` // App id of the service that owns task creation
}

// SyncSettings configures the WebSocket task-update fanout consumer.
type SyncSettings struct {
	Enabled bool `yaml:"enabled"`
}

// RetryPolicy defines the parameters for retrying failed operations.
// Pointers are used to distinguish between a value being explicitly set
// (even to 0 or 0.0) and not being set at all, allowing for proper merging
// with default policies.
type RetryPolicy struct {
	MaxRetries    *int     `yaml:"max_retries"`    // Max number of retries
	Delay         *float64 `yaml:"delay"`          // Initial delay in seconds
	BackoffFactor *float64 `yaml:"backoff_factor"` // Multiplier for exponential backoff (e.g., 2.0)
}

// Duration is a wrapper around time.Duration to allow parsing from YAML
// strings like "10s", "5m", "1h".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	var err error
	d.Duration, err = time.ParseDuration(s)
	return err
}
