package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pbaity/herald/pkg/models"
	"gopkg.in/yaml.v3"
)

// Defaults applied to fields left unset in the configuration file.
const (
	DefaultListenAddr     = ":8080"
	DefaultSidecarBaseURL = "http://localhost:3500"
	DefaultPubSubName     = "pubsub"
	DefaultStateStore     = "statestore"
	DefaultSource         = "herald"
	DefaultCallbackRoute  = "/api/v1/jobs/reminder-callback"
	DefaultTTLSeconds     = 86400
	DefaultTimeout        = 10 * time.Second
	DefaultConcurrency    = 4
	DefaultOutboxCapacity = 1000
)

// Load reads a YAML configuration file from the given path, unmarshals it
// into a models.Config struct, applies defaults, and validates it.
func Load(configPath string) (*models.Config, error) {
	yamlFile, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	var config models.Config
	if err := yaml.Unmarshal(yamlFile, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config file '%s': %w", configPath, err)
	}

	ApplyDefaults(&config)

	if err := Validate(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// ApplyDefaults fills in unset configuration fields with their defaults.
func ApplyDefaults(cfg *models.Config) {
	if cfg.Application.ListenAddr == "" {
		cfg.Application.ListenAddr = DefaultListenAddr
	}
	if cfg.Application.MaxConcurrency == 0 {
		cfg.Application.MaxConcurrency = DefaultConcurrency
	}
	if cfg.Application.OutboxCapacity == 0 {
		cfg.Application.OutboxCapacity = DefaultOutboxCapacity
	}
	if cfg.Sidecar.BaseURL == "" {
		cfg.Sidecar.BaseURL = DefaultSidecarBaseURL
	}
	if cfg.Sidecar.PubSubName == "" {
		cfg.Sidecar.PubSubName = DefaultPubSubName
	}
	if cfg.Sidecar.StateStore == "" {
		cfg.Sidecar.StateStore = DefaultStateStore
	}
	if cfg.Sidecar.Timeout.Duration == 0 {
		cfg.Sidecar.Timeout.Duration = DefaultTimeout
	}
	if cfg.Publish.Source == "" {
		cfg.Publish.Source = DefaultSource
	}
	if cfg.Idempotency.Backend == "" {
		cfg.Idempotency.Backend = "sidecar"
	}
	if cfg.Idempotency.TTLSeconds == 0 {
		cfg.Idempotency.TTLSeconds = DefaultTTLSeconds
	}
	if cfg.Reminder.CallbackRoute == "" {
		cfg.Reminder.CallbackRoute = DefaultCallbackRoute
	}
}
