// Package config loads, validates, and hot-reloads the substrate's
// configuration. Defaults first, then an optional YAML file, then
// environment variable overrides; the merged result is validated before use.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"watchtower/internal/alerting"
	"watchtower/internal/health"
	"watchtower/internal/logging"
	"watchtower/internal/metrics"
)

// Environment names the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// MetricsConfig tunes the registry, forwarder, and exporter.
type MetricsConfig struct {
	Namespace       string        `yaml:"namespace" validate:"required"`
	QueueSize       int           `yaml:"queue_size" validate:"gt=0"`
	EnqueueTimeout  time.Duration `yaml:"enqueue_timeout" validate:"gt=0"`
	MaxObservations int           `yaml:"max_observations" validate:"gt=0"`
	ExporterAddr    string        `yaml:"exporter_addr" validate:"required"`
}

// CacheConfig tunes the result cache.
type CacheConfig struct {
	MaxEntries int           `yaml:"max_entries" validate:"gt=0"`
	TTL        time.Duration `yaml:"ttl" validate:"gt=0"`
	Dir        string        `yaml:"dir"`
}

// ErrorsConfig tunes the error tracker.
type ErrorsConfig struct {
	MaxRecords int `yaml:"max_records" validate:"gt=0"`
}

// AlertingConfig tunes the alert manager and its channels.
type AlertingConfig struct {
	EvaluationInterval time.Duration         `yaml:"evaluation_interval" validate:"gt=0"`
	HistorySize        int                   `yaml:"history_size" validate:"gt=0"`
	Email              *alerting.EmailConfig `yaml:"email,omitempty"`
	ChatWebhookURL     string                `yaml:"chat_webhook_url" validate:"omitempty,url"`
	WebhookURL         string                `yaml:"webhook_url" validate:"omitempty,url"`
}

// HealthConfig tunes the health surface and its default checks.
type HealthConfig struct {
	Addr         string                    `yaml:"addr" validate:"required"`
	MaxSeries    int                       `yaml:"max_series"`
	RequiredDirs []string                  `yaml:"required_dirs"`
	Resources    health.ResourceThresholds `yaml:"resources"`
}

// Config is the full configuration tree.
type Config struct {
	Environment Environment    `yaml:"environment" validate:"oneof=development staging production"`
	Logging     logging.Config `yaml:"logging"`
	Metrics     MetricsConfig  `yaml:"metrics"`
	Cache       CacheConfig    `yaml:"cache"`
	Errors      ErrorsConfig   `yaml:"errors"`
	Alerting    AlertingConfig `yaml:"alerting"`
	Health      HealthConfig   `yaml:"health"`

	// Normalization holds the per-entity-type robust z-score parameters.
	// These are deployment tunables, hot-reloadable, never hard-coded.
	Normalization map[string]metrics.NormalizationParams `yaml:"normalization"`
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() *Config {
	cfg := &Config{
		Environment: Development,
		Logging: logging.Config{
			Level:    "info",
			Encoding: "json",
		},
		Metrics: MetricsConfig{
			Namespace:       "watchtower",
			QueueSize:       metrics.DefaultQueueSize,
			EnqueueTimeout:  metrics.DefaultEnqueueTimeout,
			MaxObservations: metrics.DefaultMaxObservations,
			ExporterAddr:    ":9090",
		},
		Cache: CacheConfig{
			MaxEntries: 512,
			TTL:        24 * time.Hour,
		},
		Errors: ErrorsConfig{
			MaxRecords: 500,
		},
		Alerting: AlertingConfig{
			EvaluationInterval: 30 * time.Second,
			HistorySize:        alerting.DefaultHistorySize,
		},
		Health: HealthConfig{
			Addr:      ":8081",
			MaxSeries: 5000,
			Resources: health.DefaultResourceThresholds(),
		},
		Normalization: map[string]metrics.NormalizationParams{},
	}
	return cfg
}

// Load builds the effective configuration: defaults, overlaid with the YAML
// file at path (skipped when path is empty or missing), overlaid with
// environment variables, then validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays the handful of operational knobs that deployments
// commonly set without shipping a file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("WATCHTOWER_ENV"); v != "" {
		cfg.Environment = Environment(v)
	}
	if v := os.Getenv("WATCHTOWER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WATCHTOWER_HEALTH_ADDR"); v != "" {
		cfg.Health.Addr = v
	}
	if v := os.Getenv("WATCHTOWER_EXPORTER_ADDR"); v != "" {
		cfg.Metrics.ExporterAddr = v
	}
	if v := os.Getenv("WATCHTOWER_CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("WATCHTOWER_CACHE_TTL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.Cache.TTL = time.Duration(secs) * time.Second
		}
	}
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IsProduction reports whether this is a production deployment.
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}
