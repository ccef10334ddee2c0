// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - New returns a Config populated with defaults.
//   - Load layers a YAML file and environment variables on top of New.
//   - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"net/url"
	"runtime"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the gateway HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// BaseURL is the prediction service root, e.g. "http://localhost:5000".
	BaseURL string `koanf:"base_url"`

	// InvokeTimeoutMS bounds a single model invocation.
	InvokeTimeoutMS int `koanf:"invoke_timeout_ms"`

	// WorkerCount sets the number of invocation workers.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds the in-memory invocation queue.
	QueueSize int `koanf:"queue_size"`

	// DedupeSize bounds the submission request-id cache.
	DedupeSize int `koanf:"dedupe_size"`

	// GrowthModels is the ensemble used when a growth submission names no
	// models. Empty means every model in the prediction service catalog.
	GrowthModels []string `koanf:"growth_models"`

	// ClimateModel is the single fixed model id used by the climate domain.
	ClimateModel string `koanf:"climate_model"`

	// ClimateFields lists the bio variables a climate submission must carry.
	ClimateFields []string `koanf:"climate_fields"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		Addr:            ":9080",
		BaseURL:         "http://localhost:5000",
		InvokeTimeoutMS: 15_000,
		WorkerCount:     runtime.NumCPU() * 4,
		QueueSize:       1_024,
		DedupeSize:      10_000,
		GrowthModels:    nil,
		ClimateModel:    "default",
		ClimateFields:   []string{"bio1", "bio2", "bio3", "bio4", "bio5"},
	}
}

// InvokeTimeout returns InvokeTimeoutMS as a duration.
func (c *Config) InvokeTimeout() time.Duration {
	return time.Duration(c.InvokeTimeoutMS) * time.Millisecond
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: base_url must be an absolute URL, got %q", ErrInvalidConfig, c.BaseURL)
	}
	if c.InvokeTimeoutMS <= 0 {
		return fmt.Errorf("%w: invoke_timeout_ms must be positive", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.ClimateModel) == "" {
		return fmt.Errorf("%w: climate_model must not be empty", ErrInvalidConfig)
	}
	if len(c.ClimateFields) == 0 {
		return fmt.Errorf("%w: climate_fields must not be empty", ErrInvalidConfig)
	}
	return nil
}
