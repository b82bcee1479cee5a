package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/me/tickloop/pkg/model"
	"github.com/me/tickloop/pkg/ticker"
)

// Config holds configuration for tickd.
type Config struct {
	Rate           float64            `yaml:"rate"`            // Ticks per second (default 60)
	Spin           Duration           `yaml:"spin"`            // Busy-wait window before each tick boundary
	Addr           string             `yaml:"addr"`            // Listen address (default ":8080")
	LogLevel       string             `yaml:"log_level"`       // Log level: debug, info, warn, error
	LogFormat      string             `yaml:"log_format"`      // Log format: text, json
	DBPath         string             `yaml:"db_path"`         // SQLite database path (default ~/.tickd/tickd.db, ":memory:" for testing)
	SampleInterval Duration           `yaml:"sample_interval"` // How often the monitor records stats (default 1s)
	Entities       []model.EntitySpec `yaml:"entities"`        // Entities registered before the loop starts
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Rate:           ticker.DefaultRate,
		Addr:           ":8080",
		LogLevel:       "info",
		LogFormat:      "text",
		SampleInterval: Duration(time.Second),
	}
}

// LoadFile reads a YAML config file on top of DefaultConfig.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.Rate <= 0 {
		errs = append(errs, fmt.Errorf("rate must be positive, got %v", c.Rate))
	}
	if c.Spin < 0 {
		errs = append(errs, fmt.Errorf("spin must not be negative, got %s", c.Spin))
	}
	if c.SampleInterval <= 0 {
		errs = append(errs, fmt.Errorf("sample_interval must be positive, got %s", c.SampleInterval))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	for i, spec := range c.Entities {
		if spec.Kind == "" {
			errs = append(errs, fmt.Errorf("entities[%d]: kind is required", i))
		}
	}
	return errors.Join(errs...)
}

// Duration is a time.Duration written as a string ("250ms", "1s") in YAML.
type Duration time.Duration

// String returns the duration in time.Duration notation.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string: %w", node.Line, err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}
