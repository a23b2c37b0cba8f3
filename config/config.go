// Package config loads the YAML configuration for the puttygo server
// binary: where to listen, where the profile store lives, and how to
// log and export telemetry.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so it can be written in YAML as "5s",
// "1m", and so on.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "5s" or "1m".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// LokiConfig configures an optional Grafana Loki logging sink.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Labels  map[string]string `yaml:"labels,omitempty"`
}

// LoggingConfig configures the process-wide zerolog logger.
type LoggingConfig struct {
	Level  string     `yaml:"level"`
	Format string     `yaml:"format"`
	Loki   LokiConfig `yaml:"loki"`
}

// TelemetryConfig configures the Prometheus metrics endpoint.
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// ProfileStoreConfig configures the YAML-backed named-connection-config
// store and its hot-reload behaviour.
type ProfileStoreConfig struct {
	Path         string   `yaml:"path"`
	PollInterval Duration `yaml:"poll_interval"`
}

// ServerConfig is the top-level configuration for the puttygo-server
// binary.
type ServerConfig struct {
	Listen    string             `yaml:"listen"`
	Profiles  ProfileStoreConfig `yaml:"profiles"`
	Logging   LoggingConfig      `yaml:"logging"`
	Telemetry TelemetryConfig    `yaml:"telemetry"`
	BusCapacity int              `yaml:"bus_capacity,omitempty"`
}

// Load reads and parses a ServerConfig from path.
func Load(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg ServerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Profiles.PollInterval.Duration == 0 {
		cfg.Profiles.PollInterval = Duration{Duration: 2 * time.Second}
	}
	return &cfg, nil
}
