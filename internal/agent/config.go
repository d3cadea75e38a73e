// Package agent runs the worker-side attendance client: heartbeat
// loop, offline queue and reconciled session state.
package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes "60s" style YAML scalars.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the agent's YAML configuration file.
type Config struct {
	ServerURL string `yaml:"server_url"`
	WorkerID  string `yaml:"worker_id"`
	DeviceID  string `yaml:"device_id"`

	// StateDir holds the queue file and persisted credentials.
	StateDir string `yaml:"state_dir"`

	HeartbeatInterval Duration `yaml:"heartbeat_interval"`
}

// LoadConfig reads and validates the agent configuration.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("server_url is required")
	}
	if cfg.WorkerID == "" {
		return nil, fmt.Errorf("worker_id is required")
	}
	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("state_dir is not set and home directory is unknown: %w", err)
		}
		cfg.StateDir = filepath.Join(home, ".attendance")
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = Duration(60 * time.Second)
	}

	return cfg, nil
}

// QueuePath returns the location of the durable queue file.
func (c *Config) QueuePath() string {
	return filepath.Join(c.StateDir, "queue.json")
}
