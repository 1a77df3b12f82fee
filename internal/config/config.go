// Package config handles node configuration from YAML/env/CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	DefaultMulticastGroup = "239.255.77.77"
	DefaultMulticastPort  = 7777
	DefaultMetricsAddr    = "127.0.0.1:9090"
	DefaultConfigPath     = "/etc/quietmesh/node.yaml"
	DefaultLogLevel       = "info"
)

// Config defines a node's configuration.
type Config struct {
	// Node identity
	NodeID string `yaml:"node_id"` // auto-generated UUID if empty

	// Transport
	MulticastGroup string `yaml:"multicast_group"` // default 239.255.77.77
	MulticastPort  int    `yaml:"multicast_port"`  // default 7777

	// Rooms
	AutoJoinRooms []string `yaml:"auto_join_rooms"` // public_* room names to subscribe at startup

	// Logging
	LogLevel string `yaml:"log_level"` // debug|info|warn|error

	// Observability
	MetricsAddr string `yaml:"metrics_addr"` // listen address for /metrics and /healthz, "" disables
}

// DefaultConfig returns a Config with sane defaults.
func DefaultConfig() *Config {
	return &Config{
		MulticastGroup: DefaultMulticastGroup,
		MulticastPort:  DefaultMulticastPort,
		LogLevel:       DefaultLogLevel,
		MetricsAddr:    DefaultMetricsAddr,
	}
}

// LoadFromFile loads configuration from a YAML file, falling back to
// defaults if the file does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// ApplyEnvOverrides applies environment variable overrides.
// Env vars: QUIETMESH_NODE_ID, QUIETMESH_LOG_LEVEL, QUIETMESH_METRICS_ADDR.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("QUIETMESH_NODE_ID"); v != "" {
		c.NodeID = v
	}
	if v := os.Getenv("QUIETMESH_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("QUIETMESH_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
}

// Validate checks that the config is valid.
func (c *Config) Validate() error {
	if c.MulticastPort < 1 || c.MulticastPort > 65535 {
		return fmt.Errorf("invalid multicast_port: %d", c.MulticastPort)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (valid: debug, info, warn, error)", c.LogLevel)
	}

	for _, room := range c.AutoJoinRooms {
		if room == "" {
			return fmt.Errorf("auto_join_rooms contains an empty room name")
		}
	}

	return nil
}

// SaveToFile writes config to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}
