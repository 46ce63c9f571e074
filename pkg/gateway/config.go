// Copyright 2025-2026 KMT Marketplace

package gateway

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// Config holds the gateway configuration.
type Config struct {
	// ListenAddr is the listen address for the operator HTTP surface
	// (QR page, status and send endpoints). Defaults to ":29411".
	ListenAddr string `yaml:"listen_addr"`
	// LinkSecret protects the QR page and the API endpoints. It must come
	// from this server-side config; there is no default. With an empty
	// secret the HTTP surface fails closed.
	LinkSecret string `yaml:"link_secret"`
	// Identity names the credential bundle under AuthDir. Defaults to
	// "default". One process owns one identity.
	Identity string `yaml:"identity"`
	// AuthDir is the root directory for credential bundles.
	AuthDir string `yaml:"auth_dir"`
	// DeviceName is the companion device name shown in the platform's
	// linked-devices list.
	DeviceName string `yaml:"device_name"`

	MaxReconnectAttempts    int `yaml:"max_reconnect_attempts"`
	ReconnectBackoffSeconds int `yaml:"reconnect_backoff_seconds"`
	ConnectTimeoutSeconds   int `yaml:"connect_timeout_seconds"`

	Logging zeroconfig.Config `yaml:"logging"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// PostProcess fills defaults and validates the parts with no usable
// zero value.
func (c *Config) PostProcess() error {
	if c.ListenAddr == "" {
		c.ListenAddr = ":29411"
	}
	if c.Identity == "" {
		c.Identity = "default"
	}
	if c.AuthDir == "" {
		c.AuthDir = "./auth-state"
	}
	if c.DeviceName == "" {
		c.DeviceName = "KMT Backend"
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.MaxReconnectAttempts < 0 {
		return errors.New("max_reconnect_attempts must not be negative")
	}
	if c.ReconnectBackoffSeconds == 0 {
		c.ReconnectBackoffSeconds = 5
	}
	if c.ReconnectBackoffSeconds < 0 {
		return errors.New("reconnect_backoff_seconds must not be negative")
	}
	if c.ConnectTimeoutSeconds == 0 {
		c.ConnectTimeoutSeconds = 60
	}
	if c.ConnectTimeoutSeconds < 0 {
		return errors.New("connect_timeout_seconds must not be negative")
	}
	return nil
}

// ReconnectBackoff returns the wait between a recoverable closure and the
// next connection attempt.
func (c *Config) ReconnectBackoff() time.Duration {
	return time.Duration(c.ReconnectBackoffSeconds) * time.Second
}

// ConnectTimeout returns the deadline applied to a single dial.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

// LoadConfig reads and validates a config file.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.PostProcess(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
