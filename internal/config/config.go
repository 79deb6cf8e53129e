// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads brickstat settings from an optional YAML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/brickstat/pkg/device"
	"github.com/Thermoquad/brickstat/pkg/nxt"
)

// Config is the root configuration
type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Driver     DriverConfig     `yaml:"driver"`
	Logger     LoggerConfig     `yaml:"logger"`
}

// ConnectionConfig selects and configures the transport
type ConnectionConfig struct {
	Port        string `yaml:"port"` // Serial device, e.g. /dev/rfcomm0
	Baud        int    `yaml:"baud"`
	BufferSize  int    `yaml:"buffer_size"`
	URL         string `yaml:"url"` // WebSocket bridge, ws:// or wss://
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify"`
}

// DriverConfig tunes the device driver
type DriverConfig struct {
	CallTimeout  time.Duration `yaml:"call_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	LogRetention int           `yaml:"log_retention"`
	Ports        []string      `yaml:"ports"`
}

// LoggerConfig configures structured logging
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
	Output string `yaml:"output"` // stderr, stdout or a file path
}

// Defaults returns the configuration used when no file is given
func Defaults() *Config {
	return &Config{
		Connection: ConnectionConfig{
			Baud:       device.DefaultBaudRate,
			BufferSize: device.DefaultBufferSize,
		},
		Driver: DriverConfig{
			CallTimeout:  device.DefaultCallTimeout,
			PollInterval: device.DefaultPollInterval,
			LogRetention: device.DefaultLogRetention,
			Ports:        []string{"a", "b", "c"},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies BRICKSTAT_* environment variables
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BRICKSTAT_PORT"); v != "" {
		cfg.Connection.Port = v
	}
	if v := os.Getenv("BRICKSTAT_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Connection.Baud = n
		}
	}
	if v := os.Getenv("BRICKSTAT_URL"); v != "" {
		cfg.Connection.URL = v
	}
	if v := os.Getenv("BRICKSTAT_USERNAME"); v != "" {
		cfg.Connection.Username = v
	}
	if v := os.Getenv("BRICKSTAT_CALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Driver.CallTimeout = d
		}
	}
	if v := os.Getenv("BRICKSTAT_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("BRICKSTAT_LOG_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
}

// Validate checks values the driver and transports cannot run with
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Connection.URL != "" && cfg.Connection.Port != "" {
		errs = append(errs, errors.New("connection: port and url are mutually exclusive"))
	}
	if cfg.Connection.URL != "" {
		if !strings.HasPrefix(cfg.Connection.URL, "ws://") && !strings.HasPrefix(cfg.Connection.URL, "wss://") {
			errs = append(errs, fmt.Errorf("connection: unsupported url %q (use ws:// or wss://)", cfg.Connection.URL))
		}
	}
	if len(cfg.Driver.Ports) == 0 {
		errs = append(errs, errors.New("driver: ports must name at least one output"))
	} else if _, err := cfg.PollPorts(); err != nil {
		errs = append(errs, fmt.Errorf("driver: %w", err))
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logger: unknown format %q (use text or json)", cfg.Logger.Format))
	}

	// Zero driver values select the driver defaults
	if cfg.Connection.Baud < 0 || cfg.Connection.BufferSize < 0 {
		errs = append(errs, errors.New("connection: baud and buffer_size must not be negative"))
	}
	if cfg.Driver.CallTimeout < 0 {
		errs = append(errs, fmt.Errorf("driver: call timeout must not be negative, got %s", cfg.Driver.CallTimeout))
	}
	if cfg.Driver.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("driver: poll interval must not be negative, got %s", cfg.Driver.PollInterval))
	}
	if cfg.Driver.LogRetention < 0 {
		errs = append(errs, fmt.Errorf("driver: log retention must not be negative, got %d", cfg.Driver.LogRetention))
	}

	return errors.Join(errs...)
}

// PollPorts parses the polled output names
func (c *Config) PollPorts() ([]nxt.Port, error) {
	ports := make([]nxt.Port, 0, len(c.Driver.Ports))
	for _, name := range c.Driver.Ports {
		p, err := nxt.ParsePort(name)
		if err != nil {
			return nil, err
		}
		if !p.Valid() {
			return nil, fmt.Errorf("cannot poll %s", p)
		}
		ports = append(ports, p)
	}
	return ports, nil
}

// DeviceConfig converts the driver settings. Invalid port names are dropped;
// Validate reports them.
func (c *Config) DeviceConfig(logger *slog.Logger) device.Config {
	ports, _ := c.PollPorts()
	if ports == nil {
		ports = []nxt.Port{}
	}
	return device.Config{
		Open: device.OpenOptions{
			BaudRate:   c.Connection.Baud,
			BufferSize: c.Connection.BufferSize,
		},
		CallTimeout:  c.Driver.CallTimeout,
		PollInterval: c.Driver.PollInterval,
		LogRetention: c.Driver.LogRetention,
		Ports:        ports,
		Logger:       logger,
	}
}
