// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Thermoquad/brickstat/pkg/nxt"
)

// Defaults match what the brick's Bluetooth serial port expects
const (
	DefaultBaudRate     = 115200
	DefaultBufferSize   = 64
	DefaultCallTimeout  = 2 * time.Second
	DefaultPollInterval = 50 * time.Millisecond
	DefaultLogRetention = 20
)

// OpenOptions configures the transport when it is opened
type OpenOptions struct {
	BaudRate   int
	BufferSize int // Read chunk size
}

// Config holds driver settings. Zero fields take their defaults.
type Config struct {
	Open         OpenOptions
	CallTimeout  time.Duration // Fails a call whose reply never arrives
	PollInterval time.Duration // Pause after each telemetry read
	LogRetention int           // Lines kept in the event log
	Ports        []nxt.Port    // Polled outputs, in order
	Logger       *slog.Logger
}

// DefaultConfig returns the configuration used when none is given
func DefaultConfig() Config {
	return Config{
		Open: OpenOptions{
			BaudRate:   DefaultBaudRate,
			BufferSize: DefaultBufferSize,
		},
		CallTimeout:  DefaultCallTimeout,
		PollInterval: DefaultPollInterval,
		LogRetention: DefaultLogRetention,
		Ports:        append([]nxt.Port(nil), nxt.Ports...),
		Logger:       slog.New(slog.DiscardHandler),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Open.BaudRate == 0 {
		c.Open.BaudRate = def.Open.BaudRate
	}
	if c.Open.BufferSize == 0 {
		c.Open.BufferSize = def.Open.BufferSize
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = def.CallTimeout
	}
	if c.PollInterval == 0 {
		c.PollInterval = def.PollInterval
	}
	if c.LogRetention == 0 {
		c.LogRetention = def.LogRetention
	}
	if c.Ports == nil {
		c.Ports = def.Ports
	}
	if c.Logger == nil {
		c.Logger = def.Logger
	}
	return c
}

// Validate rejects settings the driver cannot run with
func (c Config) Validate() error {
	var errs []error
	if c.Open.BaudRate <= 0 {
		errs = append(errs, fmt.Errorf("baud rate must be positive, got %d", c.Open.BaudRate))
	}
	if c.Open.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("buffer size must be positive, got %d", c.Open.BufferSize))
	}
	if c.CallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("call timeout must be positive, got %s", c.CallTimeout))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %s", c.PollInterval))
	}
	if c.LogRetention <= 0 {
		errs = append(errs, fmt.Errorf("log retention must be positive, got %d", c.LogRetention))
	}
	if len(c.Ports) == 0 {
		errs = append(errs, errors.New("at least one output must be polled"))
	}
	for _, p := range c.Ports {
		if !p.Valid() {
			errs = append(errs, fmt.Errorf("cannot poll %s", p))
		}
	}
	return errors.Join(errs...)
}
