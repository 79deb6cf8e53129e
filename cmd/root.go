// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/brickstat/internal/config"
	"github.com/Thermoquad/brickstat/internal/logger"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Driver flags
	callTimeout  time.Duration
	pollInterval time.Duration
	logRetention int

	// Logging and config flags
	configPath string
	logLevel   string
	logFormat  string
	logOutput  string
)

// Resolved at PersistentPreRun
var (
	appConfig *config.Config
	appLogger = logger.Discard()
	logCloser = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "brickstat",
	Short: "LEGO NXT brick monitor and controller",
	Long: `Brickstat - A CLI tool for driving a LEGO MINDSTORMS NXT brick over Bluetooth serial.

Connects to the brick, reads its firmware version, polls the state of motor
ports A, B and C, and sends direct commands (play tone, run or idle a motor).

Connection modes:
  Serial:    --port /dev/rfcomm0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the BRICKSTAT_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

Settings may also come from a YAML file (--config) and BRICKSTAT_* environment
variables. Flags given on the command line take precedence.`,
	Version:            "0.3.0",
	SilenceUsage:       true,
	PersistentPreRunE:  loadSettings,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error { return logCloser() },
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Driver flags
	rootCmd.PersistentFlags().DurationVar(&callTimeout, "call-timeout", 2*time.Second, "Fail a call whose reply does not arrive in time")
	rootCmd.PersistentFlags().DurationVar(&pollInterval, "poll-interval", 50*time.Millisecond, "Pause between motor state reads")
	rootCmd.PersistentFlags().IntVar(&logRetention, "log-retention", 20, "Event log lines kept")

	// Logging and config flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text or json)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-file", "stderr", "Log output: stderr, stdout or a file path")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadSettings merges the config file, environment and explicitly set flags,
// then builds the logger
func loadSettings(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Connection.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Connection.Baud = baudRate
	}
	if flags.Changed("url") {
		cfg.Connection.URL = wsURL
	}
	if flags.Changed("username") {
		cfg.Connection.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.Connection.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("call-timeout") {
		cfg.Driver.CallTimeout = callTimeout
	}
	if flags.Changed("poll-interval") {
		cfg.Driver.PollInterval = pollInterval
	}
	if flags.Changed("log-retention") {
		cfg.Driver.LogRetention = logRetention
	}
	if flags.Changed("log-level") {
		cfg.Logger.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logger.Format = logFormat
	}
	if flags.Changed("log-file") {
		cfg.Logger.Output = logOutput
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	// The TUI owns the terminal, so console logging is dropped there
	if cmd == controlCmd && logger.IsTerminalOutput(cfg.Logger.Output) {
		appConfig = cfg
		appLogger = logger.Discard()
		return nil
	}

	log, closer, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	appConfig = cfg
	appLogger = log
	logCloser = closer
	slog.SetDefault(log)
	return nil
}
