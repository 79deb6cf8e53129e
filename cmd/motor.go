// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/brickstat/pkg/device"
	"github.com/Thermoquad/brickstat/pkg/nxt"
)

var (
	motorPower int
	motorFor   time.Duration
)

var motorCmd = &cobra.Command{
	Use:   "motor",
	Short: "Run or idle a motor port",
	Long: `Drive motor outputs A, B and C.

The port argument is a, b, c or all. Run sets the output on with braking and
speed regulation at --power (-100..100). Idle lets the motor coast. For a
single port the resulting output state is read back and printed.`,
}

var motorRunCmd = &cobra.Command{
	Use:       "run <a|b|c|all>",
	Short:     "Run a motor at the given power",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"a", "b", "c", "all"},
	RunE:      runMotorRun,
}

var motorIdleCmd = &cobra.Command{
	Use:       "idle <a|b|c|all>",
	Short:     "Let a motor coast",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"a", "b", "c", "all"},
	RunE:      runMotorIdle,
}

func init() {
	rootCmd.AddCommand(motorCmd)
	motorCmd.AddCommand(motorRunCmd, motorIdleCmd)
	motorRunCmd.Flags().IntVar(&motorPower, "power", device.DefaultMotorPower, "Power, -100..100")
	motorRunCmd.Flags().DurationVar(&motorFor, "for", 0, "Coast again after this long (0 leaves the motor running)")
}

func runMotorRun(cmd *cobra.Command, args []string) error {
	port, err := nxt.ParsePort(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	d, _, err := connectDevice(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.RunMotor(ctx, port, motorPower); err != nil {
		return fmt.Errorf("run motor %s: %w", port, err)
	}
	printMotorState(cmd, d, port)

	if motorFor <= 0 {
		return nil
	}
	select {
	case <-time.After(motorFor):
	case <-ctx.Done():
	case <-d.Done():
		return d.Err()
	}
	// The signal context may be done; idling still has to go out
	if err := d.IdleMotor(cmd.Context(), port); err != nil {
		return fmt.Errorf("idle motor %s: %w", port, err)
	}
	printMotorState(cmd, d, port)
	return nil
}

func runMotorIdle(cmd *cobra.Command, args []string) error {
	port, err := nxt.ParsePort(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	d, _, err := connectDevice(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.IdleMotor(ctx, port); err != nil {
		return fmt.Errorf("idle motor %s: %w", port, err)
	}
	printMotorState(cmd, d, port)
	return nil
}

func printMotorState(cmd *cobra.Command, d *device.Device, port nxt.Port) {
	if port == nxt.PortAll {
		fmt.Fprintln(cmd.OutOrStdout(), "Sent to all ports")
		return
	}
	for _, r := range d.Snapshot().Readings {
		if r.Port == port {
			fmt.Fprintf(cmd.OutOrStdout(), "Motor %s: %s\n", port, r.Output)
			return
		}
	}
}
