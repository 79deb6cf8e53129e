// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/brickstat/pkg/device"
)

var controlConnect bool

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for driving the brick",
	Long: `Drive the brick from an interactive terminal UI.

The Log tab shows the device event log: state changes, the firmware versions
reported at connect and motor states read back after each command. The
Buttons tab plays a tone and runs or idles motors A, B and C, with each
motor's live position and power.

Keys:
  c        connect (only before the first connection)
  tab      switch between Log and Buttons
  up/down  select a button row
  enter    press the selected button (tone, or run the selected motor)
  r / i    run or idle the selected motor
  t        play a tone
  q        quit

Buttons are only active while the brick is ready. A lost connection is final:
quit and start again to reconnect.

Supports both serial and WebSocket connections.`,
	Args: cobra.NoArgs,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
	controlCmd.Flags().BoolVar(&controlConnect, "connect", false, "Connect immediately instead of waiting for c")
}

func runControl(cmd *cobra.Command, args []string) error {
	d, connInfo, err := newDevice()
	if err != nil {
		return err
	}
	defer d.Close()

	m := initialControlModel(d, connInfo)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))

	// Events arrive on the driver's delivery goroutine; Send hands them to
	// the program loop
	unsubscribe := d.Subscribe(func(ev device.Event) {
		p.Send(deviceEventMsg{event: ev})
	})
	defer unsubscribe()

	if controlConnect {
		go p.Send(connectRequestMsg{})
	}

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
