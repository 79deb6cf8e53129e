// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Long: `List the serial ports on this machine.

A paired NXT brick usually appears as an RFCOMM device (/dev/rfcomm0 on Linux,
a COM port on Windows, /dev/tty.NXT-DevB on macOS).`,
	Args: cobra.NoArgs,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return fmt.Errorf("list serial ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No serial ports found")
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("PORT", "USB", "VID:PID", "SERIAL", "PRODUCT")
	for _, p := range ports {
		usb, ids := "no", "-"
		if p.IsUSB {
			usb = "yes"
			ids = p.VID + ":" + p.PID
		}
		t.Row(p.Name, usb, ids, orDash(p.SerialNumber), orDash(p.Product))
	}
	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
