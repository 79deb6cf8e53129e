// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var firmwareJSON bool

var firmwareCmd = &cobra.Command{
	Use:   "firmware",
	Short: "Print the brick's protocol and firmware versions",
	Long: `Connect to the brick, query its protocol and firmware versions and disconnect.

The version query is the same one every connection starts with, so this is
also a quick check that the link works.`,
	Args: cobra.NoArgs,
	RunE: runFirmware,
}

func init() {
	rootCmd.AddCommand(firmwareCmd)
	firmwareCmd.Flags().BoolVar(&firmwareJSON, "json", false, "Print as JSON")
}

func runFirmware(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	d, connInfo, err := connectDevice(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	fw := d.Snapshot().Firmware
	if fw == nil {
		return fmt.Errorf("no firmware version reported")
	}

	out := cmd.OutOrStdout()
	if firmwareJSON {
		return json.NewEncoder(out).Encode(fw)
	}

	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Protocol:   %s\n", fw.Protocol)
	fmt.Fprintf(out, "Firmware:   %s\n", fw.Firmware)
	return nil
}
