// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/brickstat/pkg/device"
)

var (
	toneFrequency int
	toneDuration  time.Duration
)

var toneCmd = &cobra.Command{
	Use:   "tone",
	Short: "Play a tone on the brick's speaker",
	Long: `Play a tone on the brick's speaker.

The frequency must be within 200..14000 Hz and the duration at most 65535 ms.
Out-of-range values are rejected before anything is sent.`,
	Args: cobra.NoArgs,
	RunE: runTone,
}

func init() {
	rootCmd.AddCommand(toneCmd)
	toneCmd.Flags().IntVar(&toneFrequency, "freq", device.DefaultToneFrequency, "Frequency in Hz")
	toneCmd.Flags().DurationVar(&toneDuration, "duration", device.DefaultToneDuration, "Tone length")
}

func runTone(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	d, _, err := connectDevice(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.PlayTone(ctx, toneFrequency, toneDuration); err != nil {
		return fmt.Errorf("play tone: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Played %d Hz for %s\n", toneFrequency, toneDuration)
	return nil
}
