// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/brickstat/pkg/nxt"
)

var (
	packetTestTimeout time.Duration
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid firmware version reply",
	Long: `Send one firmware version query and wait for a valid reply until timeout.

The link is opened directly, without the driver. Frames that are not a valid
reply to the query are reported and skipped.

Useful for testing connectivity to a brick or a WebSocket serial bridge.`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().DurationVar(&packetTestTimeout, "timeout", 10*time.Second, "Time to wait for a reply")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	stream, connInfo, err := openRawStream(cmd)
	if err != nil {
		return err
	}
	defer stream.Close()

	fmt.Printf("Brickstat - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %s\n", packetTestTimeout)
	fmt.Printf("Waiting for firmware version reply...\n\n")

	if err := writeProbe(stream); err != nil {
		return err
	}

	type result struct {
		version nxt.FirmwareVersion
		err     error
	}
	results := make(chan result, 1)

	// Reader goroutine
	go func() {
		reader := nxt.NewFrameReader(stream, appConfig.Connection.BufferSize)
		skipped := 0
		for frame, err := range reader.Frames() {
			if err != nil {
				results <- result{err: err}
				return
			}
			version, decodeErr := nxt.GetFirmwareVersion{}.Decode(frame)
			if decodeErr != nil {
				skipped++
				fmt.Printf("(skipped %s: %v)\n", nxt.FormatFrame(frame), decodeErr)
				continue
			}
			if skipped > 0 {
				fmt.Printf("(skipped %d frames before the reply)\n", skipped)
			}
			results <- result{version: version}
			return
		}
		results <- result{err: errors.New("connection closed")}
	}()

	select {
	case r := <-results:
		if r.err != nil {
			return fmt.Errorf("read error: %w", r.err)
		}
		fmt.Printf("SUCCESS: Received valid reply\n")
		fmt.Printf("  Protocol: %s\n", r.version.Protocol)
		fmt.Printf("  Firmware: %s\n", r.version.Firmware)
		return nil

	case <-time.After(packetTestTimeout):
		return fmt.Errorf("timeout: no valid reply within %s", packetTestTimeout)
	}
}
