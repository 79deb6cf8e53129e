// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/brickstat/pkg/device"
	"github.com/Thermoquad/brickstat/pkg/nxt"
)

var rawLogProbe bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display NXT frames as they arrive.

The link is opened directly, without the driver, so nothing is sent unless
--probe is given. Each frame is printed with a timestamp, telegram type,
opcode, status and a hex dump.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogProbe, "probe", false, "Send a firmware version query after opening")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	stream, connInfo, err := openRawStream(cmd)
	if err != nil {
		return err
	}
	defer stream.Close()

	// Unblock the reader on interrupt
	go func() {
		<-ctx.Done()
		stream.Close()
	}()

	fmt.Printf("Brickstat - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	if rawLogProbe {
		if err := writeProbe(stream); err != nil {
			return err
		}
	}

	reader := nxt.NewFrameReader(stream, appConfig.Connection.BufferSize)
	for frame, err := range reader.Frames() {
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrConnectionClosed) {
				return nil
			}
			fmt.Printf("[ERROR] %v\n", err)
			return err
		}
		fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05.000"), nxt.FormatFrame(frame))
	}
	fmt.Println("Connection closed")
	return nil
}

// openRawStream opens the configured link without a driver on top
func openRawStream(cmd *cobra.Command) (io.ReadWriteCloser, string, error) {
	transport, connInfo, err := NewTransport(appConfig.Connection)
	if err != nil {
		return nil, "", err
	}
	opts := appConfig.DeviceConfig(appLogger).Open
	if opts.BaudRate == 0 {
		opts.BaudRate = device.DefaultBaudRate
	}
	stream, err := transport.Open(cmd.Context(), opts)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", connInfo, err)
	}
	return stream, connInfo, nil
}

// writeProbe sends one firmware version query
func writeProbe(w io.Writer) error {
	payload, err := nxt.GetFirmwareVersion{}.Payload()
	if err != nil {
		return err
	}
	if _, err := w.Write(nxt.MustEncodeFrame(payload)); err != nil {
		return fmt.Errorf("write probe: %w", err)
	}
	return nil
}
