// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/brickstat/pkg/device"
	"github.com/Thermoquad/brickstat/pkg/nxt"
)

var (
	watchFormat    string
	watchTelemetry bool
	statsEvery     int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream device notifications",
	Long: `Connect to the brick and print every notification until interrupted or the
connection is lost.

Notifications are state changes, event log lines and motor telemetry readings.
Formats:
  text  one line per notification
  json  one JSON object per line
  cbor  a CBOR sequence (RFC 8742) of maps, for piping into other tools

Statistics are printed to stderr every --stats-interval seconds in text mode.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVarP(&watchFormat, "format", "f", "text", "Output format (text, json, cbor)")
	watchCmd.Flags().BoolVar(&watchTelemetry, "telemetry", true, "Include motor telemetry readings")
	watchCmd.Flags().IntVar(&statsEvery, "stats-interval", 0, "Statistics interval in seconds (0 disables)")
}

// eventRecord is the serialized form of a notification
type eventRecord struct {
	Time    time.Time      `json:"time" cbor:"time"`
	Kind    string         `json:"kind" cbor:"kind"`
	State   string         `json:"state,omitempty" cbor:"state,omitempty"`
	Call    string         `json:"call,omitempty" cbor:"call,omitempty"`
	Reason  string         `json:"reason,omitempty" cbor:"reason,omitempty"`
	Line    string         `json:"line,omitempty" cbor:"line,omitempty"`
	Reading *readingRecord `json:"reading,omitempty" cbor:"reading,omitempty"`
}

type readingRecord struct {
	Port     string          `json:"port" cbor:"port"`
	Power    int8            `json:"power" cbor:"power"`
	Position int32           `json:"position" cbor:"position"`
	Output   nxt.OutputState `json:"output" cbor:"output"`
}

func newEventRecord(ev device.Event) eventRecord {
	rec := eventRecord{Time: ev.Time, Kind: ev.Kind.String()}
	switch ev.Kind {
	case device.EventStateChanged:
		rec.State = ev.State.Kind.String()
		rec.Call = ev.State.Call
		if ev.State.Reason != nil {
			rec.Reason = ev.State.Reason.Error()
		}
	case device.EventLogAppended:
		rec.Line = ev.Line
	case device.EventTelemetryUpdated:
		rec.Reading = &readingRecord{
			Port:     ev.Reading.Port.String(),
			Power:    ev.Reading.Power,
			Position: ev.Reading.Position,
			Output:   ev.Reading.Output,
		}
	}
	return rec
}

// eventWriter serializes notifications in one format
type eventWriter interface {
	Write(rec eventRecord) error
}

type textEventWriter struct{ w io.Writer }

func (t textEventWriter) Write(rec eventRecord) error {
	ts := rec.Time.Format("15:04:05.000")
	var err error
	switch rec.Kind {
	case "state":
		detail := rec.State
		if rec.Call != "" {
			detail += " " + rec.Call
		}
		if rec.Reason != "" {
			detail += ": " + rec.Reason
		}
		_, err = fmt.Fprintf(t.w, "[%s] STATE %s\n", ts, detail)
	case "log":
		_, err = fmt.Fprintf(t.w, "[%s] LOG   %s\n", ts, rec.Line)
	case "telemetry":
		_, err = fmt.Fprintf(t.w, "[%s] MOTOR %s pos=%d power=%d\n", ts, rec.Reading.Port, rec.Reading.Position, rec.Reading.Power)
	}
	return err
}

type jsonEventWriter struct{ enc *json.Encoder }

func (j jsonEventWriter) Write(rec eventRecord) error {
	return j.enc.Encode(rec)
}

type cborEventWriter struct{ enc *cbor.Encoder }

func (c cborEventWriter) Write(rec eventRecord) error {
	return c.enc.Encode(rec)
}

func newEventWriter(format string, w io.Writer) (eventWriter, error) {
	switch format {
	case "text":
		return textEventWriter{w: w}, nil
	case "json":
		return jsonEventWriter{enc: json.NewEncoder(w)}, nil
	case "cbor":
		em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
		if err != nil {
			return nil, err
		}
		return cborEventWriter{enc: em.NewEncoder(w)}, nil
	default:
		return nil, fmt.Errorf("unknown format %q (use text, json or cbor)", format)
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	out, err := newEventWriter(watchFormat, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	d, connInfo, err := newDevice()
	if err != nil {
		return err
	}
	defer d.Close()

	// Subscribe before connecting so the first transitions are seen
	var mu sync.Mutex
	var writeErr error
	unsubscribe := d.Subscribe(func(ev device.Event) {
		if ev.Kind == device.EventTelemetryUpdated && !watchTelemetry {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if writeErr == nil {
			writeErr = out.Write(newEventRecord(ev))
		}
	})
	defer unsubscribe()

	if watchFormat == "text" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Brickstat - Watch\nConnection: %s\nPress Ctrl+C to exit\n\n", connInfo)
	}

	if err := d.Connect(ctx); err != nil {
		return fmt.Errorf("connect (%s): %w", connInfo, err)
	}

	var ticker <-chan time.Time
	if statsEvery > 0 && watchFormat == "text" {
		t := time.NewTicker(time.Duration(statsEvery) * time.Second)
		defer t.Stop()
		ticker = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return d.Close()
		case <-d.Done():
			return d.Err()
		case <-ticker:
			stats := d.Stats()
			fmt.Fprint(cmd.ErrOrStderr(), stats.String())
		}
	}
}
