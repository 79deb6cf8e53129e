// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/brickstat/pkg/device"
	"github.com/Thermoquad/brickstat/pkg/nxt"
)

var watchTime = time.Date(2025, 3, 1, 12, 30, 15, 250_000_000, time.UTC)

func telemetryEvent() device.Event {
	return device.Event{
		Kind: device.EventTelemetryUpdated,
		Time: watchTime,
		Reading: device.Reading{
			Port:     nxt.PortB,
			Power:    20,
			Position: 720,
			Output:   nxt.OutputState{Port: nxt.PortB, Power: 20, TachoCount: 720},
		},
	}
}

func TestNewEventRecord(t *testing.T) {
	rec := newEventRecord(device.Event{
		Kind:  device.EventStateChanged,
		Time:  watchTime,
		State: device.State{Kind: device.StateGone, Reason: errors.New("call timed out")},
	})
	assert.Equal(t, "state", rec.Kind)
	assert.Equal(t, "gone", rec.State)
	assert.Equal(t, "call timed out", rec.Reason)
	assert.Nil(t, rec.Reading)

	rec = newEventRecord(device.Event{
		Kind:  device.EventStateChanged,
		State: device.State{Kind: device.StateCalling, Call: "playTone"},
	})
	assert.Equal(t, "calling", rec.State)
	assert.Equal(t, "playTone", rec.Call)

	rec = newEventRecord(telemetryEvent())
	require.NotNil(t, rec.Reading)
	assert.Equal(t, "B", rec.Reading.Port)
	assert.Equal(t, int32(720), rec.Reading.Position)
}

func TestTextEventWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := newEventWriter("text", &buf)
	require.NoError(t, err)

	require.NoError(t, w.Write(newEventRecord(telemetryEvent())))
	require.NoError(t, w.Write(newEventRecord(device.Event{Kind: device.EventLogAppended, Time: watchTime, Line: "*** ready ***"})))

	assert.Equal(t,
		"[12:30:15.250] MOTOR B pos=720 power=20\n"+
			"[12:30:15.250] LOG   *** ready ***\n",
		buf.String())
}

func TestJSONEventWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := newEventWriter("json", &buf)
	require.NoError(t, err)
	require.NoError(t, w.Write(newEventRecord(telemetryEvent())))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "telemetry", got["kind"])
	reading, ok := got["reading"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "B", reading["port"])
	assert.NotContains(t, got, "line")
}

func TestCBOREventWriterSequence(t *testing.T) {
	var buf bytes.Buffer
	w, err := newEventWriter("cbor", &buf)
	require.NoError(t, err)

	require.NoError(t, w.Write(newEventRecord(telemetryEvent())))
	require.NoError(t, w.Write(newEventRecord(device.Event{Kind: device.EventLogAppended, Time: watchTime, Line: "*** ready ***"})))

	dec := cbor.NewDecoder(&buf)
	var first, second eventRecord
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))

	assert.Equal(t, "telemetry", first.Kind)
	require.NotNil(t, first.Reading)
	assert.Equal(t, int32(720), first.Reading.Output.TachoCount)
	assert.True(t, first.Time.Equal(watchTime))
	assert.Equal(t, "*** ready ***", second.Line)
}

func TestUnknownEventFormat(t *testing.T) {
	_, err := newEventWriter("xml", &bytes.Buffer{})
	assert.Error(t, err)
}
