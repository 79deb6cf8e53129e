// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/brickstat/pkg/nxt"
)

func TestNew_Defaults(t *testing.T) {
	d, err := New(newFakeBrick(t, nil), Config{})
	require.NoError(t, err)

	assert.Equal(t, DefaultBaudRate, d.cfg.Open.BaudRate)
	assert.Equal(t, DefaultBufferSize, d.cfg.Open.BufferSize)
	assert.Equal(t, DefaultCallTimeout, d.cfg.CallTimeout)
	assert.Equal(t, nxt.Ports, d.cfg.Ports)
	assert.Equal(t, StateStart, d.State().Kind)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(newFakeBrick(t, nil), Config{CallTimeout: -time.Second})
	assert.ErrorContains(t, err, "call timeout")

	_, err = New(newFakeBrick(t, nil), Config{Ports: []nxt.Port{nxt.PortAll}})
	assert.ErrorContains(t, err, "cannot poll all")

	_, err = New(newFakeBrick(t, nil), Config{Ports: []nxt.Port{}})
	assert.ErrorContains(t, err, "at least one output")

	_, err = New(nil, Config{})
	assert.Error(t, err)
}

func TestConnect_ReachesReady(t *testing.T) {
	brick := newFakeBrick(t, nil)
	d, rec := connect(t, brick, testConfig())

	assert.Equal(t, StateReady, d.State().Kind)
	assert.Equal(t, OpenOptions{BaudRate: 115200, BufferSize: 64}, brick.opened)

	snap := d.Snapshot()
	require.NotNil(t, snap.Firmware)
	assert.Equal(t, nxt.Version{Major: 2, Minor: 1}, snap.Firmware.Protocol)
	assert.Equal(t, nxt.Version{Major: 1, Minor: 2}, snap.Firmware.Firmware)
	assert.Equal(t, []string{
		"*** connecting ***",
		`firmware versions: {"protocol":{"major":2,"minor":1},"firmware":{"major":1,"minor":2}}`,
		"*** ready ***",
	}, snap.Log[:3])

	require.Eventually(t, func() bool {
		return len(rec.kinds()) >= 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, []StateKind{StateConnecting, StateReady}, rec.kinds()[:2])
}

func TestConnect_OnlyFromStart(t *testing.T) {
	d, _ := connect(t, newFakeBrick(t, nil), testConfig())

	err := d.Connect(context.Background())
	assert.ErrorIs(t, err, nxt.ErrNotReady)
	assert.Equal(t, StateReady, d.State().Kind)
}

func TestConnect_OpenFailure(t *testing.T) {
	brick := newFakeBrick(t, nil)
	brick.openErr = errBrickOffline

	d, err := New(brick, testConfig())
	require.NoError(t, err)

	err = d.Connect(context.Background())
	assert.ErrorIs(t, err, nxt.ErrTransportOpenFailure)
	assert.ErrorIs(t, err, errBrickOffline)

	waitDone(t, d)
	assert.Equal(t, StateGone, d.State().Kind)
	assert.ErrorIs(t, d.Err(), nxt.ErrTransportOpenFailure)
}

func TestConnect_BadFirmwareReplyIsFatal(t *testing.T) {
	brick := newFakeBrick(t, func(req []byte) []byte {
		return nxt.MustEncodeFrame([]byte{0x02, 0x88, 0xBD, 0, 0, 0, 0})
	})
	d, err := New(brick, testConfig())
	require.NoError(t, err)

	err = d.Connect(context.Background())
	assert.ErrorIs(t, err, nxt.ErrProtocolViolation)

	waitDone(t, d)
	assert.Equal(t, StateGone, d.State().Kind)
	assert.ErrorIs(t, d.Err(), nxt.ErrProtocolViolation)
}

func TestPoller_VisitsPortsInOrder(t *testing.T) {
	_, rec := connect(t, newFakeBrick(t, nil), testConfig())

	require.Eventually(t, func() bool {
		return len(rec.readings()) >= 9
	}, 2*time.Second, time.Millisecond)

	readings := rec.readings()
	for i, r := range readings[:9] {
		assert.Equal(t, nxt.Ports[i%3], r.Port, "reading %d", i)
		assert.Equal(t, int8(20), r.Power)
		assert.Equal(t, 100*int32(i%3+1), r.Position)
	}
}

func TestPoller_SnapshotHoldsLatestReadings(t *testing.T) {
	d, rec := connect(t, newFakeBrick(t, nil), testConfig())

	require.Eventually(t, func() bool {
		return len(rec.readings()) >= 3
	}, 2*time.Second, time.Millisecond)

	snap := d.Snapshot()
	require.Len(t, snap.Readings, 3)
	for i, r := range snap.Readings {
		assert.Equal(t, nxt.Ports[i], r.Port)
	}
}

func TestPlayTone_Sends(t *testing.T) {
	brick := newFakeBrick(t, nil)
	d, rec := connect(t, brick, testConfig())

	require.NoError(t, d.PlayTone(context.Background(), DefaultToneFrequency, DefaultToneDuration))

	tones := brick.sent(nxt.OpPlayTone)
	require.Len(t, tones, 1)
	assert.Equal(t, []byte{0x00, 0x03, 0x00, 0x01, 0x64, 0x00}, tones[0])
	assert.Equal(t, StateReady, d.State().Kind)

	require.Eventually(t, func() bool {
		for _, s := range rec.states() {
			if s.Kind == StateCalling && s.Call == "playTone" {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
}

func TestPlayTone_OutOfRangeWritesNothing(t *testing.T) {
	brick := newFakeBrick(t, nil)
	d, _ := connect(t, brick, testConfig())

	err := d.PlayTone(context.Background(), 50, 100*time.Millisecond)
	assert.ErrorIs(t, err, nxt.ErrParameterOutOfRange)

	assert.Empty(t, brick.sent(nxt.OpPlayTone))
	assert.Equal(t, StateReady, d.State().Kind)
	assert.NoError(t, d.Err())
}

func TestRunMotor_ReadsBackState(t *testing.T) {
	brick := newFakeBrick(t, nil)
	d, _ := connect(t, brick, Config{PollInterval: time.Hour})

	require.NoError(t, d.RunMotor(context.Background(), nxt.PortB, DefaultMotorPower))

	sets := brick.sent(nxt.OpSetOutputState)
	require.Len(t, sets, 1)
	assert.Equal(t, []byte{0x00, 0x04, 0x01, 20, 0x07, 0x01, 0x00, 0x20, 0, 0, 0, 0}, sets[0])

	snap := d.Snapshot()
	last := snap.Log[len(snap.Log)-2]
	assert.True(t, strings.HasPrefix(last, `{"port":1,"power":20`), last)
	assert.Equal(t, "*** ready ***", snap.Log[len(snap.Log)-1])
}

func TestRunMotor_BroadcastSkipsReadBack(t *testing.T) {
	var queries atomic.Int32
	brick := newFakeBrick(t, func(req []byte) []byte {
		if req[1] == nxt.OpGetOutputState {
			queries.Add(1)
		}
		return defaultReplies(req)
	})
	d, rec := connect(t, brick, Config{PollInterval: time.Hour})

	// The poller reads port A once, then sleeps
	require.Eventually(t, func() bool {
		return len(rec.readings()) >= 1
	}, time.Second, time.Millisecond)

	require.NoError(t, d.RunMotor(context.Background(), nxt.PortAll, 50))
	assert.Len(t, brick.sent(nxt.OpSetOutputState), 1)
	assert.Equal(t, int32(1), queries.Load())
}

func TestRunMotor_PowerOutOfRange(t *testing.T) {
	brick := newFakeBrick(t, nil)
	d, _ := connect(t, brick, testConfig())

	err := d.RunMotor(context.Background(), nxt.PortA, 101)
	assert.ErrorIs(t, err, nxt.ErrParameterOutOfRange)
	assert.Empty(t, brick.sent(nxt.OpSetOutputState))
}

func TestIdleMotor_Coasts(t *testing.T) {
	brick := newFakeBrick(t, nil)
	d, _ := connect(t, brick, testConfig())

	require.NoError(t, d.IdleMotor(context.Background(), nxt.PortC))

	sets := brick.sent(nxt.OpSetOutputState)
	require.Len(t, sets, 1)
	assert.Equal(t, []byte{0x00, 0x04, 0x02, 0x00, 0x00, 0x01, 0x00, 0x00, 0, 0, 0, 0}, sets[0])
}

func TestForeground_RefusedBeforeConnect(t *testing.T) {
	brick := newFakeBrick(t, nil)
	d, err := New(brick, testConfig())
	require.NoError(t, err)

	err = d.PlayTone(context.Background(), 440, time.Second)
	assert.ErrorIs(t, err, nxt.ErrNotReady)
	assert.Equal(t, StateStart, d.State().Kind)
}

func TestForeground_ErrorStatusCrashes(t *testing.T) {
	brick := newFakeBrick(t, func(req []byte) []byte {
		if req[1] == nxt.OpPlayTone {
			return nxt.MustEncodeFrame([]byte{0x02, 0x03, 0xBD})
		}
		return defaultReplies(req)
	})
	d, _ := connect(t, brick, testConfig())

	err := d.PlayTone(context.Background(), 440, time.Second)
	assert.ErrorIs(t, err, nxt.ErrProtocolViolation)

	waitDone(t, d)
	assert.Equal(t, StateGone, d.State().Kind)
}

func TestUnexpectedPacket_ExactlyOneGone(t *testing.T) {
	brick := newFakeBrick(t, nil)
	d, rec := connect(t, brick, Config{PollInterval: time.Hour})

	// Wait for the first poll to finish so no call is pending
	require.Eventually(t, func() bool {
		return len(rec.readings()) >= 1
	}, time.Second, time.Millisecond)

	require.NoError(t, brick.write(nxt.MustEncodeFrame(ackReply(nxt.OpPlayTone))))
	// The second frame may find the stream already closed
	_ = brick.write(nxt.MustEncodeFrame(ackReply(nxt.OpPlayTone)))

	waitDone(t, d)
	assert.ErrorIs(t, d.Err(), nxt.ErrUnexpectedPacket)
	require.NoError(t, d.Close())

	var gone int
	for _, k := range rec.kinds() {
		if k == StateGone {
			gone++
		}
	}
	assert.Equal(t, 1, gone)
	assert.Equal(t, StateGone, rec.kinds()[len(rec.kinds())-1])
	assert.Equal(t, uint64(1), d.Stats().UnexpectedFrames)
}

func TestCallTimeout_Crashes(t *testing.T) {
	brick := newFakeBrick(t, func(req []byte) []byte {
		if req[1] == nxt.OpPlayTone {
			return nil
		}
		return defaultReplies(req)
	})
	cfg := testConfig()
	cfg.CallTimeout = 50 * time.Millisecond
	d, _ := connect(t, brick, cfg)

	err := d.PlayTone(context.Background(), 440, time.Second)
	assert.ErrorIs(t, err, nxt.ErrCallTimeout)

	waitDone(t, d)
	assert.Equal(t, StateGone, d.State().Kind)
	assert.ErrorIs(t, d.Err(), nxt.ErrCallTimeout)
}

func TestClose_FromReady(t *testing.T) {
	d, rec := connect(t, newFakeBrick(t, nil), testConfig())

	require.NoError(t, d.Close())
	waitDone(t, d)
	assert.Equal(t, StateClosed, d.State().Kind)
	assert.NoError(t, d.Err())

	kinds := rec.kinds()
	assert.Equal(t, []StateKind{StateClosing, StateClosed}, kinds[len(kinds)-2:])

	err := d.PlayTone(context.Background(), 440, time.Second)
	assert.ErrorIs(t, err, nxt.ErrNotReady)

	// Closing twice is a no-op
	assert.NoError(t, d.Close())
}

func TestClose_BeforeConnect(t *testing.T) {
	d, err := New(newFakeBrick(t, nil), testConfig())
	require.NoError(t, err)

	require.NoError(t, d.Close())
	waitDone(t, d)
	assert.Equal(t, StateClosed, d.State().Kind)

	assert.ErrorIs(t, d.Connect(context.Background()), nxt.ErrNotReady)
}

func TestPeerHangUp_Closes(t *testing.T) {
	brick := newFakeBrick(t, nil)
	d, _ := connect(t, brick, Config{PollInterval: time.Hour})

	brick.hangUp()
	waitDone(t, d)
	assert.Equal(t, StateClosed, d.State().Kind)
	assert.NoError(t, d.Err())
}

func TestDone_FollowsFinalEvent(t *testing.T) {
	for i := 0; i < 20; i++ {
		brick := newFakeBrick(t, func(req []byte) []byte {
			if req[1] == nxt.OpPlayTone {
				return nxt.MustEncodeFrame([]byte{0x02, 0x03, 0xBD})
			}
			return defaultReplies(req)
		})
		d, rec := connect(t, brick, Config{PollInterval: time.Hour})

		_ = d.PlayTone(context.Background(), 440, time.Second)
		<-d.Done()

		kinds := rec.kinds()
		require.NotEmpty(t, kinds)
		assert.Equal(t, StateGone, kinds[len(kinds)-1], "run %d", i)
		gone := 0
		for _, k := range kinds {
			if k == StateGone {
				gone++
			}
		}
		assert.Equal(t, 1, gone, "run %d", i)
	}
}

func TestDone_FollowsCloseEvents(t *testing.T) {
	d, rec := connect(t, newFakeBrick(t, nil), testConfig())

	go d.Close()
	<-d.Done()

	kinds := rec.kinds()
	assert.Equal(t, StateClosed, kinds[len(kinds)-1])
}

func TestPoller_StopsAfterCrash(t *testing.T) {
	var queries atomic.Int32
	brick := newFakeBrick(t, func(req []byte) []byte {
		if req[1] == nxt.OpGetOutputState && queries.Add(1) == 5 {
			reply := outputReply(nxt.Port(req[2]), 0, 0)
			reply[2] = 0xBD
			return nxt.MustEncodeFrame(reply)
		}
		return defaultReplies(req)
	})
	d, _ := connect(t, brick, testConfig())

	waitDone(t, d)
	assert.Equal(t, StateGone, d.State().Kind)
	waitDrained(t, d)

	sent := len(brick.sent(nxt.OpGetOutputState))
	assert.Equal(t, 5, sent)
	time.Sleep(20 * testConfig().PollInterval)
	assert.Len(t, brick.sent(nxt.OpGetOutputState), sent)
}

func TestPoller_StopsAfterClose(t *testing.T) {
	brick := newFakeBrick(t, nil)
	d, _ := connect(t, brick, testConfig())

	require.Eventually(t, func() bool {
		return len(brick.sent(nxt.OpGetOutputState)) >= 3
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, d.Close())
	waitDrained(t, d)

	sent := len(brick.sent(nxt.OpGetOutputState))
	time.Sleep(20 * testConfig().PollInterval)
	assert.Len(t, brick.sent(nxt.OpGetOutputState), sent)
}

func TestStats_CountTraffic(t *testing.T) {
	d, _ := connect(t, newFakeBrick(t, nil), Config{PollInterval: time.Hour})
	require.NoError(t, d.PlayTone(context.Background(), 440, time.Second))

	stats := d.Stats()
	assert.GreaterOrEqual(t, stats.FramesSent, uint64(2))
	assert.GreaterOrEqual(t, stats.FramesReceived, uint64(2))
	assert.GreaterOrEqual(t, stats.CallsCompleted, uint64(2))
	assert.Zero(t, stats.Errors())
}

func TestLog_Retention(t *testing.T) {
	brick := newFakeBrick(t, nil)
	cfg := Config{PollInterval: time.Hour, LogRetention: 5}
	d, _ := connect(t, brick, cfg)

	for i := 0; i < 10; i++ {
		require.NoError(t, d.PlayTone(context.Background(), 440, time.Millisecond))
	}

	snap := d.Snapshot()
	require.Len(t, snap.Log, 5)
	assert.Equal(t, "*** ready ***", snap.Log[4])
}
