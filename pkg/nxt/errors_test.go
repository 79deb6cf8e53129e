// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nxt

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	err := &Error{
		Kind:     KindProtocolViolation,
		Op:       "getOutputState",
		Detail:   "unexpected response length",
		Expected: 25,
		Actual:   3,
		Bytes:    []byte{0x02, 0x06, 0x00},
	}
	assert.Equal(t, "getOutputState: protocol violation: unexpected response length (expected 25, got 3) [02 06 00]", err.Error())
}

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", newError(KindCallTimeout, "playTone", "no response"))

	assert.ErrorIs(t, err, ErrCallTimeout)
	assert.NotErrorIs(t, err, ErrProtocolViolation)
	assert.Equal(t, KindCallTimeout, KindOf(err))
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("no such device")
	err := NewError(KindTransportOpenFailure, "open", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrTransportOpenFailure)
	assert.Equal(t, "open: transport open failure: no such device", err.Error())
}

func TestIsFatal(t *testing.T) {
	assert.False(t, IsFatal(nil))
	assert.False(t, IsFatal(ErrParameterOutOfRange))
	assert.False(t, IsFatal(ErrNotReady))
	assert.False(t, IsFatal(ErrConnectionLost))
	assert.True(t, IsFatal(ErrUnexpectedPacket))
	assert.True(t, IsFatal(ErrCallTimeout))
	assert.True(t, IsFatal(errors.New("read: broken pipe")))
}

func TestStatistics_RecordError(t *testing.T) {
	s := NewStatistics()
	s.RecordError(ErrProtocolViolation)
	s.RecordError(ErrUnexpectedPacket)
	s.RecordError(ErrCallTimeout)
	s.RecordError(errors.New("eof"))
	s.RecordError(ErrParameterOutOfRange)

	assert.Equal(t, uint64(1), s.ProtocolErrors)
	assert.Equal(t, uint64(1), s.UnexpectedFrames)
	assert.Equal(t, uint64(1), s.Timeouts)
	assert.Equal(t, uint64(1), s.TransportErrors)
	assert.Equal(t, uint64(4), s.Errors())
}

func TestStatistics_Traffic(t *testing.T) {
	s := NewStatistics()
	s.RecordSent(4)
	s.RecordReceived(7)
	s.RecordCall(0)

	assert.Equal(t, uint64(1), s.FramesSent)
	assert.Equal(t, uint64(4), s.BytesSent)
	assert.Equal(t, uint64(9), s.BytesReceived)
	assert.Equal(t, uint64(1), s.CallsCompleted)
	assert.Contains(t, s.String(), "Calls Completed:        1")

	s.Reset()
	assert.Zero(t, s.FramesSent)
}

func TestFormatFrame(t *testing.T) {
	assert.Equal(t, "REPLY GET_FIRMWARE_VERSION (0x88) len=3 [02 88 00]", FormatFrame([]byte{0x02, 0x88, 0x00}))
	assert.Equal(t, "REPLY PLAY_TONE (0x03) len=3 status=0xBD [02 03 BD]", FormatFrame([]byte{0x02, 0x03, 0xBD}))
	assert.Equal(t, "SHORT len=1 [02]", FormatFrame([]byte{0x02}))
	assert.Equal(t, "[]", FormatHex(nil))
}
