// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nxt

import "fmt"

// checkReply validates the fixed part of every reply: total length, telegram
// type, opcode echo and status byte. Any mismatch is a protocol violation.
func checkReply(op string, reply []byte, opcode byte, wantLen int) error {
	if len(reply) != wantLen {
		return &Error{
			Kind:     KindProtocolViolation,
			Op:       op,
			Detail:   "unexpected response length",
			Expected: wantLen,
			Actual:   len(reply),
			Bytes:    reply,
		}
	}
	if reply[0] != TypeReply {
		return &Error{
			Kind:     KindProtocolViolation,
			Op:       op,
			Detail:   "not a response packet",
			Expected: TypeReply,
			Actual:   int(reply[0]),
			Bytes:    reply,
		}
	}
	if reply[1] != opcode {
		return &Error{
			Kind:     KindProtocolViolation,
			Op:       op,
			Detail:   fmt.Sprintf("response to unexpected command %s", FormatOpcode(reply[1])),
			Expected: int(opcode),
			Actual:   int(reply[1]),
			Bytes:    reply,
		}
	}
	if reply[2] != StatusSuccess {
		return &Error{
			Kind:     KindProtocolViolation,
			Op:       op,
			Detail:   fmt.Sprintf("device reported error 0x%02X (%s)", reply[2], FormatStatus(reply[2])),
			Expected: StatusSuccess,
			Actual:   int(reply[2]),
			Bytes:    reply,
		}
	}
	return nil
}
