// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nxt

import (
	"fmt"
	"strings"
)

// FormatOpcode returns the human-readable name for an opcode
func FormatOpcode(op byte) string {
	switch op {
	case OpPlayTone:
		return "PLAY_TONE"
	case OpSetOutputState:
		return "SET_OUTPUT_STATE"
	case OpGetOutputState:
		return "GET_OUTPUT_STATE"
	case OpGetFirmwareVersion:
		return "GET_FIRMWARE_VERSION"
	default:
		return fmt.Sprintf("OPCODE_0x%02X", op)
	}
}

// FormatTelegramType returns the human-readable name for a telegram type byte.
// The reply-not-required bit (0x80) is ignored.
func FormatTelegramType(t byte) string {
	switch t &^ 0x80 {
	case TypeDirectCommand:
		return "DIRECT"
	case TypeSystemCommand:
		return "SYSTEM"
	case TypeReply:
		return "REPLY"
	default:
		return "UNKNOWN"
	}
}

// FormatStatus returns the meaning of a reply status byte.
// Codes are from the NXT direct commands appendix.
func FormatStatus(status byte) string {
	meanings := map[byte]string{
		0x00: "success",
		0x20: "pending communication transaction in progress",
		0x40: "specified mailbox queue is empty",
		0xBD: "request failed",
		0xBE: "unknown command opcode",
		0xBF: "insane packet",
		0xC0: "data contains out-of-range values",
		0xDD: "communication bus error",
		0xDE: "no free memory in communication buffer",
		0xDF: "specified channel/connection is not valid",
		0xE0: "specified channel/connection not configured or busy",
		0xEC: "no active program",
		0xED: "illegal size specified",
		0xEE: "illegal mailbox queue ID specified",
		0xEF: "attempted to access invalid field of a structure",
		0xF0: "bad input or output specified",
		0xFB: "insufficient memory available",
		0xFF: "bad arguments",
	}
	if m, ok := meanings[status]; ok {
		return m
	}
	return "unknown status"
}

// FormatFrame renders a frame payload on one line: telegram type, opcode,
// length and a hex dump
func FormatFrame(payload []byte) string {
	if len(payload) < 2 {
		return fmt.Sprintf("SHORT len=%d %s", len(payload), FormatHex(payload))
	}
	result := fmt.Sprintf("%s %s (0x%02X) len=%d", FormatTelegramType(payload[0]), FormatOpcode(payload[1]), payload[1], len(payload))
	if payload[0] == TypeReply && len(payload) >= 3 && payload[2] != StatusSuccess {
		result += fmt.Sprintf(" status=0x%02X", payload[2])
	}
	return result + " " + FormatHex(payload)
}

// FormatHex dumps bytes as space-separated hex pairs
func FormatHex(data []byte) string {
	if len(data) == 0 {
		return "[]"
	}
	var s strings.Builder
	s.WriteString("[")
	for i, b := range data {
		if i > 0 {
			s.WriteString(" ")
		}
		fmt.Fprintf(&s, "%02X", b)
	}
	s.WriteString("]")
	return s.String()
}
