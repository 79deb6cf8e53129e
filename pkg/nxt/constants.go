// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package nxt implements the Bluetooth wire protocol spoken by LEGO MINDSTORMS
// NXT controller bricks.
//
// Every transmission is a frame: a two-byte little-endian length followed by
// the payload. Payloads are direct commands (request) or their replies
// (response). This package provides frame encoding, an incremental frame
// decoder, typed commands with response validation, and formatting helpers.
//
// See "LEGO MINDSTORMS NXT Communication Protocol", appendix 1 and 2.
package nxt

// Frame size limits
const (
	HeaderSize      = 2   // Little-endian payload length
	MaxPayloadSize  = 255 // Largest payload this package will encode
	MaxDeclaredSize = 0xFFFF
)

// Telegram types (first payload byte)
const (
	TypeDirectCommand = 0x00
	TypeSystemCommand = 0x01
	TypeReply         = 0x02
)

// Opcodes (second payload byte)
const (
	OpPlayTone           = 0x03
	OpSetOutputState     = 0x04
	OpGetOutputState     = 0x06
	OpGetFirmwareVersion = 0x88
)

// Response lengths including telegram type, opcode and status bytes
const (
	ackResponseLen             = 3
	getOutputStateResponseLen  = 25
	firmwareVersionResponseLen = 7
)

// Status byte value for a successful command
const StatusSuccess = 0x00

// Tone limits
const (
	MinToneFrequency = 200
	MaxToneFrequency = 14000
)

// Power limits
const (
	MinPower = -100
	MaxPower = 100
)

// Output mode bits
const (
	ModeMotorOn   = 0x01
	ModeBrake     = 0x02
	ModeRegulated = 0x04
)

// Regulation modes
const (
	RegulationIdle       = 0x00
	RegulationMotorSpeed = 0x01
	RegulationMotorSync  = 0x02
)

// Run states
const (
	RunStateIdle     = 0x00
	RunStateRampUp   = 0x10
	RunStateRunning  = 0x20
	RunStateRampDown = 0x40
)
