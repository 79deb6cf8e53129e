// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nxt

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// Command is a direct or system command with a typed reply.
// Payload validates the parameters and returns the request bytes; Decode
// validates a reply frame and extracts its fields.
type Command[R any] interface {
	Name() string
	Payload() ([]byte, error)
	Decode(reply []byte) (R, error)
}

// Ack is the reply of commands that return only a status
type Ack struct{}

//////////////////////////////////////////////////////////////
// Ports
//////////////////////////////////////////////////////////////

// Port addresses one output channel of the brick
type Port byte

const (
	PortA   Port = 0x00
	PortB   Port = 0x01
	PortC   Port = 0x02
	PortAll Port = 0xFF // Broadcast, valid for SetOutputState only
)

// Ports lists the addressable outputs in polling order
var Ports = []Port{PortA, PortB, PortC}

// String returns the port label used on the brick
func (p Port) String() string {
	switch p {
	case PortA:
		return "A"
	case PortB:
		return "B"
	case PortC:
		return "C"
	case PortAll:
		return "all"
	default:
		return fmt.Sprintf("port(0x%02X)", byte(p))
	}
}

// Valid reports whether p names a single output
func (p Port) Valid() bool {
	return p <= PortC
}

// ParsePort parses "a", "b", "c" or "all", case-insensitively
func ParsePort(s string) (Port, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a":
		return PortA, nil
	case "b":
		return PortB, nil
	case "c":
		return PortC, nil
	case "all":
		return PortAll, nil
	}
	return 0, newError(KindParameterOutOfRange, "ParsePort", fmt.Sprintf("unknown port %q (use a, b, c or all)", s))
}

//////////////////////////////////////////////////////////////
// GetFirmwareVersion
//////////////////////////////////////////////////////////////

// Version is a major.minor pair
type Version struct {
	Major uint8 `json:"major" cbor:"major"`
	Minor uint8 `json:"minor" cbor:"minor"`
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// FirmwareVersion is the reply to GetFirmwareVersion
type FirmwareVersion struct {
	Protocol Version `json:"protocol" cbor:"protocol"`
	Firmware Version `json:"firmware" cbor:"firmware"`
}

func (f FirmwareVersion) String() string {
	return fmt.Sprintf("protocol %s, firmware %s", f.Protocol, f.Firmware)
}

// GetFirmwareVersion queries the protocol and firmware versions (system command 0x88)
type GetFirmwareVersion struct{}

func (GetFirmwareVersion) Name() string { return "getFirmwareVersion" }

func (GetFirmwareVersion) Payload() ([]byte, error) {
	return []byte{TypeSystemCommand, OpGetFirmwareVersion}, nil
}

// Decode extracts the versions. The protocol major is taken from byte 0.
func (c GetFirmwareVersion) Decode(reply []byte) (FirmwareVersion, error) {
	if err := checkReply(c.Name(), reply, OpGetFirmwareVersion, firmwareVersionResponseLen); err != nil {
		return FirmwareVersion{}, err
	}
	return FirmwareVersion{
		Protocol: Version{Major: reply[0], Minor: reply[3]},
		Firmware: Version{Major: reply[6], Minor: reply[5]},
	}, nil
}

//////////////////////////////////////////////////////////////
// GetOutputState
//////////////////////////////////////////////////////////////

// OutputState is the reply to GetOutputState
type OutputState struct {
	Port            Port   `json:"port" cbor:"port"`
	Power           int8   `json:"power" cbor:"power"`
	Mode            uint8  `json:"mode" cbor:"mode"`
	RegulationMode  uint8  `json:"regulation_mode" cbor:"regulation_mode"`
	TurnRatio       int8   `json:"turn_ratio" cbor:"turn_ratio"`
	RunState        uint8  `json:"run_state" cbor:"run_state"`
	TachoLimit      uint32 `json:"tacho_limit" cbor:"tacho_limit"`
	TachoCount      int32  `json:"tacho_count" cbor:"tacho_count"`
	BlockTachoCount int32  `json:"block_tacho_count" cbor:"block_tacho_count"`
	RotationCount   int32  `json:"rotation_count" cbor:"rotation_count"`
}

// Position returns the accumulated tachometer count
func (s OutputState) Position() int32 {
	return s.TachoCount
}

func (s OutputState) String() string {
	return fmt.Sprintf("port=%s power=%d mode=0x%02X reg=0x%02X run=0x%02X pos=%d",
		s.Port, s.Power, s.Mode, s.RegulationMode, s.RunState, s.TachoCount)
}

// GetOutputState queries the live state of one output (direct command 0x06)
type GetOutputState struct {
	Port Port
}

func (GetOutputState) Name() string { return "getOutputState" }

func (c GetOutputState) Payload() ([]byte, error) {
	if !c.Port.Valid() {
		return nil, newError(KindParameterOutOfRange, c.Name(), fmt.Sprintf("cannot query %s", c.Port))
	}
	return []byte{TypeDirectCommand, OpGetOutputState, byte(c.Port)}, nil
}

func (c GetOutputState) Decode(reply []byte) (OutputState, error) {
	if err := checkReply(c.Name(), reply, OpGetOutputState, getOutputStateResponseLen); err != nil {
		return OutputState{}, err
	}
	return OutputState{
		Port:            Port(reply[3]),
		Power:           int8(reply[4]),
		Mode:            reply[5],
		RegulationMode:  reply[6],
		TurnRatio:       int8(reply[7]),
		RunState:        reply[8],
		TachoLimit:      binary.LittleEndian.Uint32(reply[9:13]),
		TachoCount:      int32(binary.LittleEndian.Uint32(reply[13:17])),
		BlockTachoCount: int32(binary.LittleEndian.Uint32(reply[17:21])),
		RotationCount:   int32(binary.LittleEndian.Uint32(reply[21:25])),
	}, nil
}

//////////////////////////////////////////////////////////////
// SetOutputState
//////////////////////////////////////////////////////////////

// OutputMode selects how SetOutputState drives the output
type OutputMode int

const (
	// OutputCoast lets the motor spin freely
	OutputCoast OutputMode = iota
	// OutputOn drives the motor with braking and speed regulation
	OutputOn
)

func (m OutputMode) String() string {
	if m == OutputOn {
		return "on"
	}
	return "coast"
}

func (m OutputMode) modeByte() byte {
	if m == OutputOn {
		return ModeMotorOn | ModeBrake | ModeRegulated
	}
	return 0
}

func (m OutputMode) runStateByte() byte {
	if m == OutputOn {
		return RunStateRunning
	}
	return RunStateIdle
}

// SetOutputState drives one output, or all of them with PortAll (direct command 0x04).
// The tacho limit is zero, so the output runs until told otherwise.
type SetOutputState struct {
	Port  Port
	Mode  OutputMode
	Power int
}

func (SetOutputState) Name() string { return "setOutputState" }

func (c SetOutputState) Payload() ([]byte, error) {
	if !c.Port.Valid() && c.Port != PortAll {
		return nil, newError(KindParameterOutOfRange, c.Name(), fmt.Sprintf("unknown %s", c.Port))
	}
	if c.Power < MinPower || c.Power > MaxPower {
		return nil, newError(KindParameterOutOfRange, c.Name(), fmt.Sprintf("power out of range: %d (want %d..%d)", c.Power, MinPower, MaxPower))
	}
	return []byte{
		TypeDirectCommand, OpSetOutputState,
		byte(c.Port),
		byte(int8(c.Power)),
		c.Mode.modeByte(),
		RegulationMotorSpeed,
		0, // Turn ratio
		c.Mode.runStateByte(),
		0, 0, 0, 0, // Tacho limit, run forever
	}, nil
}

func (c SetOutputState) Decode(reply []byte) (Ack, error) {
	return Ack{}, checkReply(c.Name(), reply, OpSetOutputState, ackResponseLen)
}

//////////////////////////////////////////////////////////////
// PlayTone
//////////////////////////////////////////////////////////////

// PlayTone sounds the speaker (direct command 0x03)
type PlayTone struct {
	Frequency int // Hz
	Duration  time.Duration
}

func (PlayTone) Name() string { return "playTone" }

func (c PlayTone) Payload() ([]byte, error) {
	if c.Frequency < MinToneFrequency || c.Frequency > MaxToneFrequency {
		return nil, newError(KindParameterOutOfRange, c.Name(), fmt.Sprintf("frequency out of range: %d Hz (want %d..%d)", c.Frequency, MinToneFrequency, MaxToneFrequency))
	}
	ms := c.Duration.Milliseconds()
	if ms < 0 || ms > 0xFFFF {
		return nil, newError(KindParameterOutOfRange, c.Name(), fmt.Sprintf("duration out of range: %d ms (want 0..65535)", ms))
	}
	hz := uint16(c.Frequency)
	millis := uint16(ms)
	return []byte{
		TypeDirectCommand, OpPlayTone,
		byte(hz), byte(hz >> 8),
		byte(millis), byte(millis >> 8),
	}, nil
}

func (c PlayTone) Decode(reply []byte) (Ack, error) {
	return Ack{}, checkReply(c.Name(), reply, OpPlayTone, ackResponseLen)
}
