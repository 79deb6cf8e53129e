// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nxt

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the closed set of failures the driver can report
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindFrameTooLarge
	KindTruncatedFrame
	KindUnexpectedPacket
	KindProtocolViolation
	KindParameterOutOfRange
	KindTransportOpenFailure
	KindCallTimeout
	KindInvalidStateChange
	KindNotReady
	KindConnectionLost
)

// String returns the kind's name
func (k ErrorKind) String() string {
	switch k {
	case KindFrameTooLarge:
		return "frame too large"
	case KindTruncatedFrame:
		return "truncated frame"
	case KindUnexpectedPacket:
		return "unexpected packet"
	case KindProtocolViolation:
		return "protocol violation"
	case KindParameterOutOfRange:
		return "parameter out of range"
	case KindTransportOpenFailure:
		return "transport open failure"
	case KindCallTimeout:
		return "call timeout"
	case KindInvalidStateChange:
		return "invalid state change"
	case KindNotReady:
		return "not ready"
	case KindConnectionLost:
		return "connection lost"
	default:
		return "unknown error"
	}
}

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrFrameTooLarge        = &Error{Kind: KindFrameTooLarge}
	ErrTruncatedFrame       = &Error{Kind: KindTruncatedFrame}
	ErrUnexpectedPacket     = &Error{Kind: KindUnexpectedPacket}
	ErrProtocolViolation    = &Error{Kind: KindProtocolViolation}
	ErrParameterOutOfRange  = &Error{Kind: KindParameterOutOfRange}
	ErrTransportOpenFailure = &Error{Kind: KindTransportOpenFailure}
	ErrCallTimeout          = &Error{Kind: KindCallTimeout}
	ErrInvalidStateChange   = &Error{Kind: KindInvalidStateChange}
	ErrNotReady             = &Error{Kind: KindNotReady}
	ErrConnectionLost       = &Error{Kind: KindConnectionLost}
)

// Error carries a failure kind with the context needed to diagnose it
type Error struct {
	Kind     ErrorKind
	Op       string // Command or operation that failed
	Detail   string
	Expected int // Expected length or byte value, -1 when not applicable
	Actual   int // Actual length or byte value, -1 when not applicable
	Bytes    []byte
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Expected >= 0 && e.Actual >= 0 && e.Expected != e.Actual {
		fmt.Fprintf(&b, " (expected %d, got %d)", e.Expected, e.Actual)
	}
	if len(e.Bytes) > 0 {
		fmt.Fprintf(&b, " [% X]", e.Bytes)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// newError builds an *Error without length context
func newError(kind ErrorKind, op, detail string) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail, Expected: -1, Actual: -1}
}

// NewError builds an *Error wrapping err
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Expected: -1, Actual: -1, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsFatal reports whether err must bring the connection down.
// Parameter validation and refused calls leave the connection untouched.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindParameterOutOfRange, KindNotReady, KindInvalidStateChange, KindConnectionLost:
		return false
	}
	return true
}
