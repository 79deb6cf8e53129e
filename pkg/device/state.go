// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"fmt"
	"slices"

	"github.com/Thermoquad/brickstat/pkg/nxt"
)

// StateKind is the connection lifecycle phase
type StateKind int

const (
	StateStart StateKind = iota
	StateConnecting
	StateReady
	StateCalling
	StateClosing
	StateClosed
	StateGone
)

func (k StateKind) String() string {
	switch k {
	case StateStart:
		return "start"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateCalling:
		return "calling"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateGone:
		return "gone"
	default:
		return fmt.Sprintf("state(%d)", int(k))
	}
}

// State is the current lifecycle phase. Call is set in StateCalling and
// Reason in StateGone.
type State struct {
	Kind   StateKind
	Call   string
	Reason error
}

// String renders the state the way it appears in the event log
func (s State) String() string {
	switch s.Kind {
	case StateCalling:
		return "calling " + s.Call
	case StateGone:
		if s.Reason != nil {
			return s.Reason.Error()
		}
	}
	return s.Kind.String()
}

// Terminal reports whether no further transitions are possible
func (s State) Terminal() bool {
	return s.Kind == StateClosed || s.Kind == StateGone
}

// Live reports whether the stream is open and in use
func (s State) Live() bool {
	switch s.Kind {
	case StateConnecting, StateReady, StateCalling:
		return true
	}
	return false
}

var transitions = map[StateKind][]StateKind{
	StateStart:      {StateConnecting, StateClosed, StateGone},
	StateConnecting: {StateReady, StateClosing, StateClosed, StateGone},
	StateReady:      {StateCalling, StateClosing, StateClosed, StateGone},
	StateCalling:    {StateReady, StateClosing, StateClosed, StateGone},
	StateClosing:    {StateClosed, StateGone},
}

// checkTransition returns an InvalidStateChange error unless from may move to
// to. Moving to the same kind is never allowed.
func checkTransition(from, to State) error {
	if from.Kind == to.Kind {
		return &nxt.Error{
			Kind:     nxt.KindInvalidStateChange,
			Op:       "transition",
			Detail:   fmt.Sprintf("already %s", from.Kind),
			Expected: -1,
			Actual:   -1,
		}
	}
	if !slices.Contains(transitions[from.Kind], to.Kind) {
		return &nxt.Error{
			Kind:     nxt.KindInvalidStateChange,
			Op:       "transition",
			Detail:   fmt.Sprintf("%s cannot move to %s", from.Kind, to.Kind),
			Expected: -1,
			Actual:   -1,
		}
	}
	return nil
}
