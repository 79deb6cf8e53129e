// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

// eventLog keeps the most recent lines, oldest first.
// Guarded by the Device mutex.
type eventLog struct {
	lines []string
	max   int
}

func newEventLog(max int) *eventLog {
	return &eventLog{
		lines: make([]string, 0, max),
		max:   max,
	}
}

func (l *eventLog) add(line string) {
	l.lines = append(l.lines, line)
	if len(l.lines) > l.max {
		l.lines = l.lines[len(l.lines)-l.max:]
	}
}

// snapshot returns a copy of the retained lines
func (l *eventLog) snapshot() []string {
	return append([]string(nil), l.lines...)
}
