// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nxt

import (
	"fmt"
	"time"
)

// Statistics tracks link traffic and error counts.
// It is not safe for concurrent use; callers serialize access.
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	FramesSent       uint64
	FramesReceived   uint64
	BytesSent        uint64
	BytesReceived    uint64
	CallsCompleted   uint64
	ProtocolErrors   uint64
	UnexpectedFrames uint64
	Timeouts         uint64
	TransportErrors  uint64

	// Latency of the last completed call
	LastCallLatency time.Duration

	// Rates (calculated)
	FrameRate float64 // frames/sec, both directions
	CallRate  float64 // calls/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// RecordSent counts one outbound frame of n wire bytes
func (s *Statistics) RecordSent(n int) {
	s.FramesSent++
	s.BytesSent += uint64(n)
	s.LastUpdateTime = time.Now()
}

// RecordReceived counts one inbound frame of n payload bytes
func (s *Statistics) RecordReceived(n int) {
	s.FramesReceived++
	s.BytesReceived += uint64(n + HeaderSize)
	s.LastUpdateTime = time.Now()
}

// RecordCall counts a completed call and its round-trip latency
func (s *Statistics) RecordCall(latency time.Duration) {
	s.CallsCompleted++
	s.LastCallLatency = latency
	s.LastUpdateTime = time.Now()
}

// RecordError counts a failure by kind
func (s *Statistics) RecordError(err error) {
	switch KindOf(err) {
	case KindProtocolViolation, KindTruncatedFrame, KindFrameTooLarge:
		s.ProtocolErrors++
	case KindUnexpectedPacket:
		s.UnexpectedFrames++
	case KindCallTimeout:
		s.Timeouts++
	case KindParameterOutOfRange, KindNotReady, KindInvalidStateChange, KindConnectionLost:
		return
	default:
		s.TransportErrors++
	}
	s.LastUpdateTime = time.Now()
}

// CalculateRates calculates frame and call rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.FramesSent+s.FramesReceived) / elapsed
		s.CallRate = float64(s.CallsCompleted) / elapsed
	}
}

// Errors returns the total number of counted failures
func (s *Statistics) Errors() uint64 {
	return s.ProtocolErrors + s.UnexpectedFrames + s.Timeouts + s.TransportErrors
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Frames Sent:     %8d (%d bytes)\n", s.FramesSent, s.BytesSent)
	result += fmt.Sprintf("Frames Received: %8d (%d bytes)\n", s.FramesReceived, s.BytesReceived)
	result += fmt.Sprintf("Calls Completed: %8d\n", s.CallsCompleted)

	if s.ProtocolErrors > 0 {
		result += fmt.Sprintf("Protocol Errors: %8d\n", s.ProtocolErrors)
	}
	if s.UnexpectedFrames > 0 {
		result += fmt.Sprintf("Unexpected Pkts: %8d\n", s.UnexpectedFrames)
	}
	if s.Timeouts > 0 {
		result += fmt.Sprintf("Call Timeouts:   %8d\n", s.Timeouts)
	}
	if s.TransportErrors > 0 {
		result += fmt.Sprintf("Transport Errors:%8d\n", s.TransportErrors)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Call Rate:       %8.1f calls/sec\n", s.CallRate)
	result += fmt.Sprintf("Last Latency:    %8s\n", s.LastCallLatency.Round(time.Millisecond))
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
