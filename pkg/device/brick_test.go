// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/brickstat/pkg/nxt"
)

var firmwareReply = []byte{0x02, 0x88, 0x00, 0x01, 0x00, 0x02, 0x01}

func ackReply(op byte) []byte {
	return []byte{nxt.TypeReply, op, nxt.StatusSuccess}
}

func outputReply(port nxt.Port, power int8, tacho int32) []byte {
	reply := make([]byte, 25)
	reply[0] = nxt.TypeReply
	reply[1] = nxt.OpGetOutputState
	reply[3] = byte(port)
	reply[4] = byte(power)
	reply[13] = byte(tacho)
	reply[14] = byte(tacho >> 8)
	reply[15] = byte(tacho >> 16)
	reply[16] = byte(tacho >> 24)
	return reply
}

// fakeBrick answers requests on the far end of a pipe. The handler returns
// the raw bytes to write back, which may be zero, one or several frames.
type fakeBrick struct {
	t       *testing.T
	handler func(req []byte) []byte

	mu       sync.Mutex
	requests [][]byte
	conn     net.Conn
	opened   OpenOptions
	openErr  error
}

// defaultReplies answers like a healthy brick
func defaultReplies(req []byte) []byte {
	switch req[1] {
	case nxt.OpGetFirmwareVersion:
		return nxt.MustEncodeFrame(firmwareReply)
	case nxt.OpGetOutputState:
		return nxt.MustEncodeFrame(outputReply(nxt.Port(req[2]), 20, 100*int32(req[2]+1)))
	default:
		return nxt.MustEncodeFrame(ackReply(req[1]))
	}
}

func newFakeBrick(t *testing.T, handler func(req []byte) []byte) *fakeBrick {
	if handler == nil {
		handler = defaultReplies
	}
	return &fakeBrick{t: t, handler: handler}
}

func (b *fakeBrick) Open(ctx context.Context, opts OpenOptions) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.opened = opts
	client, server := net.Pipe()
	b.conn = server
	go b.serve(server)
	b.t.Cleanup(func() { server.Close() })
	return client, nil
}

func (b *fakeBrick) serve(conn net.Conn) {
	fr := nxt.NewFrameReader(conn, 64)
	for req, err := range fr.Frames() {
		if err != nil {
			return
		}
		b.mu.Lock()
		b.requests = append(b.requests, req)
		b.mu.Unlock()

		if out := b.handler(req); len(out) > 0 {
			// Split replies so the driver reassembles them
			for len(out) > 0 {
				n := min(len(out), 3)
				if _, err := conn.Write(out[:n]); err != nil {
					return
				}
				out = out[n:]
			}
		}
	}
}

// hangUp closes the brick's end of the stream
func (b *fakeBrick) hangUp() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		b.conn.Close()
	}
}

// sent returns the requests received with the given opcode
func (b *fakeBrick) sent(op byte) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out [][]byte
	for _, r := range b.requests {
		if r[1] == op {
			out = append(out, r)
		}
	}
	return out
}

func (b *fakeBrick) write(raw []byte) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	_, err := conn.Write(raw)
	return err
}

// recorder collects events delivered to a subscriber
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []State
	for _, ev := range r.events {
		if ev.Kind == EventStateChanged {
			out = append(out, ev.State)
		}
	}
	return out
}

func (r *recorder) kinds() []StateKind {
	var out []StateKind
	for _, s := range r.states() {
		out = append(out, s.Kind)
	}
	return out
}

func (r *recorder) readings() []Reading {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Reading
	for _, ev := range r.events {
		if ev.Kind == EventTelemetryUpdated {
			out = append(out, ev.Reading)
		}
	}
	return out
}

func testConfig() Config {
	return Config{
		CallTimeout:  500 * time.Millisecond,
		PollInterval: time.Millisecond,
	}
}

// connect returns a ready device talking to brick, with a recorder attached
// before the first event
func connect(t *testing.T, brick *fakeBrick, cfg Config) (*Device, *recorder) {
	t.Helper()
	d, err := New(brick, cfg)
	require.NoError(t, err)
	rec := &recorder{}
	d.Subscribe(rec.record)
	t.Cleanup(func() { d.Close() })

	require.NoError(t, d.Connect(context.Background()))
	return d, rec
}

// waitDone waits for a terminal state; Done also implies every event was delivered
func waitDone(t *testing.T, d *Device) {
	t.Helper()
	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("device still %s", d.State())
	}
}

// waitDrained waits for the background goroutines to exit
func waitDrained(t *testing.T, d *Device) {
	t.Helper()
	drained := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatal("background goroutines still running")
	}
}

var errBrickOffline = errors.New("brick offline")

func TestFakeBrick_OpenFailure(t *testing.T) {
	brick := newFakeBrick(t, nil)
	brick.openErr = errBrickOffline
	_, err := brick.Open(context.Background(), OpenOptions{})
	assert.ErrorIs(t, err, errBrickOffline)
}
