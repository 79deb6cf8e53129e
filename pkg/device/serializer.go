// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Thermoquad/brickstat/internal/syncutil"
	"github.com/Thermoquad/brickstat/pkg/nxt"
)

// SerializerHooks observe traffic through a Serializer. Any hook may be nil.
// Hooks run on the worker or reader goroutine and must not block.
type SerializerHooks struct {
	OnSent  func(frame []byte)
	OnReply func(op string, latency time.Duration)
	OnFatal func(err error)
}

type callResult struct {
	reply []byte
	err   error
}

type callRequest struct {
	id    ulid.ULID
	op    string
	frame []byte
	done  chan callResult // Buffered, receives exactly one result
}

// awaiting is the single in-flight call
type awaiting struct {
	id    ulid.ULID
	op    string
	reply chan []byte
}

// Serializer sends one call at a time and matches each reply to the call
// that caused it. Calls are written in submission order by a single worker;
// the next call is not written until the previous reply has arrived.
type Serializer struct {
	w       io.Writer
	timeout time.Duration
	logger  *slog.Logger
	hooks   SerializerHooks

	mu       syncutil.Mutex
	queue    []*callRequest
	inFlight *awaiting
	err      error // Set once closed

	wake    chan struct{}
	quit    chan struct{}
	stopped chan struct{}
}

// NewSerializer creates a serializer writing frames to w. Start must be
// called before any call can complete.
func NewSerializer(w io.Writer, timeout time.Duration, logger *slog.Logger, hooks SerializerHooks) *Serializer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Serializer{
		w:       w,
		timeout: timeout,
		logger:  logger,
		hooks:   hooks,
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start launches the worker goroutine
func (s *Serializer) Start() {
	go s.run()
}

// Call queues payload and blocks until its reply arrives, the call times
// out, the serializer closes or ctx is done. A call abandoned through ctx
// while still queued is never written.
func (s *Serializer) Call(ctx context.Context, op string, payload []byte) ([]byte, error) {
	frame, err := nxt.EncodeFrame(payload)
	if err != nil {
		return nil, err
	}

	req := &callRequest{
		id:    ulid.Make(),
		op:    op,
		frame: frame,
		done:  make(chan callResult, 1),
	}

	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return nil, err
	}
	s.queue = append(s.queue, req)
	s.mu.Unlock()
	s.signal()

	select {
	case res := <-req.done:
		return res.reply, res.err
	case <-ctx.Done():
		s.dequeue(req)
		return nil, ctx.Err()
	}
}

// Deliver hands a received frame to the in-flight call. A frame with no call
// waiting for it is an UnexpectedPacket error.
func (s *Serializer) Deliver(frame []byte) error {
	s.mu.Lock()
	slot := s.inFlight
	s.inFlight = nil
	s.mu.Unlock()

	if slot == nil {
		return &nxt.Error{
			Kind:     nxt.KindUnexpectedPacket,
			Op:       "deliver",
			Detail:   "frame arrived with no call pending",
			Expected: -1,
			Actual:   -1,
			Bytes:    frame,
		}
	}

	s.logger.Debug("reply matched", "call", slot.id, "op", slot.op, "len", len(frame))
	slot.reply <- frame
	return nil
}

// Pending returns the number of calls queued or in flight
func (s *Serializer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.queue)
	if s.inFlight != nil {
		n++
	}
	return n
}

// Close fails every queued and in-flight call with a ConnectionLost error
// wrapping reason, and stops the worker. Later calls fail immediately.
func (s *Serializer) Close(reason error) {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return
	}
	s.err = nxt.NewError(nxt.KindConnectionLost, "call", reason)
	queued := s.queue
	s.queue = nil
	s.inFlight = nil
	err := s.err
	s.mu.Unlock()

	close(s.quit)
	for _, req := range queued {
		req.done <- callResult{err: err}
	}
}

// Wait blocks until the worker has exited. The worker exits after Close once
// any pending write returns.
func (s *Serializer) Wait() {
	<-s.stopped
}

func (s *Serializer) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Serializer) dequeue(req *callRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.queue {
		if r == req {
			s.queue = append(s.queue[:i:i], s.queue[i+1:]...)
			return
		}
	}
}

func (s *Serializer) next() (*callRequest, bool) {
	for {
		s.mu.Lock()
		if s.err != nil {
			s.mu.Unlock()
			return nil, false
		}
		if len(s.queue) > 0 {
			req := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return req, true
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-s.quit:
			return nil, false
		}
	}
}

func (s *Serializer) run() {
	defer close(s.stopped)
	for {
		req, ok := s.next()
		if !ok {
			return
		}
		s.execute(req)
	}
}

// execute registers the reply slot, writes the frame and waits for the reply
func (s *Serializer) execute(req *callRequest) {
	reply := make(chan []byte, 1)

	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		req.done <- callResult{err: err}
		return
	}
	s.inFlight = &awaiting{id: req.id, op: req.op, reply: reply}
	s.mu.Unlock()

	s.logger.Debug("call sent", "call", req.id, "op", req.op, "frame", nxt.FormatHex(req.frame))

	start := time.Now()
	if _, err := s.w.Write(req.frame); err != nil {
		s.clear(req.id)
		err = fmt.Errorf("write %s: %w", req.op, err)
		s.fatal(err)
		req.done <- callResult{err: err}
		return
	}
	if s.hooks.OnSent != nil {
		s.hooks.OnSent(req.frame)
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case frame := <-reply:
		if s.hooks.OnReply != nil {
			s.hooks.OnReply(req.op, time.Since(start))
		}
		req.done <- callResult{reply: frame}
	case <-timer.C:
		s.clear(req.id)
		err := &nxt.Error{
			Kind:     nxt.KindCallTimeout,
			Op:       req.op,
			Detail:   fmt.Sprintf("no response after %s", s.timeout),
			Expected: -1,
			Actual:   -1,
		}
		s.fatal(err)
		req.done <- callResult{err: err}
	case <-s.quit:
		s.mu.Lock()
		err := s.err
		s.mu.Unlock()
		req.done <- callResult{err: err}
	}
}

// clear empties the slot if it still belongs to id
func (s *Serializer) clear(id ulid.ULID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight != nil && s.inFlight.id == id {
		s.inFlight = nil
	}
}

// fatal reports err unless the serializer was closed first, in which case
// the failure is a consequence of the shutdown
func (s *Serializer) fatal(err error) {
	s.mu.Lock()
	closed := s.err != nil
	s.mu.Unlock()
	if !closed && s.hooks.OnFatal != nil {
		s.hooks.OnFatal(err)
	}
}
