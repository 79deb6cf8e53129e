// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"context"
	"io"
	"sync"
)

// Stream is an open byte stream to the brick
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}

// Transport opens the byte stream. Opening happens once per Device.
type Transport interface {
	Open(ctx context.Context, opts OpenOptions) (Stream, error)
}

// TransportFunc adapts a function to the Transport interface
type TransportFunc func(ctx context.Context, opts OpenOptions) (Stream, error)

func (f TransportFunc) Open(ctx context.Context, opts OpenOptions) (Stream, error) {
	return f(ctx, opts)
}

// onceStream makes Close idempotent; later calls return the first result
type onceStream struct {
	Stream
	once sync.Once
	err  error
}

func newOnceStream(s Stream) *onceStream {
	return &onceStream{Stream: s}
}

func (s *onceStream) Close() error {
	s.once.Do(func() {
		s.err = s.Stream.Close()
	})
	return s.err
}
