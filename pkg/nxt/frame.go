// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nxt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
)

// EncodeFrame prefixes payload with its two-byte little-endian length.
// Payloads longer than MaxPayloadSize are rejected, so the high length byte
// is always zero.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		e := newError(KindFrameTooLarge, "EncodeFrame", fmt.Sprintf("payload is %d bytes (max %d)", len(payload), MaxPayloadSize))
		return nil, e
	}

	frame := make([]byte, HeaderSize+len(payload))
	frame[0] = byte(len(payload))
	frame[1] = 0
	copy(frame[HeaderSize:], payload)
	return frame, nil
}

// MustEncodeFrame is EncodeFrame for payloads known to fit.
// Panics on encoding error.
func MustEncodeFrame(payload []byte) []byte {
	frame, err := EncodeFrame(payload)
	if err != nil {
		panic(fmt.Sprintf("nxt: encode error: %v", err))
	}
	return frame
}

// Decoder reassembles frames from a byte stream split at arbitrary points.
// It keeps the bytes not yet consumed by a complete frame between calls.
type Decoder struct {
	buffer []byte
}

// NewDecoder creates a new frame decoder
func NewDecoder() *Decoder {
	return &Decoder{
		buffer: make([]byte, 0, 2*(HeaderSize+MaxPayloadSize)),
	}
}

// Feed appends chunk to the pending bytes and returns every frame that is now
// complete, in stream order. Returned frames do not alias the decoder's buffer.
func (d *Decoder) Feed(chunk []byte) [][]byte {
	d.buffer = append(d.buffer, chunk...)

	var frames [][]byte
	offset := 0
	for len(d.buffer)-offset >= HeaderSize {
		length := int(binary.LittleEndian.Uint16(d.buffer[offset:]))
		if len(d.buffer)-offset-HeaderSize < length {
			break // frame is incomplete
		}
		start := offset + HeaderSize
		frame := make([]byte, length)
		copy(frame, d.buffer[start:start+length])
		frames = append(frames, frame)
		offset = start + length
	}

	// Compact the buffer so consumed bytes are released
	if offset > 0 {
		n := copy(d.buffer, d.buffer[offset:])
		d.buffer = d.buffer[:n]
	}

	return frames
}

// Pending returns the number of buffered bytes belonging to an incomplete frame
func (d *Decoder) Pending() int {
	return len(d.buffer)
}

// FrameReader yields frames decoded from an io.Reader
type FrameReader struct {
	r       io.Reader
	decoder *Decoder
	buf     []byte
	ready   [][]byte
	err     error
}

// NewFrameReader reads from r in chunks of up to chunkSize bytes
func NewFrameReader(r io.Reader, chunkSize int) *FrameReader {
	if chunkSize <= 0 {
		chunkSize = 64
	}
	return &FrameReader{
		r:       r,
		decoder: NewDecoder(),
		buf:     make([]byte, chunkSize),
	}
}

// Next returns the next complete frame. It returns io.EOF when the stream ends
// on a frame boundary and a TruncatedFrame error when it ends mid-frame.
// Any other read error is returned as is. Once an error is returned, every
// later call returns the same error.
func (fr *FrameReader) Next() ([]byte, error) {
	for len(fr.ready) == 0 {
		if fr.err != nil {
			return nil, fr.err
		}

		n, err := fr.r.Read(fr.buf)
		if n > 0 {
			fr.ready = append(fr.ready, fr.decoder.Feed(fr.buf[:n])...)
		}
		if err != nil {
			fr.err = fr.endOfStream(err)
		}
	}

	frame := fr.ready[0]
	fr.ready[0] = nil
	fr.ready = fr.ready[1:]
	return frame, nil
}

func (fr *FrameReader) endOfStream(err error) error {
	if !errors.Is(err, io.EOF) {
		return err
	}
	if pending := fr.decoder.Pending(); pending > 0 {
		e := newError(KindTruncatedFrame, "FrameReader", fmt.Sprintf("stream ended with %d bytes of an incomplete frame", pending))
		return e
	}
	return io.EOF
}

// Frames returns the decoded frames as a sequence. The sequence stops after
// the first error; a clean end of stream stops it without yielding an error.
func (fr *FrameReader) Frames() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for {
			frame, err := fr.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(frame, nil) {
				return
			}
		}
	}
}
