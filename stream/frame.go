// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stream

import (
	"github.com/go-daq/rogue"
)

// Frame is an ordered sequence of buffers carrying one logical message.
// Each buffer has a reserved head room and a payload; frame offsets
// address the concatenation of the buffer payload areas.
//
// A frame owns its buffers exclusively. Only one goroutine is expected
// to interact with a frame at a time; frames are not thread safe.
type Frame struct {
	bufs  []*Buffer
	flags uint32
	ferr  uint32
}

// NewFrame creates an empty frame.
func NewFrame() *Frame {
	return &Frame{}
}

// AppendBuffer adds a buffer at the end of the frame.
func (f *Frame) AppendBuffer(buf *Buffer) {
	f.bufs = append(f.bufs, buf)
}

// AppendFrame moves all buffers of o at the end of the frame.
// o is emptied.
func (f *Frame) AppendFrame(o *Frame) {
	f.bufs = append(f.bufs, o.bufs...)
	o.bufs = o.bufs[:0]
}

// Count returns the number of buffers in the frame.
func (f *Frame) Count() int { return len(f.bufs) }

// Buffer returns the buffer at index i.
func (f *Frame) Buffer(i int) *Buffer { return f.bufs[i] }

// Clear removes all buffers from the frame, returning their regions to
// the issuing pools.
func (f *Frame) Clear() {
	for _, buf := range f.bufs {
		buf.Free()
	}
	f.bufs = f.bufs[:0]
}

// Available returns the total unused payload capacity.
func (f *Frame) Available() uint32 {
	var n uint32
	for _, buf := range f.bufs {
		n += buf.Available()
	}
	return n
}

// Payload returns the total payload size.
func (f *Frame) Payload() uint32 {
	var n uint32
	for _, buf := range f.bufs {
		n += buf.Payload()
	}
	return n
}

// Flags returns the interface specific flags.
func (f *Frame) Flags() uint32 { return f.flags }

// SetFlags sets the interface specific flags.
func (f *Frame) SetFlags(flags uint32) { f.flags = flags }

// Error returns the frame error word: the frame-level bits or'ed with
// every contained buffer's error word.
func (f *Frame) Error() uint32 {
	e := f.ferr
	for _, buf := range f.bufs {
		e |= buf.Error()
	}
	return e
}

// SetError sets the frame-level error bits.
func (f *Frame) SetError(e uint32) { f.ferr = e }

// Read copies len(p) bytes starting at offset into p.
func (f *Frame) Read(p []byte, offset uint32) error {
	count := uint32(len(p))
	if offset+count > f.Payload() {
		return rogue.BoundaryError("stream.Frame.Read", offset+count, f.Payload())
	}

	var pos uint32 // frame offset of the current buffer
	for _, buf := range f.bufs {
		bcap := buf.RawSize() - buf.HeadRoom()
		if len(p) == 0 {
			break
		}
		if offset < pos+bcap {
			rel := offset - pos
			n := copy(p, buf.PayloadData()[rel:bcap])
			p = p[n:]
			offset += uint32(n)
		}
		pos += bcap
	}
	return nil
}

// Write copies p into the frame starting at offset, growing the payload
// as needed. Writing past the total capacity fails with a boundary
// error and leaves the frame untouched.
func (f *Frame) Write(p []byte, offset uint32) error {
	count := uint32(len(p))
	end := offset + count
	if end > f.Available()+f.Payload() {
		return rogue.BoundaryError("stream.Frame.Write", end, f.Available()+f.Payload())
	}

	var pos uint32
	q := p
	o := offset
	for _, buf := range f.bufs {
		bcap := buf.RawSize() - buf.HeadRoom()
		if len(q) == 0 {
			break
		}
		if o < pos+bcap {
			rel := o - pos
			n := copy(buf.PayloadData()[rel:bcap], q)
			q = q[n:]
			o += uint32(n)
		}
		pos += bcap
	}

	// grow payloads up to the end of the write.
	pos = 0
	for _, buf := range f.bufs {
		bcap := buf.RawSize() - buf.HeadRoom()
		switch {
		case end >= pos+bcap:
			_ = buf.SetSize(bcap)
		case end > pos:
			if n := end - pos; n > buf.Payload() {
				_ = buf.SetSize(n)
			}
		}
		pos += bcap
	}
	return nil
}
