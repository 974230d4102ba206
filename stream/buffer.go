// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stream

import (
	"runtime"

	"github.com/go-daq/rogue"
)

// Meta bit assignments. Bits 0-23 carry the pool- or driver-assigned id,
// bits 24-29 are reserved, bit 30 marks a buffer already surrendered to
// the device, bit 31 marks a kernel-pinned zero-copy region.
const (
	MetaIDMask    = 0x00ffffff
	MetaSurrender = 0x40000000
	MetaZeroCopy  = 0x80000000
)

// BufferOwner reclaims the raw region of a dropped buffer.
// The buffer keeps its owner alive until it is freed.
type BufferOwner interface {
	RetBuffer(data []byte, meta, raw uint32)
}

// Buffer holds one contiguous byte region with a reserved head room and
// a payload cursor. Buffers are created by a Pool (or a device adapter)
// and are not safe for concurrent use; ownership moves between
// goroutines with the Frame that contains them.
type Buffer struct {
	owner BufferOwner
	data  []byte // raw region, including head room
	meta  uint32
	head  uint32 // reserved prefix for protocol headers
	size  uint32 // current payload size
	flags uint32
	berr  uint32
	freed bool
}

func newBuffer(owner BufferOwner, data []byte, meta, head uint32) *Buffer {
	buf := &Buffer{
		owner: owner,
		data:  data,
		meta:  meta,
		head:  head,
	}
	runtime.SetFinalizer(buf, (*Buffer).Free)
	return buf
}

// RawData returns the raw region, head room included.
func (buf *Buffer) RawData() []byte { return buf.data }

// PayloadData returns the region past the head room.
func (buf *Buffer) PayloadData() []byte { return buf.data[buf.head:] }

// RawSize returns the capacity of the raw region.
func (buf *Buffer) RawSize() uint32 { return uint32(len(buf.data)) }

// HeadRoom returns the size of the reserved prefix.
func (buf *Buffer) HeadRoom() uint32 { return buf.head }

// Payload returns the current payload size.
func (buf *Buffer) Payload() uint32 { return buf.size }

// Available returns the unused payload capacity.
func (buf *Buffer) Available() uint32 {
	return buf.RawSize() - buf.head - buf.size
}

// SetSize sets the payload size to n.
func (buf *Buffer) SetSize(n uint32) error {
	if n > buf.RawSize()-buf.head {
		return rogue.BoundaryError("stream.Buffer.SetSize", n, buf.RawSize()-buf.head)
	}
	buf.size = n
	return nil
}

// Meta returns the meta word.
func (buf *Buffer) Meta() uint32 { return buf.meta }

// SetMeta sets the meta word.
func (buf *Buffer) SetMeta(meta uint32) { buf.meta = meta }

// Flags returns the interface specific flags.
func (buf *Buffer) Flags() uint32 { return buf.flags }

// SetFlags sets the interface specific flags.
func (buf *Buffer) SetFlags(flags uint32) { buf.flags = flags }

// Error returns the per-buffer error word.
func (buf *Buffer) Error() uint32 { return buf.berr }

// SetError sets the per-buffer error word.
func (buf *Buffer) SetError(e uint32) { buf.berr = e }

// Free returns the raw region to the owner. The owner is notified
// exactly once; further calls are no-ops. Free is also installed as the
// buffer finalizer so unreferenced buffers drain back to their pool.
func (buf *Buffer) Free() {
	if buf.freed {
		return
	}
	buf.freed = true
	runtime.SetFinalizer(buf, nil)
	buf.owner.RetBuffer(buf.data, buf.meta, buf.RawSize())
	buf.data = nil
}
