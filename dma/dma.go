// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dma binds descriptor-based DMA devices to the stream graph.
//
// A Device is both a stream master (it produces received frames) and a
// stream slave (it accepts frames for transmission). When the backend
// exposes a table of kernel-pinned buffers, frames are carried by
// index, end to end, without copies.
package dma // import "github.com/go-daq/rogue/dma"

import (
	"time"
)

// Backend is the abstract kernel-driver interface consumed by a
// Device. Buffer indices are opaque 24-bit integers assigned by the
// backend; the adapter stores them in meta bits 0-23.
type Backend interface {
	// CheckVersion performs the driver version handshake.
	CheckVersion() error

	// SetMask subscribes the descriptor to destination dest.
	SetMask(dest uint32) error

	// MapDMA maps the kernel buffer table. Backends without a table
	// return a nil table; the adapter then runs in buffered mode and
	// uses size, when non-zero, as the size of its software buffers.
	MapDMA() (table [][]byte, size uint32, err error)

	// UnmapDMA releases the buffer table.
	UnmapDMA() error

	// WaitRead blocks until a descriptor is ready for read, or the
	// timeout elapses. It reports spurious wake-ups as ready.
	WaitRead(timeout time.Duration) (bool, error)

	// WaitWrite blocks until a descriptor is ready for write, or the
	// timeout elapses. It reports spurious wake-ups as ready.
	WaitWrite(timeout time.Duration) (bool, error)

	// GetIndex reserves a free transmit buffer index. A negative
	// result means the readiness signal was lost to another process;
	// the caller waits and retries.
	GetIndex() (int32, error)

	// RetIndex returns a receive buffer index to the kernel.
	RetIndex(idx uint32) error

	// ReadIndex pops a filled receive buffer. It returns the payload
	// size, the buffer index and the wire flags/error words.
	ReadIndex() (n int32, idx, flags, rxerr uint32, err error)

	// Read pops a filled receive buffer with a copy into p.
	Read(p []byte) (n int32, flags, rxerr uint32, err error)

	// WriteIndex transmits the buffer at idx by index. A negative
	// result is a failed link write.
	WriteIndex(idx, size, flags, dest uint32) (int32, error)

	// Write transmits p with a copy in the driver. A zero result
	// means the readiness signal was lost; the caller retries.
	Write(p []byte, flags, dest uint32) (int32, error)

	// Close releases the descriptor.
	Close() error
}

// Wire flag packing: bits 0-7 carry the first-user field, bits 8-15
// the last-user field, bit 16 the continuation flag. The continuation
// flag is set on every buffer of a frame but the last.
const (
	fuserMask = 0x000000ff
	luserMask = 0x0000ff00
	contFlag  = 0x00010000
)

// PackFlags packs first-user, last-user and continuation into a wire
// flags word.
func PackFlags(fuser, luser uint32, cont bool) uint32 {
	flags := fuser&0xff | (luser&0xff)<<8
	if cont {
		flags |= contFlag
	}
	return flags
}

// Fuser extracts the first-user field from a wire flags word.
func Fuser(flags uint32) uint32 { return flags & fuserMask }

// Luser extracts the last-user field from a wire flags word.
func Luser(flags uint32) uint32 { return (flags & luserMask) >> 8 }

// Cont extracts the continuation flag from a wire flags word.
func Cont(flags uint32) bool { return flags&contFlag != 0 }
