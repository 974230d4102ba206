// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memmap implements a memory slave against mmap'ed register
// windows of a /dev/mem-style device.
package memmap // import "github.com/go-daq/rogue/memmap"

import (
	"log"
	"os"
	"sync"

	"github.com/go-daq/rogue"
	"github.com/go-daq/rogue/internal/mmap"
	"github.com/go-daq/rogue/memory"
)

// register windows are 4-byte addressable.
const accessWidth = 4

// Device gives register-transaction access to physical windows mapped
// from a /dev/mem-style device. Windows may be added while
// transactions are in flight.
type Device struct {
	msg *log.Logger
	fd  *os.File

	mu   sync.Mutex
	maps []window
}

type window struct {
	base uint64
	size uint32
	h    *mmap.Handle
}

// Open opens the memory device at path (typically /dev/mem) read/write
// and synchronous.
func Open(path string) (*Device, error) {
	fd, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0666)
	if err != nil {
		return nil, rogue.OpenError("memmap.Open", path)
	}
	return &Device{
		msg: log.New(os.Stdout, "memmap: ", 0),
		fd:  fd,
	}, nil
}

// Close unmaps all windows and releases the device.
func (dev *Device) Close() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	for _, m := range dev.maps {
		_ = m.h.Close()
	}
	dev.maps = nil

	if dev.fd == nil {
		return nil
	}
	err := dev.fd.Close()
	dev.fd = nil
	if err != nil {
		return rogue.GeneralError("memmap.Close", "could not close device: %v", err)
	}
	return nil
}

// AddMap maps the physical window [base, base+size). Mapping failures
// are logged and the window is not added.
func (dev *Device) AddMap(base uint64, size uint32) {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if dev.fd == nil {
		dev.msg.Printf("could not map address 0x%x with size %d: device closed", base, size)
		return
	}

	h, err := mmap.Map(dev.fd.Fd(), int64(base), int(size))
	if err != nil {
		dev.msg.Printf("could not map address 0x%x with size %d: %+v", base, size, err)
		return
	}
	dev.maps = append(dev.maps, window{base: base, size: size, h: h})
	dev.msg.Printf("mapped address 0x%x with size %d", base, size)
}

// addWindow registers an already mapped window. Used by tests.
func (dev *Device) addWindow(base uint64, h *mmap.Handle) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.maps = append(dev.maps, window{base: base, size: uint32(h.Len()), h: h})
}

// findSpace returns the window covering [base, base+size), if any.
func (dev *Device) findSpace(base uint64, size uint32) (window, bool) {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	for _, m := range dev.maps {
		if base >= m.base && base+uint64(size) <= m.base+uint64(m.size) {
			return m, true
		}
	}
	return window{}, false
}

// MinAccess implements the memory.Slave interface.
func (dev *Device) MinAccess() uint32 { return accessWidth }

// MaxAccess implements the memory.Slave interface.
func (dev *Device) MaxAccess() uint32 { return 0xffffffff }

// Address implements the memory.Slave interface.
func (dev *Device) Address() uint64 { return 0 }

// DoTransaction executes a register transaction against the window
// covering the access, in 4-byte strides.
func (dev *Device) DoTransaction(id uint32, mst memory.Master, addr uint64, size, typ uint32) {
	m, ok := dev.findSpace(addr, size)
	if !ok {
		mst.DoneTransaction(id, memory.AddressError)
		return
	}

	var (
		xbuf [accessWidth]byte
		off  = int64(addr - m.base)
		err  error
	)
	for count := uint32(0); count < size; count += accessWidth {
		at := off + int64(count)
		switch typ {
		case memory.Write, memory.Post:
			mst.GetTransactionData(id, xbuf[:], count)
			_, err = m.h.WriteAt(xbuf[:], at)
		default:
			_, err = m.h.ReadAt(xbuf[:], at)
			mst.SetTransactionData(id, xbuf[:], count)
		}
		if err != nil {
			dev.msg.Printf("could not access register 0x%x: %+v", addr+uint64(count), err)
			mst.DoneTransaction(id, memory.AddressError)
			return
		}
	}

	mst.DoneTransaction(id, memory.OK)
}

var (
	_ memory.Slave = (*Device)(nil)
)
