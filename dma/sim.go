// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dma

import (
	"sync"
	"time"

	"github.com/go-daq/rogue"
)

// Sim is an in-memory loopback backend: transmitted buffers come back
// on the receive side. It is used for integration tests, benchmarks
// and dry runs of acquisition binaries without hardware.
type Sim struct {
	mu    sync.Mutex
	table [][]byte
	size  uint32
	free  []uint32
	loop  chan simPkt
	pend  *simPkt
	open  bool
}

type simPkt struct {
	idx   uint32 // table index, or copy data below
	data  []byte
	n     int32
	flags uint32
}

// NewSim creates a loopback backend with a table of count pinned
// buffers of size bytes. With count zero the backend exposes no table
// and the adapter runs in buffered mode.
func NewSim(count int, size uint32) *Sim {
	sim := &Sim{
		size: size,
		loop: make(chan simPkt, 256),
		open: true,
	}
	for i := 0; i < count; i++ {
		sim.table = append(sim.table, make([]byte, size))
		sim.free = append(sim.free, uint32(i))
	}
	return sim
}

// CheckVersion implements the Backend interface.
func (sim *Sim) CheckVersion() error { return nil }

// SetMask implements the Backend interface.
func (sim *Sim) SetMask(dest uint32) error { return nil }

// MapDMA implements the Backend interface.
func (sim *Sim) MapDMA() ([][]byte, uint32, error) {
	if sim.table == nil {
		return nil, sim.size, nil
	}
	return sim.table, sim.size, nil
}

// UnmapDMA implements the Backend interface.
func (sim *Sim) UnmapDMA() error { return nil }

// WaitRead implements the Backend interface.
func (sim *Sim) WaitRead(timeout time.Duration) (bool, error) {
	sim.mu.Lock()
	if sim.pend != nil {
		sim.mu.Unlock()
		return true, nil
	}
	sim.mu.Unlock()

	tck := time.NewTimer(timeout)
	defer tck.Stop()
	select {
	case pkt := <-sim.loop:
		sim.mu.Lock()
		sim.pend = &pkt
		sim.mu.Unlock()
		return true, nil
	case <-tck.C:
		return false, nil
	}
}

// WaitWrite implements the Backend interface. Transmit room exists
// while a free index remains (or always, in buffered mode).
func (sim *Sim) WaitWrite(timeout time.Duration) (bool, error) {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	if sim.table == nil || len(sim.free) > 0 {
		return true, nil
	}
	return false, nil
}

// GetIndex implements the Backend interface.
func (sim *Sim) GetIndex() (int32, error) {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	if n := len(sim.free); n > 0 {
		idx := sim.free[n-1]
		sim.free = sim.free[:n-1]
		return int32(idx), nil
	}
	return -1, nil
}

// RetIndex implements the Backend interface.
func (sim *Sim) RetIndex(idx uint32) error {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	if !sim.open {
		return rogue.ReturnError("dma.Sim.RetIndex", "backend closed", -1)
	}
	sim.free = append(sim.free, idx)
	return nil
}

// ReadIndex implements the Backend interface.
func (sim *Sim) ReadIndex() (int32, uint32, uint32, uint32, error) {
	pkt, ok := sim.take()
	if !ok {
		return 0, 0, 0, 0, nil
	}
	if pkt.data != nil {
		// software write looped back: land it in a pinned buffer.
		idx, err := sim.GetIndex()
		if err != nil || idx < 0 {
			return 0, 0, 0, 0, rogue.AllocationError("dma.Sim.ReadIndex", uint32(len(pkt.data)))
		}
		copy(sim.table[idx], pkt.data)
		return pkt.n, uint32(idx), pkt.flags, 0, nil
	}
	return pkt.n, pkt.idx, pkt.flags, 0, nil
}

// Read implements the Backend interface.
func (sim *Sim) Read(p []byte) (int32, uint32, uint32, error) {
	pkt, ok := sim.take()
	if !ok {
		return 0, 0, 0, nil
	}
	src := pkt.data
	if src == nil {
		src = sim.table[pkt.idx][:pkt.n]
		defer func() { _ = sim.RetIndex(pkt.idx) }()
	}
	n := copy(p, src[:pkt.n])
	return int32(n), pkt.flags, 0, nil
}

func (sim *Sim) take() (simPkt, bool) {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	if sim.pend == nil {
		return simPkt{}, false
	}
	pkt := *sim.pend
	sim.pend = nil
	return pkt, true
}

// WriteIndex implements the Backend interface: the pinned buffer loops
// back to the receive side.
func (sim *Sim) WriteIndex(idx, size, flags, dest uint32) (int32, error) {
	sim.loop <- simPkt{idx: idx, n: int32(size), flags: flags}
	return int32(size), nil
}

// Write implements the Backend interface: the payload is copied and
// loops back to the receive side.
func (sim *Sim) Write(p []byte, flags, dest uint32) (int32, error) {
	data := make([]byte, len(p))
	copy(data, p)
	sim.loop <- simPkt{data: data, n: int32(len(p)), flags: flags}
	return int32(len(p)), nil
}

// Close implements the Backend interface.
func (sim *Sim) Close() error {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	sim.open = false
	return nil
}

var (
	_ Backend = (*Sim)(nil)
)
