// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stream

import (
	"sync"

	"github.com/go-daq/rogue"
	"github.com/go-daq/rogue/internal/metrics"
)

// Pool issues and reclaims buffers. The zero value is ready for use.
//
// A pool may be put in fixed-size mode with EnBufferPool: returned
// regions of exactly the fixed size are then kept on a free list and
// reused before hitting the system allocator.
type Pool struct {
	mu         sync.Mutex
	allocMeta  uint32
	allocBytes uint32
	allocCount uint32
	dataQ      [][]byte // free list, LIFO
	fixedSize  uint32
	maxCount   uint32
	headRoom   uint32
	name       string
	owner      BufferOwner // nil means the pool itself
}

// SetName names the pool for monitoring purposes.
func (p *Pool) SetName(name string) { p.name = name }

func (p *Pool) label() string {
	if p.name == "" {
		return "default"
	}
	return p.name
}

// SetOwner diverts buffer ownership to o. Device adapters install
// themselves here so that dropped buffers reach their return path.
func (p *Pool) SetOwner(o BufferOwner) { p.owner = o }

func (p *Pool) bufOwner() BufferOwner {
	if p.owner != nil {
		return p.owner
	}
	return p
}

// SetHeadRoom reserves n bytes at the start of every buffer the pool
// dispenses, for downstream protocol headers.
func (p *Pool) SetHeadRoom(n uint32) { p.headRoom = n }

// AllocBytes returns the number of bytes currently held by live buffers.
func (p *Pool) AllocBytes() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocBytes
}

// AllocCount returns the number of currently live buffers.
func (p *Pool) AllocCount() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocCount
}

// AcceptReq services a frame request from a master.
//
// The returned frame carries at least size bytes of capacity, split in
// buffers of maxBuf bytes (of size bytes when maxBuf is zero); in
// fixed-size mode every buffer has the fixed size instead. The
// zero-copy hint is ignored by the base pool.
func (p *Pool) AcceptReq(size uint32, zeroCopyEn bool, maxBuf uint32) (*Frame, error) {
	frame := NewFrame()

	bsize := size
	if maxBuf != 0 {
		bsize = maxBuf
	}

	var total uint32
	for total < size {
		buf, err := p.allocBuffer(bsize, &total)
		if err != nil {
			return nil, err
		}
		frame.AppendBuffer(buf)
	}
	return frame, nil
}

// EnBufferPool enables fixed-size mode: up to count regions of size
// bytes are recycled through a free list. It can only be called once.
func (p *Pool) EnBufferPool(size, count uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fixedSize != 0 {
		return rogue.GeneralError("stream.Pool.EnBufferPool", "method can only be called once")
	}
	p.fixedSize = size
	p.maxCount = count
	return nil
}

// RetBuffer reclaims the raw region of a dropped buffer.
// It never fails; it is called from buffer drop paths.
func (p *Pool) RetBuffer(data []byte, meta, raw uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if data != nil {
		if raw == p.fixedSize && uint32(len(p.dataQ)) < p.maxCount {
			p.dataQ = append(p.dataQ, data)
		}
		// otherwise drop the region for the garbage collector
	}
	p.allocBytes -= raw
	p.allocCount--
	metrics.PoolBytes.WithLabelValues(p.label()).Sub(float64(raw))
	metrics.PoolBuffers.WithLabelValues(p.label()).Dec()
}

// allocBuffer dispenses one buffer of size bytes (of the fixed size in
// fixed-size mode) and adds its raw size to *total when total is
// non-nil.
func (p *Pool) allocBuffer(size uint32, total *uint32) (*Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	alloc := size
	if p.fixedSize > 0 {
		alloc = p.fixedSize
	}

	if alloc == 0 {
		return nil, rogue.AllocationError("stream.Pool.allocBuffer", alloc)
	}

	var data []byte
	if n := len(p.dataQ); n > 0 {
		data = p.dataQ[n-1]
		p.dataQ = p.dataQ[:n-1]
	} else {
		data = make([]byte, alloc)
	}

	// only the lower 24 bits of meta are assigned here.
	// the upper bits have special meaning to device adapters.
	meta := p.allocMeta
	p.allocMeta = (p.allocMeta + 1) & MetaIDMask
	p.allocBytes += alloc
	p.allocCount++
	metrics.PoolBytes.WithLabelValues(p.label()).Add(float64(alloc))
	metrics.PoolBuffers.WithLabelValues(p.label()).Inc()
	if total != nil {
		*total += alloc
	}
	return newBuffer(p.bufOwner(), data, meta, p.headRoom), nil
}

// AllocBuffer dispenses a single buffer of size bytes.
// Device adapters use it on their software receive path.
func (p *Pool) AllocBuffer(size uint32) (*Buffer, error) {
	return p.allocBuffer(size, nil)
}

// CreateBuffer wraps an externally owned region (typically a
// kernel-pinned DMA buffer) in a Buffer and accounts for it.
// The buffer is owned by the pool owner, not by the free list.
func (p *Pool) CreateBuffer(data []byte, meta uint32) *Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.allocBytes += uint32(len(data))
	p.allocCount++
	metrics.PoolBytes.WithLabelValues(p.label()).Add(float64(len(data)))
	metrics.PoolBuffers.WithLabelValues(p.label()).Inc()
	return newBuffer(p.bufOwner(), data, meta, 0)
}

// DecCounter tracks the drop of an externally owned region.
func (p *Pool) DecCounter(raw uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allocBytes -= raw
	p.allocCount--
	metrics.PoolBytes.WithLabelValues(p.label()).Sub(float64(raw))
	metrics.PoolBuffers.WithLabelValues(p.label()).Dec()
}
