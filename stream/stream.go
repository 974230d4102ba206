// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stream provides the zero-copy streaming substrate: frames,
// buffers, pools, and the producer/consumer graph that carries frames
// between components.
//
// A Master pushes frames downstream with SendFrame; a consumer requests
// room upstream with ReqFrame before the producer fills it, which is
// what makes end-to-end zero-copy possible.
package stream // import "github.com/go-daq/rogue/stream"

// Slave is the consumer endpoint of the stream graph.
//
// AcceptFrame receives a frame pushed by an upstream master.
// AcceptReq services a frame-allocation request; device adapters
// override it to dispense kernel-pinned buffers.
type Slave interface {
	AcceptFrame(frame *Frame)
	AcceptReq(size uint32, zeroCopyEn bool, maxBuf uint32) (*Frame, error)
}

// Master is the producer endpoint of the stream graph. A master may be
// connected to any number of slaves; the first connected slave is the
// primary one, servicing frame requests.
type Master struct {
	slaves []Slave
	pool   *Pool // fallback when no slave is attached
}

// NewMaster creates an unconnected master.
func NewMaster() *Master {
	return &Master{}
}

// AddSlave connects a slave. The first slave connected becomes the
// primary one.
func (m *Master) AddSlave(s Slave) {
	m.slaves = append(m.slaves, s)
}

// SlaveCount returns the number of connected slaves.
func (m *Master) SlaveCount() int { return len(m.slaves) }

// ReqFrame requests a frame with at least size bytes of capacity from
// the primary slave, falling back to a local pool when the master is
// unconnected.
func (m *Master) ReqFrame(size uint32, zeroCopyEn bool, maxBuf uint32) (*Frame, error) {
	if len(m.slaves) > 0 {
		return m.slaves[0].AcceptReq(size, zeroCopyEn, maxBuf)
	}
	if m.pool == nil {
		m.pool = &Pool{}
	}
	return m.pool.AcceptReq(size, false, maxBuf)
}

// SendFrame pushes frame to every connected slave. With more than one
// slave the frame is shared by reference: consumers must not mutate it.
func (m *Master) SendFrame(frame *Frame) {
	for _, s := range m.slaves {
		s.AcceptFrame(frame)
	}
}
