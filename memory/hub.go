// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memory

// Hub is an address-translating forwarder: a slave to its masters and a
// master to its downstream slave. The offset is a bit-aligned page
// address, or'ed (not added) into forwarded addresses. Hubs hold no
// other state and may be freely interposed.
type Hub struct {
	offset uint64
	down   Slave
}

// NewHub creates a hub translating by offset on top of the slave down.
func NewHub(offset uint64, down Slave) *Hub {
	return &Hub{offset: offset, down: down}
}

// Offset returns the hub address offset.
func (h *Hub) Offset() uint64 { return h.offset }

// MinAccess forwards the downstream access granularity.
func (h *Hub) MinAccess() uint32 { return h.down.MinAccess() }

// MaxAccess forwards the downstream access bound.
func (h *Hub) MaxAccess() uint32 { return h.down.MaxAccess() }

// Address composes the downstream base address with the hub offset.
func (h *Hub) Address() uint64 { return h.down.Address() | h.offset }

// DoTransaction forwards the transaction downstream with the hub
// offset or'ed into the address.
func (h *Hub) DoTransaction(id uint32, mst Master, addr uint64, size, typ uint32) {
	h.down.DoTransaction(id, mst, h.offset|addr, size, typ)
}

var (
	_ Slave = (*Hub)(nil)
)
