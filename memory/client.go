// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memory

import (
	"sync"
	"time"

	"github.com/go-daq/rogue"
	"github.com/go-daq/rogue/internal/yield"
)

// Client is a concrete requesting master: it issues transactions to a
// slave graph and waits for their completion. Transaction payload is
// staged in a per-request buffer serviced by the Master callbacks.
//
// A client may be used from several goroutines; each request gets its
// own id and completion channel.
type Client struct {
	mu      sync.Mutex
	slave   Slave
	timeout time.Duration
	tid     uint32
	pending map[uint32]*transaction
}

type transaction struct {
	data []byte
	done chan uint32
}

// NewClient creates a client issuing transactions to slave.
func NewClient(slave Slave) *Client {
	return &Client{
		slave:   slave,
		timeout: 1 * time.Second,
		pending: make(map[uint32]*transaction),
	}
}

// SetTimeout bounds the wait for transaction completion.
// A zero timeout waits forever.
func (c *Client) SetTimeout(d time.Duration) { c.timeout = d }

// MinAccess returns the access granularity of the slave graph.
func (c *Client) MinAccess() uint32 { return c.slave.MinAccess() }

// MaxAccess returns the size bound of the slave graph.
func (c *Client) MaxAccess() uint32 { return c.slave.MaxAccess() }

// Read performs a read transaction of len(p) bytes at addr.
func (c *Client) Read(addr uint64, p []byte) (uint32, error) {
	return c.Transaction(addr, p, Read)
}

// Write performs a write transaction of len(p) bytes at addr.
func (c *Client) Write(addr uint64, p []byte) (uint32, error) {
	return c.Transaction(addr, p, Write)
}

// Post performs a posted write of len(p) bytes at addr. It does not
// wait for completion.
func (c *Client) Post(addr uint64, p []byte) (uint32, error) {
	return c.Transaction(addr, p, Post)
}

// Verify performs a read-back transaction of len(p) bytes at addr.
func (c *Client) Verify(addr uint64, p []byte) (uint32, error) {
	return c.Transaction(addr, p, Verify)
}

// Transaction issues one transaction of type typ and returns its
// completion status. For Read and Verify the payload lands in p; for
// Write and Post it is taken from p. Posted writes return immediately
// with status OK.
func (c *Client) Transaction(addr uint64, p []byte, typ uint32) (uint32, error) {
	size := uint32(len(p))

	min := c.slave.MinAccess()
	max := c.slave.MaxAccess()
	if size == 0 || min == 0 || size%min != 0 || size > max {
		return SizeError, nil
	}

	tx := &transaction{
		data: p,
		done: make(chan uint32, 1),
	}

	c.mu.Lock()
	c.tid++
	if c.tid == 0 {
		c.tid++
	}
	id := c.tid
	c.pending[id] = tx
	c.mu.Unlock()

	c.slave.DoTransaction(id, c, addr, size, typ)

	if typ == Post {
		// fire and forget: the payload has been pulled by the slave,
		// completion, if any, is discarded.
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return OK, nil
	}

	defer yield.Scoped()()

	if c.timeout <= 0 {
		return <-tx.done, nil
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case status := <-tx.done:
		return status, nil
	case <-timer.C:
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return TimeoutError, rogue.TimeoutError("memory.Client.Transaction", uint32(c.timeout/time.Microsecond))
	}
}

// GetTransactionData implements the Master interface.
func (c *Client) GetTransactionData(id uint32, data []byte, offset uint32) {
	c.mu.Lock()
	tx, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return
	}
	copy(data, tx.data[offset:])
}

// SetTransactionData implements the Master interface.
func (c *Client) SetTransactionData(id uint32, data []byte, offset uint32) {
	c.mu.Lock()
	tx, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return
	}
	copy(tx.data[offset:], data)
}

// DoneTransaction implements the Master interface. It must be called
// after every data transfer of the transaction: it releases the waiter.
func (c *Client) DoneTransaction(id, status uint32) {
	c.mu.Lock()
	tx, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if !ok {
		return
	}
	tx.done <- status
}

var (
	_ Master = (*Client)(nil)
)
