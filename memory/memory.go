// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memory provides the register-transaction fabric: masters
// originate read/write/post transactions, slaves execute them against a
// backend, and hubs forward them with address translation.
package memory // import "github.com/go-daq/rogue/memory"

// Transaction types.
const (
	Read   uint32 = 0x1
	Write  uint32 = 0x2
	Post   uint32 = 0x3 // posted write, no response required
	Verify uint32 = 0x4 // read-back after a prior write
)

// Transaction completion status codes, delivered via DoneTransaction.
const (
	OK           uint32 = 0x00000000
	TimeoutError uint32 = 0x01000000
	AddressError uint32 = 0x02000000
	SizeError    uint32 = 0x04000000
)

// Master is the originating endpoint of a transaction. The slave pulls
// write payload with GetTransactionData, pushes read payload with
// SetTransactionData, and completes the request with DoneTransaction,
// exactly once, after all data transfers.
type Master interface {
	// GetTransactionData copies len(data) bytes of the transaction
	// payload at offset into data.
	GetTransactionData(id uint32, data []byte, offset uint32)

	// SetTransactionData copies data into the transaction payload at
	// offset.
	SetTransactionData(id uint32, data []byte, offset uint32)

	// DoneTransaction completes the transaction with status.
	DoneTransaction(id, status uint32)
}

// Slave is the executing endpoint of a transaction.
type Slave interface {
	// MinAccess returns the access granularity in bytes. Transaction
	// sizes must be multiples of it.
	MinAccess() uint32

	// MaxAccess returns the largest supported transaction size.
	MaxAccess() uint32

	// Address returns the absolute base address of this endpoint in
	// the composed address space.
	Address() uint64

	// DoTransaction executes (or forwards) a transaction. Completion
	// is reported to mst, possibly from another goroutine.
	DoTransaction(id uint32, mst Master, addr uint64, size, typ uint32)
}
