// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package yield provides the scoped host-runtime yield primitive.
//
// When rogue is embedded under a host language runtime that gates worker
// threads with a global lock, Scoped must release that lock for the
// duration of a blocking call. Acquisition sites are the device waits
// in package dma and the transaction-completion wait in package
// memory. Without a host runtime the primitive is a no-op.
package yield // import "github.com/go-daq/rogue/internal/yield"

// release is installed by a host-runtime binding. Nil means no host.
var release func() func()

// Scoped releases the host-runtime lock, if any, and returns the
// function re-acquiring it. Callers defer the returned function.
func Scoped() func() {
	if release == nil {
		return func() {}
	}
	return release()
}
