// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dma

import (
	"time"
)

type config struct {
	timeout time.Duration // zero disables the time bound
	zcopy   bool
	ssi     bool
}

func newConfig() config {
	return config{
		timeout: 1 * time.Second,
		zcopy:   true,
	}
}

// Option configures a DMA device adapter.
type Option func(*config)

// WithTimeout bounds the waits for device readiness. A zero timeout
// disables the bound: the adapter retries indefinitely with a short
// fixed poll.
func WithTimeout(d time.Duration) Option {
	return func(cfg *config) {
		cfg.timeout = d
	}
}

// WithZeroCopy enables or disables the zero-copy paths.
func WithZeroCopy(enabled bool) Option {
	return func(cfg *config) {
		cfg.zcopy = enabled
	}
}

// WithSSI enables SSI framing: the start-of-frame bit is set in the
// first-user field on transmit, and the end-of-frame-error bit of the
// last-user field is surfaced as a frame error on receive.
func WithSSI(enabled bool) Option {
	return func(cfg *config) {
		cfg.ssi = enabled
	}
}
