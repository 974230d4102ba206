// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rogue holds the core of a data-acquisition middleware for
// detector readout: a zero-copy streaming substrate (package stream),
// DMA device adapters (package dma), a register-transaction fabric
// (packages memory and memmap) and the RSSI segment codec (package rssi).
package rogue // import "github.com/go-daq/rogue"

import (
	"fmt"
	"runtime/debug"
)

// BuildVersion returns the module version of rogue and its checksum.
// The returned values are only valid in binaries built with module support.
func BuildVersion() (version, sum string) {
	b, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	return versionOf(b)
}

func versionOf(b *debug.BuildInfo) (version, sum string) {
	if b == nil {
		return "", ""
	}

	const root = "github.com/go-daq/rogue"
	for _, m := range b.Deps {
		if m.Path != root {
			continue
		}
		if m.Replace != nil {
			switch {
			case m.Replace.Version != "" && m.Replace.Path != "":
				return fmt.Sprintf("%s %s", m.Replace.Path, m.Replace.Version), m.Replace.Sum
			case m.Replace.Version != "":
				return m.Replace.Version, m.Replace.Sum
			case m.Replace.Path != "":
				return m.Replace.Path, m.Replace.Sum
			default:
				return m.Version + "*", ""
			}
		}
		return m.Version, m.Sum
	}
	return "", ""
}
