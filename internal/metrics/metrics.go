// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics exposes throughput counters of the streaming substrate
// as Prometheus metrics.
package metrics // import "github.com/go-daq/rogue/internal/metrics"

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Frames counts frames accepted by stream slaves, by slave name.
	Frames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rogue",
		Subsystem: "stream",
		Name:      "frames_total",
		Help:      "Number of frames accepted by a stream slave.",
	}, []string{"slave"})

	// Bytes counts frame payload bytes accepted by stream slaves, by slave name.
	Bytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rogue",
		Subsystem: "stream",
		Name:      "bytes_total",
		Help:      "Payload bytes accepted by a stream slave.",
	}, []string{"slave"})

	// PoolBytes tracks bytes currently dispensed by buffer pools.
	PoolBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rogue",
		Subsystem: "pool",
		Name:      "alloc_bytes",
		Help:      "Bytes currently held by live buffers of a pool.",
	}, []string{"pool"})

	// PoolBuffers tracks buffers currently dispensed by buffer pools.
	PoolBuffers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rogue",
		Subsystem: "pool",
		Name:      "alloc_count",
		Help:      "Buffers currently dispensed by a pool.",
	}, []string{"pool"})

	// RxErrors counts fatal receive-worker failures of DMA adapters.
	RxErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rogue",
		Subsystem: "dma",
		Name:      "rx_errors_total",
		Help:      "Fatal receive-loop failures of a DMA adapter.",
	}, []string{"device"})
)
