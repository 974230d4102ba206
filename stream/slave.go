// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stream

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/go-daq/rogue/internal/metrics"
)

// Sink is a terminal stream slave: it counts the frames and bytes it
// receives and optionally dumps the first bytes of each frame. It
// embeds a pool so it can also service frame requests.
type Sink struct {
	Pool

	msg   *log.Logger
	sname string
	debug uint32

	frameCount uint64
	byteCount  uint64
}

// NewSink creates a sink named name.
func NewSink(name string) *Sink {
	s := &Sink{
		msg:   log.New(os.Stdout, name+": ", 0),
		sname: name,
	}
	s.Pool.SetName(name)
	return s
}

// SetDebug dumps up to n bytes of each accepted frame to the sink logger.
func (s *Sink) SetDebug(n uint32) { s.debug = n }

// FrameCount returns the number of frames accepted so far.
func (s *Sink) FrameCount() uint64 { return atomic.LoadUint64(&s.frameCount) }

// ByteCount returns the number of payload bytes accepted so far.
func (s *Sink) ByteCount() uint64 { return atomic.LoadUint64(&s.byteCount) }

// AcceptFrame receives a frame pushed by an upstream master.
func (s *Sink) AcceptFrame(frame *Frame) {
	atomic.AddUint64(&s.frameCount, 1)
	atomic.AddUint64(&s.byteCount, uint64(frame.Payload()))
	metrics.Frames.WithLabelValues(s.sname).Inc()
	metrics.Bytes.WithLabelValues(s.sname).Add(float64(frame.Payload()))

	if s.debug == 0 {
		return
	}

	n := s.debug
	if p := frame.Payload(); p < n {
		n = p
	}
	p := make([]byte, n)
	if err := frame.Read(p, 0); err != nil {
		s.msg.Printf("could not read frame: %+v", err)
		return
	}

	s.msg.Printf("got size=%d, data:", frame.Payload())
	var line strings.Builder
	for i, v := range p {
		fmt.Fprintf(&line, " 0x%02x", v)
		if (i+1)%8 == 0 {
			s.msg.Printf("    %s", line.String())
			line.Reset()
		}
	}
	if line.Len() > 0 {
		s.msg.Printf("    %s", line.String())
	}
}

var (
	_ Slave = (*Sink)(nil)
)
