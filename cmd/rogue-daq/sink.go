// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/binary"
	"io"
	"log"

	"github.com/go-daq/rogue/stream"
	"golang.org/x/sync/errgroup"
)

// fileSink writes frames to an output stream, length-prefixed.
type fileSink struct {
	stream.Sink
	w   io.Writer
	buf []byte
}

func newFileSink(w io.Writer) *fileSink {
	return &fileSink{w: w, buf: make([]byte, 4)}
}

func (sink *fileSink) AcceptFrame(frame *stream.Frame) {
	sink.Sink.AcceptFrame(frame)

	n := frame.Payload()
	if uint32(len(sink.buf)) < 4+n {
		sink.buf = make([]byte, 4+n)
	}
	binary.BigEndian.PutUint32(sink.buf[:4], n)
	if err := frame.Read(sink.buf[4:4+n], 0); err != nil {
		log.Printf("could not read frame: %+v", err)
		return
	}
	if _, err := sink.w.Write(sink.buf[:4+n]); err != nil {
		log.Printf("could not write frame: %+v", err)
	}
}

// streamSink forwards frames to a network connection from a dedicated
// goroutine of the provided group.
type streamSink struct {
	stream.Sink
	ch chan []byte
}

func newStreamSink(w io.Writer, grp *errgroup.Group) *streamSink {
	sink := &streamSink{ch: make(chan []byte, 32)}
	grp.Go(func() error {
		var hdr [4]byte
		for p := range sink.ch {
			binary.BigEndian.PutUint32(hdr[:], uint32(len(p)))
			if _, err := w.Write(hdr[:]); err != nil {
				return err
			}
			if _, err := w.Write(p); err != nil {
				return err
			}
		}
		return nil
	})
	return sink
}

// close stops the forwarding goroutine once the producer is done.
func (sink *streamSink) close() { close(sink.ch) }

func (sink *streamSink) AcceptFrame(frame *stream.Frame) {
	sink.Sink.AcceptFrame(frame)

	p := make([]byte, frame.Payload())
	if err := frame.Read(p, 0); err != nil {
		log.Printf("could not read frame: %+v", err)
		return
	}
	select {
	case sink.ch <- p:
	default:
		log.Printf("frame sink backlog full, dropping frame (%d bytes)", len(p))
	}
}
