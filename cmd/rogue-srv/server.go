// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"time"

	"github.com/go-daq/rogue/conddb"
	"github.com/go-daq/rogue/dma"
	"github.com/go-daq/rogue/stream"
	"github.com/go-daq/tdaq"
	"golang.org/x/xerrors"
)

// server adapts a DMA device to the TDAQ run control.
type server struct {
	name string
	dbn  string

	cfg   conddb.AdapterConfig
	dev   *dma.Device
	runID uint32

	data chan []byte
}

func newServer(name string) *server {
	return &server{
		name: name,
		dbn:  "rogue",
		data: make(chan []byte, 1024),
	}
}

// chanSink forwards frame payloads to the output channel.
type chanSink struct {
	stream.Sink
	data chan []byte
}

func (sink *chanSink) AcceptFrame(frame *stream.Frame) {
	sink.Sink.AcceptFrame(frame)

	p := make([]byte, frame.Payload())
	if err := frame.Read(p, 0); err != nil {
		return
	}
	select {
	case sink.data <- p:
	default:
		// run-control consumer lagging: drop
	}
}

func (srv *server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")

	db, err := conddb.Open(srv.dbn)
	if err != nil {
		ctx.Msg.Errorf("could not open conddb: %+v", err)
		return xerrors.Errorf("could not open conddb: %w", err)
	}
	defer db.Close()

	cfg, err := db.AdapterConfig(ctx.Ctx, srv.name)
	if err != nil {
		ctx.Msg.Errorf("could not retrieve adapter cfg %q: %+v", srv.name, err)
		return xerrors.Errorf("could not retrieve adapter cfg %q: %w", srv.name, err)
	}
	srv.cfg = cfg

	ctx.Msg.Infof("adapter %q: path=%q dest=0x%x zero-copy=%v",
		cfg.Name, cfg.Path, cfg.Dest, cfg.ZeroCopy,
	)
	return nil
}

func (srv *server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")

	if srv.dev != nil {
		ctx.Msg.Errorf("adapter %q already initialized", srv.name)
		return xerrors.Errorf("adapter %q already initialized", srv.name)
	}

	dev, err := dma.New(srv.name, srv.backend(), srv.cfg.Dest,
		dma.WithTimeout(time.Duration(srv.cfg.TimeoutUS)*time.Microsecond),
		dma.WithZeroCopy(srv.cfg.ZeroCopy),
		dma.WithSSI(srv.cfg.SSI),
	)
	if err != nil {
		ctx.Msg.Errorf("could not create DMA adapter: %+v", err)
		return xerrors.Errorf("could not create DMA adapter: %w", err)
	}

	if srv.cfg.BufPool > 0 && srv.cfg.BufSize > 0 {
		err = dev.Pool().EnBufferPool(srv.cfg.BufSize, srv.cfg.BufPool)
		if err != nil {
			ctx.Msg.Errorf("could not enable buffer pool: %+v", err)
			return xerrors.Errorf("could not enable buffer pool: %w", err)
		}
	}

	sink := &chanSink{data: srv.data}
	dev.AddSlave(sink)

	srv.dev = dev
	return nil
}

// backend returns the DMA backend of the adapter: always the built-in
// loopback, whatever the configured device path.
func (srv *server) backend() dma.Backend {
	return dma.NewSim(128, 2048)
}

func (srv *server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	if srv.dev != nil {
		if err := srv.dev.Close(); err != nil {
			ctx.Msg.Errorf("could not close DMA adapter: %+v", err)
			return xerrors.Errorf("could not close DMA adapter: %w", err)
		}
		srv.dev = nil
	}
	srv.cfg = conddb.AdapterConfig{}
	return nil
}

func (srv *server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	if srv.dev == nil {
		return xerrors.Errorf("adapter %q not initialized", srv.name)
	}

	db, err := conddb.Open(srv.dbn)
	if err != nil {
		ctx.Msg.Errorf("could not open conddb: %+v", err)
		return xerrors.Errorf("could not open conddb: %w", err)
	}
	defer db.Close()

	run, err := db.NewRunID(ctx.Ctx)
	if err != nil {
		ctx.Msg.Errorf("could not book new run: %+v", err)
		return xerrors.Errorf("could not book new run: %w", err)
	}
	srv.runID = run

	ctx.Msg.Infof("starting run %d...", run)
	return nil
}

func (srv *server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /stop command...")
	if srv.dev == nil {
		return nil
	}
	if err := srv.dev.Err(); err != nil {
		ctx.Msg.Errorf("DMA adapter failed during run %d: %+v", srv.runID, err)
		return xerrors.Errorf("DMA adapter failed during run %d: %w", srv.runID, err)
	}
	ctx.Msg.Infof("stopping run %d... [done]", srv.runID)
	return nil
}

func (srv *server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	if srv.dev != nil {
		if err := srv.dev.Close(); err != nil {
			return xerrors.Errorf("could not close DMA adapter: %w", err)
		}
		srv.dev = nil
	}
	return nil
}

func (srv *server) frames(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case data := <-srv.data:
		dst.Body = data
	}
	return nil
}

func (srv *server) run(ctx tdaq.Context) error {
	<-ctx.Ctx.Done()
	return nil
}
