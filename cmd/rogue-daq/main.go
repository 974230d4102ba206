// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command rogue-daq drives a DMA adapter in stand-alone mode, writing
// received frames to disk and, optionally, to a TCP sink.
package main // import "github.com/go-daq/rogue/cmd/rogue-daq"

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-daq/rogue/dma"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		runnbr  = flag.Int("run", -1, "run number")
		dest    = flag.Uint("dest", 0, "destination/channel selector")
		timeout = flag.Duration("timeout", 1*time.Second, "device wait bound (0 disables)")
		zcopy   = flag.Bool("zcopy", true, "enable zero-copy paths")
		ssi     = flag.Bool("ssi", false, "enable SSI framing")
		srvAddr = flag.String("srv-addr", "", "optional [address]:port of a TCP frame sink")
		odir    = flag.String("o", "/var/run/rogue", "output dir")
	)

	log.SetPrefix("rogue-daq: ")
	log.SetFlags(0)

	flag.Parse()

	if *runnbr < 0 {
		log.Fatalf("invalid run number value")
	}

	log.Printf("run=%d dest=0x%x zero-copy=%v ssi=%v", *runnbr, *dest, *zcopy, *ssi)

	err := run(uint32(*runnbr), uint32(*dest), *timeout, *zcopy, *ssi, *srvAddr, *odir)
	if err != nil {
		log.Fatalf("could not run rogue-daq: %+v", err)
	}
}

func run(runnbr, dest uint32, timeout time.Duration, zcopy, ssi bool, srvAddr, odir string) error {
	bk := dma.NewSim(128, 2048)

	dev, err := dma.New("daq", bk, dest,
		dma.WithTimeout(timeout),
		dma.WithZeroCopy(zcopy),
		dma.WithSSI(ssi),
	)
	if err != nil {
		return fmt.Errorf("could not create DMA adapter: %w", err)
	}
	defer dev.Close()

	fname := filepath.Join(odir, fmt.Sprintf("rogue_%06d.raw", runnbr))
	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("could not create output data file %q: %w", fname, err)
	}
	defer f.Close()

	var (
		grp errgroup.Group
		tcp *streamSink
	)

	sink := newFileSink(f)
	dev.AddSlave(sink)

	if srvAddr != "" {
		conn, err := net.Dial("tcp", srvAddr)
		if err != nil {
			return fmt.Errorf("could not dial frame sink %q: %w", srvAddr, err)
		}
		defer conn.Close()
		tcp = newStreamSink(conn, &grp)
		dev.AddSlave(tcp)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	log.Printf("-----------------RUN NB %d-----------------", runnbr)
	<-stop
	log.Printf("stopping run %d...", runnbr)

	err = dev.Close()
	if err != nil {
		return fmt.Errorf("could not close DMA adapter: %w", err)
	}

	if tcp != nil {
		tcp.close()
	}
	err = grp.Wait()
	if err != nil {
		return fmt.Errorf("could not drain frame sinks: %w", err)
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("could not close output data file %q: %w", fname, err)
	}

	log.Printf("stopping run %d... [done] (frames=%d, bytes=%d)",
		runnbr, sink.FrameCount(), sink.ByteCount(),
	)
	return nil
}
