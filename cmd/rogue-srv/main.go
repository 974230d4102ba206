// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command rogue-srv starts a TDAQ server exposing a DMA adapter to the
// run control: received frames are published on the /frames output.
package main // import "github.com/go-daq/rogue/cmd/rogue-srv"

import (
	"context"
	"log"
	"os"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
)

func main() {
	cmd := flags.New()

	dev := newServer(cmd.Args[0])

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/frames", dev.frames)

	srv.RunHandle(dev.run)

	err := srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}
