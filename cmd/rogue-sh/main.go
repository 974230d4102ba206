// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command rogue-sh is an interactive register shell over the memory
// fabric: it maps physical windows and peeks/pokes 32-bit registers
// through an optional hub offset.
//
//	rogue-sh> map 0x40010000 0x1000
//	rogue-sh> hub 0x40000000
//	rogue-sh> rd 0x10000 4
//	rogue-sh> wr 0x10004 0xdeadbeef
package main // import "github.com/go-daq/rogue/cmd/rogue-sh"

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/go-daq/rogue/memmap"
	"github.com/go-daq/rogue/memory"
	"github.com/peterh/liner"
)

func main() {
	var (
		devmem = flag.String("dev", "/dev/mem", "memory device to open")
	)

	log.SetPrefix("rogue-sh: ")
	log.SetFlags(0)

	flag.Parse()

	err := run(*devmem)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(devmem string) error {
	dev, err := memmap.Open(devmem)
	if err != nil {
		return fmt.Errorf("could not open %q: %w", devmem, err)
	}
	defer dev.Close()

	sh := &shell{
		dev: dev,
		cli: memory.NewClient(dev),
	}

	term := liner.NewLiner()
	defer term.Close()
	term.SetCtrlCAborts(true)

	for {
		line, err := term.Prompt("rogue-sh> ")
		if err != nil {
			if err == io.EOF || err == liner.ErrPromptAborted {
				fmt.Println()
				return nil
			}
			return fmt.Errorf("could not read line: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		if line == "quit" || line == "exit" {
			return nil
		}

		err = sh.exec(line)
		if err != nil {
			log.Printf("%+v", err)
		}
	}
}

type shell struct {
	dev *memmap.Device
	cli *memory.Client
}

func (sh *shell) exec(line string) error {
	args := strings.Fields(line)
	switch args[0] {
	case "map":
		return sh.cmdMap(args[1:])
	case "hub":
		return sh.cmdHub(args[1:])
	case "rd":
		return sh.cmdRead(args[1:])
	case "wr":
		return sh.cmdWrite(args[1:])
	case "help":
		fmt.Println("commands: map <base> <size> | hub <offset> | rd <addr> [n] | wr <addr> <val> | quit")
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func (sh *shell) cmdMap(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: map <base> <size>")
	}
	base, err := parseU64(args[0])
	if err != nil {
		return err
	}
	size, err := parseU64(args[1])
	if err != nil {
		return err
	}
	sh.dev.AddMap(base, uint32(size))
	return nil
}

func (sh *shell) cmdHub(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: hub <offset>")
	}
	offset, err := parseU64(args[0])
	if err != nil {
		return err
	}
	sh.cli = memory.NewClient(memory.NewHub(offset, sh.dev))
	fmt.Printf("hub offset=0x%x\n", offset)
	return nil
}

func (sh *shell) cmdRead(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: rd <addr> [n]")
	}
	addr, err := parseU64(args[0])
	if err != nil {
		return err
	}
	n := uint64(1)
	if len(args) == 2 {
		n, err = parseU64(args[1])
		if err != nil {
			return err
		}
	}

	p := make([]byte, 4*n)
	status, err := sh.cli.Read(addr, p)
	if err != nil {
		return fmt.Errorf("could not read 0x%x: %w", addr, err)
	}
	if status != memory.OK {
		return fmt.Errorf("could not read 0x%x: status=0x%x", addr, status)
	}
	for i := uint64(0); i < n; i++ {
		v := binary.LittleEndian.Uint32(p[4*i : 4*i+4])
		fmt.Printf("0x%08x: 0x%08x\n", addr+4*i, v)
	}
	return nil
}

func (sh *shell) cmdWrite(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: wr <addr> <val>")
	}
	addr, err := parseU64(args[0])
	if err != nil {
		return err
	}
	val, err := parseU64(args[1])
	if err != nil {
		return err
	}

	var p [4]byte
	binary.LittleEndian.PutUint32(p[:], uint32(val))
	status, err := sh.cli.Write(addr, p[:])
	if err != nil {
		return fmt.Errorf("could not write 0x%x: %w", addr, err)
	}
	if status != memory.OK {
		return fmt.Errorf("could not write 0x%x: status=0x%x", addr, status)
	}
	fmt.Printf("0x%08x <- 0x%08x\n", addr, uint32(val))
	return nil
}

func parseU64(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("could not parse %q: %w", s, err)
	}
	return v, nil
}
