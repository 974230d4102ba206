// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dma

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/go-daq/rogue"
	"github.com/go-daq/rogue/internal/metrics"
	"github.com/go-daq/rogue/internal/yield"
	"github.com/go-daq/rogue/stream"
)

const (
	// receive-loop poll period; keeps worker cancellation responsive.
	rxPoll = 100 * time.Microsecond

	// poll period of unbounded waits on the transmit paths.
	txPoll = 10 * time.Millisecond

	// receive buffer size of buffered backends without a size hint.
	defBufSize = 1 << 16
)

// Device adapts a descriptor-based DMA backend to the stream graph.
//
// The master side produces the frames received by a background worker;
// the slave side accepts frames for transmission. Unrecoverable worker
// failures park on the device and surface on the next operation.
type Device struct {
	stream.Master

	msg  *log.Logger
	name string
	bk   Backend
	dest uint32
	cfg  config

	pool  stream.Pool
	table [][]byte
	bsize uint32

	quit chan struct{} // closed by Close
	done chan struct{} // closed by the worker on exit

	mu   sync.Mutex
	werr error // sticky worker failure
}

// New builds an adapter over the opened backend bk, subscribed to
// destination dest, and starts its receive worker. Driver handshake or
// destination failures prevent the adapter from entering service.
func New(name string, bk Backend, dest uint32, opts ...Option) (*Device, error) {
	if err := bk.CheckVersion(); err != nil {
		return nil, rogue.GeneralError("dma.New", "bad kernel driver version: %v", err)
	}

	if err := bk.SetMask(dest); err != nil {
		return nil, rogue.DestError("dma.New", name, dest)
	}

	dev := &Device{
		msg:  log.New(os.Stdout, name+": ", 0),
		name: name,
		bk:   bk,
		dest: dest,
		cfg:  newConfig(),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(&dev.cfg)
	}

	// the backend may expose no buffer table: the adapter then runs
	// in buffered mode.
	table, bsize, err := bk.MapDMA()
	if err != nil {
		return nil, rogue.AllocationError("dma.New", bsize)
	}
	dev.table = table
	dev.bsize = bsize
	if dev.bsize == 0 {
		dev.bsize = defBufSize
	}

	dev.pool.SetName(name)
	dev.pool.SetOwner(dev)

	go dev.loop()
	return dev, nil
}

// Err returns the sticky failure of the receive worker, if any.
func (dev *Device) Err() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.werr
}

func (dev *Device) setErr(err error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.werr == nil {
		dev.werr = err
	}
}

// Pool returns the software buffer pool of the adapter.
func (dev *Device) Pool() *stream.Pool { return &dev.pool }

// waitTimeout returns the device wait bound for transmit paths.
func (dev *Device) waitTimeout() time.Duration {
	if dev.cfg.timeout > 0 {
		return dev.cfg.timeout
	}
	return txPoll
}

// AcceptReq services a frame request. With a mapped buffer table and
// zero-copy enabled, the frame is built from kernel-pinned transmit
// buffers pulled from the driver; otherwise the software pool path is
// taken.
func (dev *Device) AcceptReq(size uint32, zeroCopyEn bool, maxBuf uint32) (*stream.Frame, error) {
	if err := dev.Err(); err != nil {
		return nil, err
	}

	buffSize := dev.bsize
	if maxBuf != 0 && maxBuf < buffSize {
		buffSize = maxBuf
	}

	if !zeroCopyEn || !dev.cfg.zcopy || dev.table == nil {
		return dev.pool.AcceptReq(size, false, buffSize)
	}

	defer yield.Scoped()()

	frame := stream.NewFrame()
	var alloc uint32
	for alloc < size {
		idx, err := dev.getIndex()
		if err != nil {
			frame.Clear()
			return nil, err
		}
		buf := dev.pool.CreateBuffer(dev.table[idx][:dev.bsize], stream.MetaZeroCopy|idx)
		frame.AppendBuffer(buf)
		alloc += dev.bsize
	}
	return frame, nil
}

// getIndex reserves a transmit buffer index, retrying lost races on
// the readiness signal.
func (dev *Device) getIndex() (uint32, error) {
	for {
		ok, err := dev.bk.WaitWrite(dev.waitTimeout())
		if err != nil {
			return 0, rogue.GeneralError("dma.Device.getIndex", "device wait failed: %v", err)
		}
		if !ok {
			if dev.cfg.timeout > 0 {
				return 0, rogue.TimeoutError("dma.Device.getIndex", uint32(dev.cfg.timeout/time.Microsecond))
			}
			continue
		}
		res, err := dev.bk.GetIndex()
		if err != nil {
			return 0, rogue.GeneralError("dma.Device.getIndex", "could not get index: %v", err)
		}
		if res >= 0 {
			return uint32(res) & stream.MetaIDMask, nil
		}
		// readiness raced with another consumer: wait again.
	}
}

// AcceptFrame implements the stream slave side: the frame is
// transmitted with Send before AcceptFrame returns. Failures park on
// the device, like worker failures.
func (dev *Device) AcceptFrame(frame *stream.Frame) {
	if err := dev.Send(frame); err != nil {
		dev.setErr(err)
		dev.msg.Printf("could not send frame: %+v", err)
	}
}

// Send transmits every buffer of frame through the backend. Zero-copy
// buffers are surrendered by index and marked so the drop path does
// not return them to the kernel; software buffers are copied by the
// driver. Buffers already surrendered are skipped: resubmitting a
// frame is a no-op per buffer.
func (dev *Device) Send(frame *stream.Frame) error {
	if err := dev.Err(); err != nil {
		return err
	}

	defer yield.Scoped()()

	for x := 0; x < frame.Count(); x++ {
		buf := frame.Buffer(x)

		// continuation is cleared on the last buffer of the frame.
		cont := x != frame.Count()-1

		fuser := Fuser(buf.Flags())
		luser := Luser(buf.Flags())
		if dev.cfg.ssi {
			fuser |= 0x2 // SOF
		}
		wire := PackFlags(fuser, luser, cont)

		meta := buf.Meta()
		switch {
		case meta&stream.MetaZeroCopy != 0:
			if meta&stream.MetaSurrender != 0 {
				continue
			}
			res, err := dev.bk.WriteIndex(meta&stream.MetaIDMask, buf.Payload(), wire, dev.dest)
			if err != nil || res < 0 {
				return rogue.GeneralError("dma.Device.Send", "link write failed (res=%d, err=%v)", res, err)
			}
			// the index now belongs to the device.
			buf.SetMeta(meta | stream.MetaSurrender)

		default:
			if err := dev.write(buf, wire); err != nil {
				return err
			}
		}
	}
	return nil
}

// write pushes a software-owned buffer through the copying driver
// path, retrying lost readiness races.
func (dev *Device) write(buf *stream.Buffer, wire uint32) error {
	data := buf.RawData()[:buf.HeadRoom()+buf.Payload()]
	for {
		ok, err := dev.bk.WaitWrite(dev.waitTimeout())
		if err != nil {
			return rogue.GeneralError("dma.Device.write", "device wait failed: %v", err)
		}
		if !ok {
			if dev.cfg.timeout > 0 {
				return rogue.TimeoutError("dma.Device.write", uint32(dev.cfg.timeout/time.Microsecond))
			}
			continue
		}
		res, err := dev.bk.Write(data, wire, dev.dest)
		if err != nil || res < 0 {
			return rogue.GeneralError("dma.Device.write", "link write failed (res=%d, err=%v)", res, err)
		}
		if res > 0 {
			return nil
		}
		// zero result: readiness raced, try again.
	}
}

// RetBuffer implements the buffer drop path. Zero-copy indices not yet
// surrendered to the device are returned to the kernel; surrendered
// ones are already owned by the device. Return paths never fail: they
// log and swallow.
func (dev *Device) RetBuffer(data []byte, meta, raw uint32) {
	if meta&stream.MetaZeroCopy == 0 {
		dev.pool.RetBuffer(data, meta, raw)
		return
	}

	if meta&stream.MetaSurrender == 0 && !dev.closed() {
		if err := dev.bk.RetIndex(meta & stream.MetaIDMask); err != nil {
			dev.msg.Printf("could not return index 0x%x: %+v", meta&stream.MetaIDMask, err)
		}
	}
	dev.pool.DecCounter(raw)
}

func (dev *Device) closed() bool {
	select {
	case <-dev.quit:
		return true
	default:
		return false
	}
}

// loop is the receive worker: it assembles incoming buffers into
// frames and dispatches a frame downstream whenever the continuation
// flag clears. It is cooperatively cancelled by Close.
func (dev *Device) loop() {
	defer close(dev.done)

	frame := stream.NewFrame()
	defer func() {
		frame.Clear()
	}()

	for {
		select {
		case <-dev.quit:
			return
		default:
		}

		ok, err := dev.bk.WaitRead(rxPoll)
		if err != nil {
			dev.fatal(rogue.GeneralError("dma.Device.loop", "device wait failed: %v", err))
			return
		}
		if !ok {
			continue
		}

		var (
			buf   *stream.Buffer
			n     int32
			flags uint32
			rxerr uint32
		)
		switch {
		case dev.table == nil:
			b, err := dev.pool.AllocBuffer(dev.bsize)
			if err != nil {
				dev.fatal(err)
				return
			}
			n, flags, rxerr, err = dev.bk.Read(b.RawData())
			if err != nil {
				b.Free()
				dev.fatal(rogue.GeneralError("dma.Device.loop", "device read failed: %v", err))
				return
			}
			if n <= 0 {
				b.Free()
				continue
			}
			buf = b

		default:
			var idx uint32
			n, idx, flags, rxerr, err = dev.bk.ReadIndex()
			if err != nil {
				dev.fatal(rogue.GeneralError("dma.Device.loop", "device read failed: %v", err))
				return
			}
			if n <= 0 {
				continue
			}
			buf = dev.pool.CreateBuffer(dev.table[idx][:dev.bsize], stream.MetaZeroCopy|idx)
		}

		if dev.cfg.ssi && Luser(flags)&0x1 != 0 {
			rxerr |= 0x1 // EOFE
		}

		if err := buf.SetSize(uint32(n)); err != nil {
			buf.Free()
			dev.fatal(err)
			return
		}
		buf.SetError(rxerr)
		buf.SetFlags(Fuser(flags) | Luser(flags)<<8)
		frame.SetError(frame.Error() | rxerr)
		frame.SetFlags(buf.Flags())
		frame.AppendBuffer(buf)

		if !Cont(flags) {
			dev.SendFrame(frame)
			frame = stream.NewFrame()
		}
	}
}

// fatal parks a worker failure on the device: the adapter becomes
// non-functional and the next user call observes the failure.
func (dev *Device) fatal(err error) {
	dev.setErr(err)
	metrics.RxErrors.WithLabelValues(dev.name).Inc()
	dev.msg.Printf("receive worker failed: %+v", err)
}

// Close signals the receive worker, waits for it to exit and releases
// the device descriptor.
func (dev *Device) Close() error {
	select {
	case <-dev.quit:
		// already closed
		return dev.bk.Close()
	default:
	}
	close(dev.quit)

	const timeout = 10 * time.Second
	tck := time.NewTimer(timeout)
	defer tck.Stop()
	select {
	case <-dev.done:
	case <-tck.C:
		return rogue.GeneralError("dma.Device.Close", "could not stop receive worker (timeout=%v)", timeout)
	}

	if dev.table != nil {
		if err := dev.bk.UnmapDMA(); err != nil {
			dev.msg.Printf("could not unmap dma table: %+v", err)
		}
		dev.table = nil
	}

	if err := dev.bk.Close(); err != nil {
		return rogue.GeneralError("dma.Device.Close", "could not close backend: %v", err)
	}
	return nil
}

var (
	_ stream.Slave       = (*Device)(nil)
	_ stream.BufferOwner = (*Device)(nil)
)
