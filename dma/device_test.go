// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dma

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-daq/rogue"
	"github.com/go-daq/rogue/stream"
)

// fakeBackend is a scriptable DMA backend for tests.
type fakeBackend struct {
	mu sync.Mutex

	table [][]byte
	size  uint32
	free  []uint32

	wrReady bool
	rdPkts  []fakePkt

	writes []fakeWrite
	rets   []uint32
}

type fakePkt struct {
	idx   uint32
	n     int32
	flags uint32
	rxerr uint32
}

type fakeWrite struct {
	idx   uint32
	size  uint32
	flags uint32
	dest  uint32
}

func newFakeBackend(count int, size uint32) *fakeBackend {
	bk := &fakeBackend{size: size, wrReady: true}
	for i := 0; i < count; i++ {
		bk.table = append(bk.table, make([]byte, size))
		bk.free = append(bk.free, uint32(i))
	}
	return bk
}

func (bk *fakeBackend) CheckVersion() error       { return nil }
func (bk *fakeBackend) SetMask(dest uint32) error { return nil }
func (bk *fakeBackend) UnmapDMA() error           { return nil }
func (bk *fakeBackend) Close() error              { return nil }

func (bk *fakeBackend) MapDMA() ([][]byte, uint32, error) {
	return bk.table, bk.size, nil
}

func (bk *fakeBackend) WaitRead(timeout time.Duration) (bool, error) {
	bk.mu.Lock()
	n := len(bk.rdPkts)
	bk.mu.Unlock()
	if n > 0 {
		return true, nil
	}
	time.Sleep(timeout)
	return false, nil
}

func (bk *fakeBackend) WaitWrite(timeout time.Duration) (bool, error) {
	bk.mu.Lock()
	defer bk.mu.Unlock()
	return bk.wrReady, nil
}

func (bk *fakeBackend) GetIndex() (int32, error) {
	bk.mu.Lock()
	defer bk.mu.Unlock()
	if n := len(bk.free); n > 0 {
		idx := bk.free[n-1]
		bk.free = bk.free[:n-1]
		return int32(idx), nil
	}
	return -1, nil
}

func (bk *fakeBackend) RetIndex(idx uint32) error {
	bk.mu.Lock()
	defer bk.mu.Unlock()
	bk.rets = append(bk.rets, idx)
	bk.free = append(bk.free, idx)
	return nil
}

func (bk *fakeBackend) ReadIndex() (int32, uint32, uint32, uint32, error) {
	bk.mu.Lock()
	defer bk.mu.Unlock()
	if len(bk.rdPkts) == 0 {
		return 0, 0, 0, 0, nil
	}
	pkt := bk.rdPkts[0]
	bk.rdPkts = bk.rdPkts[1:]
	return pkt.n, pkt.idx, pkt.flags, pkt.rxerr, nil
}

func (bk *fakeBackend) Read(p []byte) (int32, uint32, uint32, error) {
	bk.mu.Lock()
	defer bk.mu.Unlock()
	if len(bk.rdPkts) == 0 {
		return 0, 0, 0, nil
	}
	pkt := bk.rdPkts[0]
	bk.rdPkts = bk.rdPkts[1:]
	n := copy(p, bk.table[pkt.idx][:pkt.n])
	return int32(n), pkt.flags, pkt.rxerr, nil
}

func (bk *fakeBackend) WriteIndex(idx, size, flags, dest uint32) (int32, error) {
	bk.mu.Lock()
	defer bk.mu.Unlock()
	bk.writes = append(bk.writes, fakeWrite{idx: idx, size: size, flags: flags, dest: dest})
	return int32(size), nil
}

func (bk *fakeBackend) Write(p []byte, flags, dest uint32) (int32, error) {
	bk.mu.Lock()
	defer bk.mu.Unlock()
	bk.writes = append(bk.writes, fakeWrite{size: uint32(len(p)), flags: flags, dest: dest})
	return int32(len(p)), nil
}

func (bk *fakeBackend) pushRead(pkt fakePkt) {
	bk.mu.Lock()
	defer bk.mu.Unlock()
	bk.rdPkts = append(bk.rdPkts, pkt)
}

func (bk *fakeBackend) returned() []uint32 {
	bk.mu.Lock()
	defer bk.mu.Unlock()
	return append([]uint32(nil), bk.rets...)
}

func (bk *fakeBackend) written() []fakeWrite {
	bk.mu.Lock()
	defer bk.mu.Unlock()
	return append([]fakeWrite(nil), bk.writes...)
}

func TestDeviceZeroCopyTransmit(t *testing.T) {
	bk := newFakeBackend(4, 2048)
	dev, err := New("fake", bk, 0)
	if err != nil {
		t.Fatalf("could not create device: %+v", err)
	}
	defer dev.Close()

	frame, err := dev.AcceptReq(2048, true, 2048)
	if err != nil {
		t.Fatalf("could not request frame: %+v", err)
	}

	if got, want := frame.Count(), 1; got != want {
		t.Fatalf("invalid buffer count: got=%d, want=%d", got, want)
	}
	buf := frame.Buffer(0)
	if buf.Meta()&stream.MetaZeroCopy == 0 {
		t.Fatalf("zero-copy bit not set: meta=0x%x", buf.Meta())
	}

	err = dev.Send(frame)
	if err != nil {
		t.Fatalf("could not send frame: %+v", err)
	}

	writes := bk.written()
	if got, want := len(writes), 1; got != want {
		t.Fatalf("invalid write-index count: got=%d, want=%d", got, want)
	}
	if got, want := writes[0].size, uint32(0); got != want {
		t.Fatalf("invalid write size: got=%d, want=%d", got, want)
	}
	if Cont(writes[0].flags) {
		t.Fatalf("continuation set on the last buffer")
	}
	if buf.Meta()&stream.MetaSurrender == 0 {
		t.Fatalf("surrender bit not set after transmit: meta=0x%x", buf.Meta())
	}

	// resubmission is a no-op per buffer
	err = dev.Send(frame)
	if err != nil {
		t.Fatalf("could not resend frame: %+v", err)
	}
	if got, want := len(bk.written()), 1; got != want {
		t.Fatalf("resubmission reached the driver: got=%d, want=%d", got, want)
	}

	// the index belongs to the device: drop must not return it
	frame.Clear()
	if got, want := len(bk.returned()), 0; got != want {
		t.Fatalf("surrendered index returned to the kernel: got=%d, want=%d", got, want)
	}
	if got, want := dev.Pool().AllocCount(), uint32(0); got != want {
		t.Fatalf("invalid alloc-count: got=%d, want=%d", got, want)
	}
}

func TestDeviceZeroCopyDrop(t *testing.T) {
	bk := newFakeBackend(4, 2048)
	dev, err := New("fake", bk, 0)
	if err != nil {
		t.Fatalf("could not create device: %+v", err)
	}
	defer dev.Close()

	frame, err := dev.AcceptReq(4096, true, 0)
	if err != nil {
		t.Fatalf("could not request frame: %+v", err)
	}
	if got, want := frame.Count(), 2; got != want {
		t.Fatalf("invalid buffer count: got=%d, want=%d", got, want)
	}

	// dropped without transmit: exactly one ret-index per buffer
	frame.Clear()
	if got, want := len(bk.returned()), 2; got != want {
		t.Fatalf("invalid ret-index count: got=%d, want=%d", got, want)
	}
}

func TestDeviceSoftwarePath(t *testing.T) {
	bk := newFakeBackend(0, 1024) // no table
	dev, err := New("fake", bk, 0)
	if err != nil {
		t.Fatalf("could not create device: %+v", err)
	}
	defer dev.Close()

	frame, err := dev.AcceptReq(100, true, 0)
	if err != nil {
		t.Fatalf("could not request frame: %+v", err)
	}
	defer frame.Clear()

	if got := frame.Buffer(0).Meta() & stream.MetaZeroCopy; got != 0 {
		t.Fatalf("software buffer carries the zero-copy bit")
	}

	err = frame.Write(bytes.Repeat([]byte{0x5a}, 100), 0)
	if err != nil {
		t.Fatalf("could not write frame: %+v", err)
	}

	err = dev.Send(frame)
	if err != nil {
		t.Fatalf("could not send frame: %+v", err)
	}
	writes := bk.written()
	if got, want := len(writes), 1; got != want {
		t.Fatalf("invalid write count: got=%d, want=%d", got, want)
	}
	if got, want := writes[0].size, uint32(100); got != want {
		t.Fatalf("invalid write size: got=%d, want=%d", got, want)
	}
}

func TestDeviceTimeout(t *testing.T) {
	bk := newFakeBackend(4, 1024)
	bk.wrReady = false // never signals write readiness

	dev, err := New("fake", bk, 0, WithTimeout(1000*time.Microsecond))
	if err != nil {
		t.Fatalf("could not create device: %+v", err)
	}
	defer dev.Close()

	frame, err := dev.Pool().AcceptReq(64, false, 0)
	if err != nil {
		t.Fatalf("could not request frame: %+v", err)
	}
	defer frame.Clear()
	err = frame.Write(make([]byte, 64), 0)
	if err != nil {
		t.Fatalf("could not write frame: %+v", err)
	}

	start := time.Now()
	err = dev.Send(frame)
	if err == nil {
		t.Fatalf("expected a timeout error")
	}
	var terr *rogue.Error
	if !errors.As(err, &terr) || terr.Kind != rogue.Timeout {
		t.Fatalf("invalid error: %+v", err)
	}
	if got, want := terr.Micros, uint32(1000); got != want {
		t.Fatalf("invalid timeout value: got=%d, want=%d", got, want)
	}
	if d := time.Since(start); d > 2*time.Millisecond {
		t.Fatalf("timeout took too long: %v", d)
	}

	_, err = dev.AcceptReq(64, true, 0)
	if !errors.As(err, &terr) || terr.Kind != rogue.Timeout {
		t.Fatalf("invalid accept-req error: %+v", err)
	}
}

func TestDeviceReceive(t *testing.T) {
	bk := newFakeBackend(4, 1024)
	dev, err := New("fake", bk, 0)
	if err != nil {
		t.Fatalf("could not create device: %+v", err)
	}
	defer dev.Close()

	sink := stream.NewSink("rx")
	dev.AddSlave(sink)

	copy(bk.table[2], []byte{1, 2, 3, 4})
	copy(bk.table[3], []byte{5, 6, 7, 8})

	// two buffers, continuation set on the first one
	bk.pushRead(fakePkt{idx: 2, n: 4, flags: PackFlags(0, 0, true)})
	bk.pushRead(fakePkt{idx: 3, n: 4, flags: PackFlags(0, 0, false)})

	deadline := time.Now().Add(1 * time.Second)
	for sink.FrameCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(1 * time.Millisecond)
	}
	if got, want := sink.FrameCount(), uint64(1); got != want {
		t.Fatalf("invalid frame count: got=%d, want=%d", got, want)
	}
	if got, want := sink.ByteCount(), uint64(8); got != want {
		t.Fatalf("invalid byte count: got=%d, want=%d", got, want)
	}
}

func TestDeviceReceiveError(t *testing.T) {
	bk := newFakeBackend(4, 1024)
	dev, err := New("fake", bk, 0, WithSSI(true))
	if err != nil {
		t.Fatalf("could not create device: %+v", err)
	}
	defer dev.Close()

	var (
		mu     sync.Mutex
		frames []*stream.Frame
	)
	dev.AddSlave(slaveFunc(func(frame *stream.Frame) {
		mu.Lock()
		frames = append(frames, frame)
		mu.Unlock()
	}))

	// EOFE set in the last-user field
	bk.pushRead(fakePkt{idx: 0, n: 4, flags: PackFlags(0, 0x1, false)})

	deadline := time.Now().Add(100 * time.Millisecond)
	for {
		mu.Lock()
		n := len(frames)
		mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(1 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(frames) != 1 {
		t.Fatalf("receive worker did not dispatch a frame")
	}
	if got := frames[0].Error(); got&0x1 == 0 {
		t.Fatalf("EOFE not propagated to the frame error: 0x%x", got)
	}
}

// slaveFunc adapts a function to the stream.Slave interface.
type slaveFunc func(*stream.Frame)

func (f slaveFunc) AcceptFrame(frame *stream.Frame) { f(frame) }
func (f slaveFunc) AcceptReq(size uint32, zeroCopyEn bool, maxBuf uint32) (*stream.Frame, error) {
	return nil, rogue.GeneralError("dma.slaveFunc", "not a pool")
}

func TestDeviceClose(t *testing.T) {
	bk := newFakeBackend(4, 1024)
	dev, err := New("fake", bk, 0)
	if err != nil {
		t.Fatalf("could not create device: %+v", err)
	}

	err = dev.Close()
	if err != nil {
		t.Fatalf("could not close device: %+v", err)
	}
	if err := dev.Err(); err != nil {
		t.Fatalf("worker failed during shutdown: %+v", err)
	}

	err = dev.Close()
	if err != nil {
		t.Fatalf("could not close device twice: %+v", err)
	}
}

func TestSimLoopback(t *testing.T) {
	sim := NewSim(4, 1024)
	dev, err := New("sim", sim, 0)
	if err != nil {
		t.Fatalf("could not create device: %+v", err)
	}
	defer dev.Close()

	sink := stream.NewSink("rx")
	dev.AddSlave(sink)

	frame, err := dev.AcceptReq(256, true, 0)
	if err != nil {
		t.Fatalf("could not request frame: %+v", err)
	}
	want := bytes.Repeat([]byte{0xa5}, 256)
	err = frame.Write(want, 0)
	if err != nil {
		t.Fatalf("could not write frame: %+v", err)
	}

	err = dev.Send(frame)
	if err != nil {
		t.Fatalf("could not send frame: %+v", err)
	}
	frame.Clear()

	deadline := time.Now().Add(1 * time.Second)
	for sink.FrameCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(1 * time.Millisecond)
	}
	if got, want := sink.FrameCount(), uint64(1); got != want {
		t.Fatalf("invalid frame count: got=%d, want=%d", got, want)
	}
	if got, want := sink.ByteCount(), uint64(256); got != want {
		t.Fatalf("invalid byte count: got=%d, want=%d", got, want)
	}
}
