// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stream

import (
	"github.com/go-daq/rogue"
)

// Iterator tracks an in-progress scatter/gather access to a frame.
// Each step exposes one contiguous window into a single buffer; the
// caller acts on up to Size bytes of Data, reports the amount with
// Completed, and advances with Frame.NextWrite or Frame.NextRead.
type Iterator struct {
	frame *Frame
	index int    // current buffer
	rel   uint32 // offset of the window inside the current buffer
	data  []byte // current window
	size  uint32
	done  uint32 // amount completed in the current window
	rem   uint32 // bytes left in the transaction
	total uint32
	wr    bool
}

// Data returns the current contiguous window.
func (it *Iterator) Data() []byte { return it.data }

// Size returns the usable size of the current window.
func (it *Iterator) Size() uint32 { return it.size }

// Total returns the transaction total.
func (it *Iterator) Total() uint32 { return it.total }

// Completed caps the amount of the current window actually used.
// Without a call, the full window is considered used.
func (it *Iterator) Completed(n uint32) {
	if n < it.size {
		it.done = n
	}
}

// StartWrite begins an iterative write of total bytes at offset.
func (f *Frame) StartWrite(offset, total uint32) (*Iterator, error) {
	if offset+total > f.Available()+f.Payload() {
		return nil, rogue.BoundaryError("stream.Frame.StartWrite", offset+total, f.Available()+f.Payload())
	}
	it := &Iterator{frame: f, rem: total, total: total, wr: true}
	it.seek(offset)
	return it, nil
}

// StartRead begins an iterative read of total bytes at offset.
func (f *Frame) StartRead(offset, total uint32) (*Iterator, error) {
	if offset+total > f.Payload() {
		return nil, rogue.BoundaryError("stream.Frame.StartRead", offset+total, f.Payload())
	}
	it := &Iterator{frame: f, rem: total, total: total}
	it.seek(offset)
	return it, nil
}

// seek positions the iterator window on the buffer containing offset.
func (it *Iterator) seek(offset uint32) {
	var pos uint32
	for i := 0; i < it.frame.Count(); i++ {
		buf := it.frame.Buffer(i)
		bcap := buf.RawSize() - buf.HeadRoom()
		if offset < pos+bcap || (bcap == 0 && offset == pos) {
			it.index = i
			it.window(offset - pos)
			return
		}
		pos += bcap
	}
	it.index = it.frame.Count()
	it.data = nil
	it.size = 0
	it.done = 0
}

// window sets up the view at offset rel into the current buffer.
func (it *Iterator) window(rel uint32) {
	buf := it.frame.Buffer(it.index)
	bcap := buf.RawSize() - buf.HeadRoom()
	size := bcap - rel
	if size > it.rem {
		size = it.rem
	}
	it.rel = rel
	it.data = buf.PayloadData()[rel : rel+size]
	it.size = size
	it.done = size
}

// NextWrite commits the completed amount of the current window and
// advances the iterator. It returns false when the transaction total
// has been consumed or no buffer remains.
func (f *Frame) NextWrite(it *Iterator) bool {
	if it.index >= f.Count() || it.size == 0 {
		return false
	}

	buf := f.Buffer(it.index)
	if end := it.rel + it.done; end > buf.Payload() {
		_ = buf.SetSize(end)
	}
	it.rem -= it.done

	if it.rem == 0 {
		return false
	}
	it.index++
	if it.index >= f.Count() {
		return false
	}
	it.window(0)
	return true
}

// NextRead advances the iterator past the completed amount of the
// current window. It returns false when the transaction total has been
// consumed or no buffer remains.
func (f *Frame) NextRead(it *Iterator) bool {
	if it.index >= f.Count() || it.size == 0 {
		return false
	}

	it.rem -= it.done

	if it.rem == 0 {
		return false
	}
	it.index++
	if it.index >= f.Count() {
		return false
	}
	it.window(0)
	return true
}
