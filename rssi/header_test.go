// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rssi

import (
	"encoding/binary"
	"reflect"
	"testing"

	"github.com/go-daq/rogue/stream"
)

func newHeaderFrame(t *testing.T) (*stream.Pool, *stream.Frame) {
	t.Helper()
	var pool stream.Pool
	frame, err := pool.AcceptReq(SynSize, false, 0)
	if err != nil {
		t.Fatalf("could not request frame: %+v", err)
	}
	return &pool, frame
}

func TestHeaderRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name string
		hdr  Header
	}{
		{
			name: "data",
			hdr: Header{
				Sequence:    42,
				Acknowledge: 17,
			},
		},
		{
			name: "ack-busy",
			hdr: Header{
				Ack:         true,
				Busy:        true,
				Sequence:    255,
				Acknowledge: 1,
			},
		},
		{
			name: "rst-nul",
			hdr: Header{
				Rst: true,
				Nul: true,
			},
		},
		{
			name: "syn",
			hdr: Header{
				Syn:                    true,
				Sequence:               5,
				Version:                1,
				Chk:                    true,
				MaxOutstandingSegments: 16,
				MaxSegmentSize:         1000,
				RetransmissionTimeout:  500,
				CumulativeAckTimeout:   250,
				NullTimeout:            2000,
				MaxRetransmissions:     8,
				MaxCumulativeAck:       4,
				TimeoutUnit:            3,
				ConnectionID:           7,
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, frame := newHeaderFrame(t)
			defer frame.Clear()

			src, err := New(frame)
			if err != nil {
				t.Fatalf("could not bind header: %+v", err)
			}
			want := tc.hdr
			src.Syn = want.Syn
			src.Ack = want.Ack
			src.Rst = want.Rst
			src.Nul = want.Nul
			src.Busy = want.Busy
			src.Sequence = want.Sequence
			src.Acknowledge = want.Acknowledge
			src.Version = want.Version
			src.Chk = want.Chk
			src.MaxOutstandingSegments = want.MaxOutstandingSegments
			src.MaxSegmentSize = want.MaxSegmentSize
			src.RetransmissionTimeout = want.RetransmissionTimeout
			src.CumulativeAckTimeout = want.CumulativeAckTimeout
			src.NullTimeout = want.NullTimeout
			src.MaxRetransmissions = want.MaxRetransmissions
			src.MaxCumulativeAck = want.MaxCumulativeAck
			src.TimeoutUnit = want.TimeoutUnit
			src.ConnectionID = want.ConnectionID

			err = src.Update()
			if err != nil {
				t.Fatalf("could not update header: %+v", err)
			}
			if got, want := src.Count(), uint32(1); got != want {
				t.Fatalf("invalid transmit count: got=%d, want=%d", got, want)
			}
			if src.Time().IsZero() {
				t.Fatalf("transmit time not stamped")
			}
			if got, want := frame.Buffer(0).Payload(), src.Size(); got != want {
				t.Fatalf("invalid payload: got=%d, want=%d", got, want)
			}

			dst, err := New(frame)
			if err != nil {
				t.Fatalf("could not bind header: %+v", err)
			}
			if !dst.Verify() {
				t.Fatalf("could not verify header:\n%s", src.Dump())
			}

			got := *dst
			got.frame = nil
			got.data = nil
			cmp := want
			if !reflect.DeepEqual(got, cmp) {
				t.Fatalf("invalid decode round-trip:\ngot= %#v\nwant=%#v", got, cmp)
			}
		})
	}
}

func TestHeaderSynLayout(t *testing.T) {
	_, frame := newHeaderFrame(t)
	defer frame.Clear()

	hdr, err := New(frame)
	if err != nil {
		t.Fatalf("could not bind header: %+v", err)
	}
	hdr.Syn = true
	hdr.Sequence = 5
	hdr.Version = 1
	hdr.MaxOutstandingSegments = 16
	hdr.MaxSegmentSize = 1000
	hdr.RetransmissionTimeout = 500
	hdr.CumulativeAckTimeout = 250
	hdr.NullTimeout = 2000
	hdr.MaxRetransmissions = 8
	hdr.MaxCumulativeAck = 4
	hdr.TimeoutUnit = 3
	hdr.ConnectionID = 7

	err = hdr.Update()
	if err != nil {
		t.Fatalf("could not update header: %+v", err)
	}

	data := frame.Buffer(0).PayloadData()
	if got, want := frame.Buffer(0).Payload(), uint32(SynSize); got != want {
		t.Fatalf("invalid serialized length: got=%d, want=%d", got, want)
	}
	if got, want := data[1], uint8(SynSize); got != want {
		t.Fatalf("invalid header-length byte: got=%d, want=%d", got, want)
	}
	if got, want := data[6], uint8(0x03); got != want {
		t.Fatalf("invalid maxSegmentSize MSB: got=0x%x, want=0x%x", got, want)
	}
	if got, want := data[7], uint8(0xe8); got != want {
		t.Fatalf("invalid maxSegmentSize LSB: got=0x%x, want=0x%x", got, want)
	}

	// the trailing checksum is the folded one's complement of the
	// preceding eleven 16-bit words.
	var sum uint32
	for x := 0; x < SynSize-2; x += 2 {
		sum += uint32(binary.BigEndian.Uint16(data[x : x+2]))
	}
	sum = (sum % 0x10000) + (sum / 0x10000)
	want := uint16(sum ^ 0xffff)
	if got := binary.BigEndian.Uint16(data[SynSize-2 : SynSize]); got != want {
		t.Fatalf("invalid checksum: got=0x%04x, want=0x%04x", got, want)
	}
}

func TestHeaderRejection(t *testing.T) {
	_, frame := newHeaderFrame(t)
	defer frame.Clear()

	hdr, err := New(frame)
	if err != nil {
		t.Fatalf("could not bind header: %+v", err)
	}
	hdr.Syn = true
	hdr.Sequence = 5
	hdr.MaxSegmentSize = 1000
	err = hdr.Update()
	if err != nil {
		t.Fatalf("could not update header: %+v", err)
	}

	data := frame.Buffer(0).PayloadData()
	for i := 0; i < SynSize; i++ {
		data[i] ^= 0x01
		chk, err := New(frame)
		if err != nil {
			t.Fatalf("could not bind header: %+v", err)
		}
		if chk.Verify() {
			t.Fatalf("header with corrupted byte %d passed verification", i)
		}
		data[i] ^= 0x01
	}

	// pristine header still verifies
	chk, err := New(frame)
	if err != nil {
		t.Fatalf("could not bind header: %+v", err)
	}
	if !chk.Verify() {
		t.Fatalf("pristine header did not verify")
	}
}

func TestHeaderVerifyShort(t *testing.T) {
	var pool stream.Pool
	frame, err := pool.AcceptReq(4, false, 0)
	if err != nil {
		t.Fatalf("could not request frame: %+v", err)
	}
	defer frame.Clear()

	err = frame.Write([]byte{0, 0, 0, 0}, 0)
	if err != nil {
		t.Fatalf("could not write frame: %+v", err)
	}

	hdr, err := New(frame)
	if err != nil {
		t.Fatalf("could not bind header: %+v", err)
	}
	if hdr.Verify() {
		t.Fatalf("short header passed verification")
	}
}

func TestHeaderEmptyFrame(t *testing.T) {
	frame := stream.NewFrame()
	_, err := New(frame)
	if err == nil {
		t.Fatalf("expected an error on empty frame")
	}
}

func TestHeaderUpdateBoundary(t *testing.T) {
	var pool stream.Pool
	frame, err := pool.AcceptReq(16, false, 0)
	if err != nil {
		t.Fatalf("could not request frame: %+v", err)
	}
	defer frame.Clear()

	hdr, err := New(frame)
	if err != nil {
		t.Fatalf("could not bind header: %+v", err)
	}
	hdr.Syn = true // 24-byte header in a 16-byte buffer
	err = hdr.Update()
	if err == nil {
		t.Fatalf("expected a boundary error")
	}
}
