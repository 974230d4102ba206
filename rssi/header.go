// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rssi implements the segment header of the RSSI
// reliable-datagram protocol: encoding, validation and checksum.
//
// A segment header is 8 bytes, or 24 bytes when the SYN flag is set,
// with a 16-bit one's-complement checksum in the last two bytes. All
// multi-byte fields are big-endian.
package rssi // import "github.com/go-daq/rogue/rssi"

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/go-daq/rogue"
	"github.com/go-daq/rogue/stream"
)

// Header sizes in bytes.
const (
	HeaderSize = 8
	SynSize    = 24
)

// flag bits of header byte 0.
const (
	flagBusy = 0x01
	flagNul  = 0x08
	flagRst  = 0x10
	flagAck  = 0x40
	flagSyn  = 0x80
)

// Header gives segment-header access to the first buffer of a frame.
//
// The exported fields are populated by Verify and serialized by Update.
type Header struct {
	frame *stream.Frame
	data  []byte // first buffer payload area

	time  time.Time // last transmit time
	count uint32    // transmit count

	Syn  bool
	Ack  bool
	Rst  bool
	Nul  bool
	Busy bool

	Sequence    uint8
	Acknowledge uint8

	// SYN-only parameters.
	Version                uint8
	Chk                    bool
	MaxOutstandingSegments uint8
	MaxSegmentSize         uint16
	RetransmissionTimeout  uint16
	CumulativeAckTimeout   uint16
	NullTimeout            uint16
	MaxRetransmissions     uint8
	MaxCumulativeAck       uint8
	TimeoutUnit            uint8
	ConnectionID           uint8
}

// New binds a header to the first buffer of frame.
func New(frame *stream.Frame) (*Header, error) {
	if frame.Count() == 0 {
		return nil, rogue.GeneralError("rssi.New", "frame must not be empty")
	}
	return &Header{
		frame: frame,
		data:  frame.Buffer(0).PayloadData(),
	}, nil
}

// Frame returns the underlying frame.
func (hdr *Header) Frame() *stream.Frame { return hdr.frame }

// Size returns the encoded header size for the current flags.
func (hdr *Header) Size() uint32 {
	if hdr.Syn {
		return SynSize
	}
	return HeaderSize
}

// Count returns the number of times the header has been transmitted.
func (hdr *Header) Count() uint32 { return hdr.count }

// Time returns the last transmit time.
func (hdr *Header) Time() time.Time { return hdr.time }

// RstTime resets the transmit time to now.
func (hdr *Header) RstTime() { hdr.time = time.Now() }

// compSum computes the one's-complement checksum over the first size-2
// bytes of the header, folded to 16 bits.
func (hdr *Header) compSum(size uint32) uint16 {
	var sum uint32
	for x := uint32(0); x < size-2; x += 2 {
		sum += uint32(binary.BigEndian.Uint16(hdr.data[x : x+2]))
	}
	sum = (sum % 0x10000) + (sum / 0x10000)
	return uint16(sum ^ 0xffff)
}

// Verify decodes and validates the header. It returns false without
// populating the fields when the frame is too short, the advertised
// header length is inconsistent with the SYN flag, or the checksum does
// not match.
func (hdr *Header) Verify() bool {
	if hdr.frame.Buffer(0).Payload() < HeaderSize {
		return false
	}

	flags := hdr.data[0]
	size := uint32(HeaderSize)
	if flags&flagSyn != 0 {
		size = SynSize
	}

	if uint32(hdr.data[1]) != size ||
		hdr.frame.Buffer(0).Payload() < size ||
		binary.BigEndian.Uint16(hdr.data[size-2:size]) != hdr.compSum(size) {
		return false
	}

	hdr.Syn = flags&flagSyn != 0
	hdr.Ack = flags&flagAck != 0
	hdr.Rst = flags&flagRst != 0
	hdr.Nul = flags&flagNul != 0
	hdr.Busy = flags&flagBusy != 0

	hdr.Sequence = hdr.data[2]
	hdr.Acknowledge = hdr.data[3]

	if !hdr.Syn {
		return true
	}

	hdr.Version = hdr.data[4] >> 4
	hdr.Chk = hdr.data[4]&0x04 != 0

	hdr.MaxOutstandingSegments = hdr.data[5]
	hdr.MaxSegmentSize = binary.BigEndian.Uint16(hdr.data[6:8])
	hdr.RetransmissionTimeout = binary.BigEndian.Uint16(hdr.data[8:10])
	hdr.CumulativeAckTimeout = binary.BigEndian.Uint16(hdr.data[10:12])
	hdr.NullTimeout = binary.BigEndian.Uint16(hdr.data[12:14])
	hdr.MaxRetransmissions = hdr.data[14]
	hdr.MaxCumulativeAck = hdr.data[15]
	hdr.TimeoutUnit = hdr.data[17]
	hdr.ConnectionID = hdr.data[18]

	return true
}

// Update serializes the header fields, writes the checksum last, stamps
// the transmit time and increments the transmit count.
func (hdr *Header) Update() error {
	size := hdr.Size()

	buf := hdr.frame.Buffer(0)
	if buf.RawSize()-buf.HeadRoom() < size {
		return rogue.BoundaryError("rssi.Header.Update", size, buf.RawSize()-buf.HeadRoom())
	}

	if buf.Payload() == 0 {
		if err := buf.SetSize(size); err != nil {
			return err
		}
	}

	for i := uint32(0); i < size; i++ {
		hdr.data[i] = 0
	}
	hdr.data[1] = uint8(size)

	if hdr.Ack {
		hdr.data[0] |= flagAck
	}
	if hdr.Rst {
		hdr.data[0] |= flagRst
	}
	if hdr.Nul {
		hdr.data[0] |= flagNul
	}
	if hdr.Busy {
		hdr.data[0] |= flagBusy
	}

	hdr.data[2] = hdr.Sequence
	hdr.data[3] = hdr.Acknowledge

	if hdr.Syn {
		hdr.data[0] |= flagSyn
		hdr.data[4] |= 0x08
		hdr.data[4] |= hdr.Version << 4
		if hdr.Chk {
			hdr.data[4] |= 0x04
		}

		hdr.data[5] = hdr.MaxOutstandingSegments
		binary.BigEndian.PutUint16(hdr.data[6:8], hdr.MaxSegmentSize)
		binary.BigEndian.PutUint16(hdr.data[8:10], hdr.RetransmissionTimeout)
		binary.BigEndian.PutUint16(hdr.data[10:12], hdr.CumulativeAckTimeout)
		binary.BigEndian.PutUint16(hdr.data[12:14], hdr.NullTimeout)
		hdr.data[14] = hdr.MaxRetransmissions
		hdr.data[15] = hdr.MaxCumulativeAck
		hdr.data[17] = hdr.TimeoutUnit
		hdr.data[18] = hdr.ConnectionID
	}

	binary.BigEndian.PutUint16(hdr.data[size-2:size], hdr.compSum(size))

	hdr.time = time.Now()
	hdr.count++
	return nil
}

// Dump returns a human readable view of the header fields.
func (hdr *Header) Dump() string {
	var o strings.Builder
	fmt.Fprintf(&o, "   Syn : %v\n", hdr.Syn)
	fmt.Fprintf(&o, "   Ack : %v\n", hdr.Ack)
	fmt.Fprintf(&o, "   Rst : %v\n", hdr.Rst)
	fmt.Fprintf(&o, "   Nul : %v\n", hdr.Nul)
	fmt.Fprintf(&o, "   Busy: %v\n", hdr.Busy)
	fmt.Fprintf(&o, "   Seq : %d\n", hdr.Sequence)
	fmt.Fprintf(&o, "   Ack#: %d\n", hdr.Acknowledge)
	if hdr.Syn {
		fmt.Fprintf(&o, "   Vers: %d\n", hdr.Version)
		fmt.Fprintf(&o, "   Chk : %v\n", hdr.Chk)
		fmt.Fprintf(&o, "   MOS : %d\n", hdr.MaxOutstandingSegments)
		fmt.Fprintf(&o, "   MSS : %d\n", hdr.MaxSegmentSize)
		fmt.Fprintf(&o, "   RTO : %d\n", hdr.RetransmissionTimeout)
		fmt.Fprintf(&o, "   CAT : %d\n", hdr.CumulativeAckTimeout)
		fmt.Fprintf(&o, "   NTO : %d\n", hdr.NullTimeout)
		fmt.Fprintf(&o, "   MRT : %d\n", hdr.MaxRetransmissions)
		fmt.Fprintf(&o, "   MCA : %d\n", hdr.MaxCumulativeAck)
		fmt.Fprintf(&o, "   TOU : %d\n", hdr.TimeoutUnit)
		fmt.Fprintf(&o, "   CID : %d\n", hdr.ConnectionID)
	}
	return o.String()
}
