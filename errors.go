// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rogue

import (
	"fmt"
)

// Kind classifies the failures reported by rogue components.
type Kind int

const (
	General    Kind = iota // catch-all failure with a free-text message
	Timeout                // a bounded wait elapsed
	Open                   // a backend open failed
	Dest                   // a destination was rejected by the backend
	Boundary               // an offset or size fell out of range
	Allocation             // a memory allocation failed
	Network                // a socket-level failure
	Return                 // a foreign call returned an error code
)

func (k Kind) String() string {
	switch k {
	case General:
		return "general"
	case Timeout:
		return "timeout"
	case Open:
		return "open"
	case Dest:
		return "dest"
	case Boundary:
		return "boundary"
	case Allocation:
		return "allocation"
	case Network:
		return "network"
	case Return:
		return "return"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a typed failure raised by rogue components.
// Src identifies the originating call site.
type Error struct {
	Kind Kind
	Src  string
	Msg  string

	Path   string // Open, Dest
	Dest   uint32 // Dest
	Micros uint32 // Timeout
	Pos    uint32 // Boundary
	Limit  uint32 // Boundary
	Size   uint32 // Allocation
	Host   string // Network
	Port   uint16 // Network
	Code   int32  // Return
}

func (e *Error) Error() string {
	return e.Src + ": " + e.Msg
}

// Is reports whether target is a rogue Error of the same kind.
func (e *Error) Is(target error) bool {
	o, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == o.Kind
}

// GeneralError creates a catch-all error with a free-text message.
func GeneralError(src, format string, args ...interface{}) *Error {
	return &Error{
		Kind: General,
		Src:  src,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// TimeoutError signals that a bounded wait of micros microseconds elapsed.
func TimeoutError(src string, micros uint32) *Error {
	return &Error{
		Kind:   Timeout,
		Src:    src,
		Msg:    fmt.Sprintf("timeout after %d µs", micros),
		Micros: micros,
	}
}

// OpenError signals that opening path failed.
func OpenError(src, path string) *Error {
	return &Error{
		Kind: Open,
		Src:  src,
		Msg:  fmt.Sprintf("could not open %q", path),
		Path: path,
	}
}

// DestError signals that the backend at path rejected destination dest.
func DestError(src, path string, dest uint32) *Error {
	return &Error{
		Kind: Dest,
		Src:  src,
		Msg:  fmt.Sprintf("%q rejected destination 0x%x", path, dest),
		Path: path,
		Dest: dest,
	}
}

// BoundaryError signals an access at pos past limit.
func BoundaryError(src string, pos, limit uint32) *Error {
	return &Error{
		Kind:  Boundary,
		Src:   src,
		Msg:   fmt.Sprintf("boundary error, position %d exceeds limit %d", pos, limit),
		Pos:   pos,
		Limit: limit,
	}
}

// AllocationError signals a failed allocation of size bytes.
func AllocationError(src string, size uint32) *Error {
	return &Error{
		Kind: Allocation,
		Src:  src,
		Msg:  fmt.Sprintf("could not allocate %d bytes", size),
		Size: size,
	}
}

// NetworkError signals a socket-level failure for host:port.
func NetworkError(src, host string, port uint16) *Error {
	return &Error{
		Kind: Network,
		Src:  src,
		Msg:  fmt.Sprintf("network error on %s:%d", host, port),
		Host: host,
		Port: port,
	}
}

// ReturnError carries an error code returned by a foreign call.
func ReturnError(src, msg string, code int32) *Error {
	return &Error{
		Kind: Return,
		Src:  src,
		Msg:  fmt.Sprintf("%s (code=%d)", msg, code),
		Code: code,
	}
}
