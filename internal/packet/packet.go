// Package packet implements the fixed-length frame exchanged with the
// embedded controller.
//
// A frame of capacity N is laid out as
//
//	[0]      start marker 0xFF
//	[1..N-3] payload
//	[N-2]    checksum slot (payload byte unless a checksum is sealed)
//	[N-1]    end marker 0x0D
package packet

import (
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	StartMarker byte = 0xFF
	EndMarker   byte = 0x0D
)

// Common capacities used by controller firmware.
const (
	Capacity16 = 16
	Capacity32 = 32
	Capacity64 = 64
)

const (
	MinCapacity = 4
	MaxCapacity = 256
)

var (
	ErrCapacity     = errors.New("packet: capacity out of range")
	ErrSizeMismatch = errors.New("packet: size mismatch")
	ErrOutOfRange   = errors.New("packet: index out of payload range")
)

// Frame holds exactly Capacity() bytes for its whole lifetime.
type Frame struct {
	buf []byte
}

// ValidCapacity reports whether n is a supported frame capacity.
func ValidCapacity(n int) error {
	if n < MinCapacity || n > MaxCapacity {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrCapacity, n, MinCapacity, MaxCapacity)
	}
	return nil
}

// New returns a frame of capacity n with markers set and a zero payload.
func New(n int) (*Frame, error) {
	if err := ValidCapacity(n); err != nil {
		return nil, err
	}
	f := &Frame{buf: make([]byte, n)}
	f.buf[0] = StartMarker
	f.buf[n-1] = EndMarker
	return f, nil
}

// FromPayload returns a frame of capacity n whose payload region starts with
// payload. The payload may use the checksum slot, so it can hold up to n-2
// bytes.
func FromPayload(n int, payload []byte) (*Frame, error) {
	f, err := New(n)
	if err != nil {
		return nil, err
	}
	if len(payload) > f.PayloadLen() {
		return nil, fmt.Errorf("%w: payload %d bytes, frame holds %d", ErrSizeMismatch, len(payload), f.PayloadLen())
	}
	copy(f.buf[1:], payload)
	return f, nil
}

// Capacity returns N.
func (f *Frame) Capacity() int { return len(f.buf) }

// PayloadLen returns the number of bytes between the markers.
func (f *Frame) PayloadLen() int { return len(f.buf) - 2 }

// Buffer returns the underlying N bytes. The slice aliases the frame and must
// not be modified; use Bytes for an owned copy.
func (f *Frame) Buffer() []byte { return f.buf }

// Bytes returns a copy of the frame contents.
func (f *Frame) Bytes() []byte {
	out := make([]byte, len(f.buf))
	copy(out, f.buf)
	return out
}

// Payload returns a copy of bytes 1..N-2.
func (f *Frame) Payload() []byte {
	out := make([]byte, f.PayloadLen())
	copy(out, f.buf[1:len(f.buf)-1])
	return out
}

// CopyFrom overwrites the whole frame with src. Nothing is written unless
// len(src) equals the frame capacity.
func (f *Frame) CopyFrom(src []byte) error {
	if len(src) != len(f.buf) {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, len(src), len(f.buf))
	}
	copy(f.buf, src)
	return nil
}

// Clone returns an independent copy of f.
func (f *Frame) Clone() *Frame {
	return &Frame{buf: f.Bytes()}
}

// Clear zeroes the payload and restores the markers.
func (f *Frame) Clear() {
	clear(f.buf)
	f.buf[0] = StartMarker
	f.buf[len(f.buf)-1] = EndMarker
}

// Valid reports whether the frame carries both boundary markers.
func (f *Frame) Valid() bool { return HasMarkers(f.buf) }

// Equal reports whether f and other hold the same bytes.
func (f *Frame) Equal(other *Frame) bool {
	if f == nil || other == nil {
		return f == other
	}
	if len(f.buf) != len(other.buf) {
		return false
	}
	for i := range f.buf {
		if f.buf[i] != other.buf[i] {
			return false
		}
	}
	return true
}

func (f *Frame) String() string {
	return hex.EncodeToString(f.buf)
}

// HasMarkers reports whether window starts with StartMarker and ends with
// EndMarker. Interior bytes are not inspected.
func HasMarkers(window []byte) bool {
	n := len(window)
	return n >= 2 && window[0] == StartMarker && window[n-1] == EndMarker
}
