// Package transport defines the raw byte I/O capability driven by the framer.
//
// A Transporter is opened and closed by its owner; the framer only ever asks
// it to reconnect after a failed read or write.
//
// Read semantics:
//   - n > 0, err == nil: n bytes were read.
//   - n == 0, err is iox.ErrWouldBlock: no data is available yet. This is not
//     a fault and leaves the link untouched.
//   - any other error, or n == 0 with a nil error: transport fault.
package transport

import (
	"errors"
	"fmt"
	"io"

	"code.hybscloud.com/iox"
)

var ErrNotOpen = errors.New("transport: not open")

// Transporter is the raw byte link to the embedded controller.
type Transporter interface {
	io.ReadWriter
	Open() error
	Close() error
	IsOpen() bool
}

// Reconnector restores a Transporter after a failed operation. One call is one
// best-effort attempt.
type Reconnector interface {
	Reconnect(Transporter) error
}

// ReconnectFunc adapts a function to Reconnector.
type ReconnectFunc func(Transporter) error

func (f ReconnectFunc) Reconnect(t Transporter) error { return f(t) }

// CloseOpen closes then reopens the transporter. A close failure does not
// prevent the open attempt.
var CloseOpen Reconnector = ReconnectFunc(func(t Transporter) error {
	closeErr := t.Close()
	if err := t.Open(); err != nil {
		return fmt.Errorf("reopen failed: %w", errors.Join(err, closeErr))
	}
	return nil
})

// NoReconnect leaves the transporter as it is.
var NoReconnect Reconnector = ReconnectFunc(func(Transporter) error { return nil })

// IsNoData reports whether a read result means "nothing available yet".
func IsNoData(n int, err error) bool {
	return n == 0 && errors.Is(err, iox.ErrWouldBlock)
}
