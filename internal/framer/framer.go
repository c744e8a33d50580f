// Package framer turns the unstructured byte stream of a Transporter into
// fixed-length frames and back.
//
// Reads that arrive frame-aligned are returned directly. Anything else is
// accumulated in a buffer of twice the frame capacity and scanned for the
// leftmost window that starts with the start marker and ends with the end
// marker. The scan is greedy: a payload that happens to contain the marker
// pair at the right distance can be mistaken for a frame boundary. Enabling
// a checksum validator narrows that window.
//
// A Framer is not safe for concurrent use.
package framer

import (
	"fmt"
	"io"

	"github.com/banshee-data/packetlink/internal/monitoring"
	"github.com/banshee-data/packetlink/internal/packet"
	"github.com/banshee-data/packetlink/internal/transport"
)

// Validator decides whether an N-byte window is a frame.
type Validator func(window []byte) bool

type options struct {
	reconnect transport.Reconnector
	validate  Validator
	logf      func(format string, v ...interface{})
}

// Option configures a Framer.
type Option func(*options)

// WithReconnector replaces the close+open reconnect performed after a failed
// read or write.
func WithReconnector(r transport.Reconnector) Option {
	return func(o *options) {
		if r != nil {
			o.reconnect = r
		}
	}
}

// WithValidator replaces the marker-only frame check.
func WithValidator(v Validator) Option {
	return func(o *options) {
		if v != nil {
			o.validate = v
		}
	}
}

// WithChecksum enables the XOR checksum check on received frames.
func WithChecksum() Option {
	return WithValidator(packet.XORChecksum)
}

// WithLogf sets the diagnostic logger. Nil mutes it.
func WithLogf(logf func(format string, v ...interface{})) Option {
	return func(o *options) {
		if logf == nil {
			logf = func(string, ...interface{}) {}
		}
		o.logf = logf
	}
}

// Framer drives one Transporter. It keeps partial input across calls for the
// life of the connection.
type Framer struct {
	t         transport.Transporter
	reconnect transport.Reconnector
	validate  Validator
	logf      func(format string, v ...interface{})

	capacity int
	scratch  []byte
	acc      accumulator

	sendStatus SendStatus
	recvStatus RecvStatus
	stats      Stats
}

// New returns a Framer for frames of the given capacity. It fails if t is nil
// or the capacity is not supported.
func New(t transport.Transporter, capacity int, opts ...Option) (*Framer, error) {
	if t == nil {
		return nil, ErrNilTransporter
	}
	if err := packet.ValidCapacity(capacity); err != nil {
		return nil, err
	}
	o := options{
		reconnect: transport.CloseOpen,
		validate:  packet.HasMarkers,
		logf:      monitoring.Logf,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return &Framer{
		t:         t,
		reconnect: o.reconnect,
		validate:  o.validate,
		logf:      o.logf,
		capacity:  capacity,
		scratch:   make([]byte, capacity),
		acc:       newAccumulator(2 * capacity),
	}, nil
}

// Capacity returns the frame size N.
func (f *Framer) Capacity() int { return f.capacity }

// IsOpen reports whether the underlying transporter is open.
func (f *Framer) IsOpen() bool { return f.t.IsOpen() }

// Send writes the frame. It succeeds only if exactly Capacity bytes were
// written; otherwise the transporter is reconnected once and ErrSendFailed is
// returned. There is no retry.
func (f *Framer) Send(frame *packet.Frame) error {
	if frame == nil || frame.Capacity() != f.capacity {
		f.sendStatus = SendFailed
		f.stats.SendFailures++
		return fmt.Errorf("%w: frame does not match capacity %d", packet.ErrSizeMismatch, f.capacity)
	}
	n, err := f.t.Write(frame.Buffer())
	if err == nil && n == f.capacity {
		f.sendStatus = SendOK
		f.stats.FramesSent++
		return nil
	}
	f.sendStatus = SendFailed
	f.stats.SendFailures++
	f.reconnectAfter("send", err)
	if err != nil {
		return fmt.Errorf("%w: wrote %d of %d bytes: %w", ErrSendFailed, n, f.capacity, err)
	}
	return fmt.Errorf("%w: wrote %d of %d bytes", ErrSendFailed, n, f.capacity)
}

// Receive reads once from the transporter and returns the next frame, if one
// is complete. The error is ErrNoData, ErrIncomplete or wraps ErrTransport
// when no frame is returned.
func (f *Framer) Receive() (*packet.Frame, error) {
	frame, err := packet.New(f.capacity)
	if err != nil {
		return nil, err
	}
	if err := f.ReceiveInto(frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// ReceiveInto is Receive writing into dst, which must have the Framer's
// capacity. dst is only modified when a frame is returned. A read that
// returns bytes together with an error is a fault and its bytes are
// discarded.
func (f *Framer) ReceiveInto(dst *packet.Frame) error {
	if dst == nil || dst.Capacity() != f.capacity {
		return fmt.Errorf("%w: destination does not match capacity %d", packet.ErrSizeMismatch, f.capacity)
	}

	n, err := f.t.Read(f.scratch)
	if transport.IsNoData(n, err) {
		f.recvStatus = RecvNoData
		return ErrNoData
	}
	if err != nil || n <= 0 || n > f.capacity {
		if err == nil {
			err = fmt.Errorf("read returned %d bytes: %w", n, io.ErrNoProgress)
		}
		f.recvStatus = RecvTransportFailure
		f.stats.TransportFaults++
		f.reconnectAfter("receive", err)
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	// aligned read, the steady state
	if n == f.capacity && f.validate(f.scratch) {
		f.deliver(dst, f.scratch)
		f.stats.FastPath++
		return nil
	}

	overflow := false
	if !f.acc.Fits(n) {
		dropped := f.acc.Reset()
		f.stats.Overflows++
		f.stats.DiscardedBytes += uint64(dropped)
		overflow = true
		f.logf("framer: accumulation buffer overflow, discarded %d bytes", dropped)
	}
	f.acc.Append(f.scratch[:n])

	if i, ok := f.scan(); ok {
		f.deliver(dst, f.acc.Bytes()[i:i+f.capacity])
		f.acc.ShiftLeft(i + f.capacity)
		f.stats.Resyncs++
		if i > 0 {
			f.stats.DiscardedBytes += uint64(i)
			f.logf("framer: resynchronized after skipping %d bytes", i)
		}
		return nil
	}

	if overflow {
		f.recvStatus = RecvOverflow
	} else {
		f.recvStatus = RecvIncomplete
	}
	return ErrIncomplete
}

// scan returns the offset of the leftmost valid window in the accumulation
// buffer.
func (f *Framer) scan() (int, bool) {
	buf := f.acc.Bytes()
	for i := 0; i+f.capacity <= len(buf); i++ {
		if f.validate(buf[i : i+f.capacity]) {
			return i, true
		}
	}
	return 0, false
}

func (f *Framer) deliver(dst *packet.Frame, window []byte) {
	// window is exactly capacity bytes, checked by every caller
	_ = dst.CopyFrom(window)
	f.recvStatus = RecvOK
	f.stats.FramesReceived++
}

func (f *Framer) reconnectAfter(op string, cause error) {
	f.logf("framer: %s failed (%v), reconnecting", op, cause)
	if err := f.reconnect.Reconnect(f.t); err != nil {
		f.stats.ReconnectErrors++
		f.logf("framer: reconnect after %s failed: %v", op, err)
	}
}

// SendStatus returns the outcome of the last Send.
func (f *Framer) SendStatus() SendStatus { return f.sendStatus }

// RecvStatus returns the outcome of the last Receive.
func (f *Framer) RecvStatus() RecvStatus { return f.recvStatus }

// Buffered returns the number of unconsumed bytes carried to the next call.
func (f *Framer) Buffered() int { return f.acc.Len() }

// Mode reports Resyncing while unconsumed bytes are buffered.
func (f *Framer) Mode() Mode {
	if f.acc.Len() > 0 {
		return Resyncing
	}
	return Synced
}

// Stats returns a snapshot of the counters.
func (f *Framer) Stats() Stats { return f.stats }
