// Package serialport implements the link Transporter over a serial line.
//
// A read that returns no bytes because the read timeout elapsed is reported
// as iox.ErrWouldBlock, so the framer treats it as "no data yet" rather than a
// fault. Without a read timeout reads block until data arrives.
package serialport

import (
	"fmt"
	"io"
	"sync"
	"time"

	"code.hybscloud.com/iox"
	"go.bug.st/serial"

	"github.com/banshee-data/packetlink/internal/transport"
)

// SerialPorter is the minimal device surface used by Port.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSerialPorter is a SerialPorter with a configurable read timeout.
// serial.Port implements it.
type TimeoutSerialPorter interface {
	SerialPorter
	SetReadTimeout(timeout time.Duration) error
}

// Opener opens the device at path.
type Opener func(path string, mode *serial.Mode) (SerialPorter, error)

// OpenSerial opens a real serial device.
func OpenSerial(path string, mode *serial.Mode) (SerialPorter, error) {
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// Port is a reopenable serial Transporter. Open and Close are idempotent.
type Port struct {
	path        string
	opts        PortOptions
	mode        *serial.Mode
	readTimeout time.Duration
	opener      Opener

	mu  sync.Mutex
	dev SerialPorter
}

var _ transport.Transporter = (*Port)(nil)

// Option configures a Port.
type Option func(*Port)

// WithReadTimeout bounds each Read. Zero blocks until data arrives.
func WithReadTimeout(d time.Duration) Option {
	return func(p *Port) { p.readTimeout = d }
}

// WithOpener replaces serial.Open, for tests and alternate devices.
func WithOpener(o Opener) Option {
	return func(p *Port) {
		if o != nil {
			p.opener = o
		}
	}
}

// New validates the options and returns a closed Port.
func New(path string, opts PortOptions, options ...Option) (*Port, error) {
	if path == "" {
		return nil, fmt.Errorf("serialport: empty device path")
	}
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, fmt.Errorf("serialport: %w", err)
	}
	normalised, _ := opts.Normalise()
	p := &Port{
		path:   path,
		opts:   normalised,
		mode:   mode,
		opener: OpenSerial,
	}
	for _, fn := range options {
		fn(p)
	}
	return p, nil
}

// Path returns the device path.
func (p *Port) Path() string { return p.path }

// Options returns the normalised line options.
func (p *Port) Options() PortOptions { return p.opts }

func (p *Port) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dev != nil {
		return nil
	}
	dev, err := p.opener(p.path, p.mode)
	if err != nil {
		return fmt.Errorf("serialport: open %s: %w", p.path, err)
	}
	if p.readTimeout > 0 {
		tp, ok := dev.(TimeoutSerialPorter)
		if !ok {
			dev.Close()
			return fmt.Errorf("serialport: %s does not support read timeouts", p.path)
		}
		if err := tp.SetReadTimeout(p.readTimeout); err != nil {
			dev.Close()
			return fmt.Errorf("serialport: set read timeout on %s: %w", p.path, err)
		}
	}
	p.dev = dev
	return nil
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dev == nil {
		return nil
	}
	err := p.dev.Close()
	p.dev = nil
	return err
}

func (p *Port) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dev != nil
}

func (p *Port) device() (SerialPorter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dev == nil {
		return nil, transport.ErrNotOpen
	}
	return p.dev, nil
}

// Read reads up to len(b) bytes. It does not hold the lock while blocked so
// Close can interrupt a pending read.
func (p *Port) Read(b []byte) (int, error) {
	dev, err := p.device()
	if err != nil {
		return 0, err
	}
	n, err := dev.Read(b)
	if n == 0 && err == nil && p.readTimeout > 0 {
		return 0, iox.ErrWouldBlock
	}
	return n, err
}

func (p *Port) Write(b []byte) (int, error) {
	dev, err := p.device()
	if err != nil {
		return 0, err
	}
	return dev.Write(b)
}

func (p *Port) String() string {
	return fmt.Sprintf("%s (%s)", p.path, p.opts)
}
