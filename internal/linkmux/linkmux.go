// Package linkmux shares one framed link between many consumers. A single
// Monitor loop receives frames and fans them out to subscribers; any number
// of goroutines may send frames.
package linkmux

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/packetlink/internal/framer"
	"github.com/banshee-data/packetlink/internal/monitoring"
	"github.com/banshee-data/packetlink/internal/packet"
	"github.com/banshee-data/packetlink/internal/timeutil"
	"github.com/banshee-data/packetlink/internal/transport"
)

// ErrClosed is returned by SendFrame after Close.
var ErrClosed = errors.New("linkmux: closed")

const (
	// subscriberBuffer frames are queued per subscriber before new frames
	// are dropped for that subscriber.
	subscriberBuffer = 16

	defaultIdleDelay  = 5 * time.Millisecond
	defaultFaultDelay = 500 * time.Millisecond
)

// LinkMuxInterface is implemented by Mux and DisabledMux.
type LinkMuxInterface interface {
	// Subscribe creates a channel receiving every frame read from the link.
	// The ID identifies the channel when unsubscribing.
	Subscribe() (string, chan *packet.Frame)
	// Unsubscribe closes and removes a subscriber channel.
	Unsubscribe(string)
	// SendFrame writes one frame to the link.
	SendFrame(*packet.Frame) error
	// Monitor receives frames until the context is done.
	Monitor(context.Context) error
	// Close closes all subscriber channels and the transporter.
	Close() error
	// Status returns a snapshot of the link state.
	Status() Status
	// Capacity returns the frame size of the link.
	Capacity() int
	// AttachAdminRoutes mounts debugging endpoints under /debug/.
	AttachAdminRoutes(*http.ServeMux)
}

// Status is a point-in-time view of the link.
type Status struct {
	Capacity   int          `json:"capacity"`
	Open       bool         `json:"open"`
	Mode       string       `json:"mode"`
	SendStatus string       `json:"send_status"`
	RecvStatus string       `json:"recv_status"`
	Buffered   int          `json:"buffered"`
	Stats      framer.Stats `json:"stats"`
	Rate       RateSummary  `json:"rate"`
	Dropped    uint64       `json:"dropped"`
}

// Mux owns a Framer and serialises access to it.
type Mux struct {
	t      transport.Transporter
	framer *framer.Framer

	// ioMu guards the framer; a Send waits for an in-flight Receive, which
	// is bounded by the transporter's read timeout.
	ioMu sync.Mutex

	subscribers  map[string]chan *packet.Frame
	subscriberMu sync.Mutex
	dropped      uint64

	closing   bool
	closingMu sync.Mutex

	rate  *rateTracker
	clock timeutil.Clock

	checksum   bool
	idleDelay  time.Duration
	faultDelay time.Duration
	onSent     func(*packet.Frame)
	logf       func(format string, v ...interface{})
}

// Option configures a Mux.
type Option func(*Mux)

// WithIdleDelay sets the pause after a read that returned no data.
func WithIdleDelay(d time.Duration) Option {
	return func(m *Mux) { m.idleDelay = d }
}

// WithFaultDelay sets the pause after a transport fault before reading again.
func WithFaultDelay(d time.Duration) Option {
	return func(m *Mux) { m.faultDelay = d }
}

// WithSentHook is called with every frame written successfully.
func WithSentHook(fn func(*packet.Frame)) Option {
	return func(m *Mux) { m.onSent = fn }
}

// WithSealChecksum seals the checksum slot of frames built by the admin
// routes before sending.
func WithSealChecksum(seal bool) Option {
	return func(m *Mux) { m.checksum = seal }
}

// WithClock timestamps received frames for the rate summary.
func WithClock(c timeutil.Clock) Option {
	return func(m *Mux) { m.clock = c }
}

// New wraps f, which must drive t. The Mux takes over closing t.
func New(t transport.Transporter, f *framer.Framer, opts ...Option) *Mux {
	m := &Mux{
		t:           t,
		framer:      f,
		subscribers: make(map[string]chan *packet.Frame),
		rate:        newRateTracker(rateWindow),
		clock:       timeutil.RealClock{},
		idleDelay:   defaultIdleDelay,
		faultDelay:  defaultFaultDelay,
		logf:        monitoring.Prefixed("linkmux: "),
	}
	for _, fn := range opts {
		fn(m)
	}
	return m
}

func (m *Mux) Capacity() int { return m.framer.Capacity() }

func (m *Mux) Subscribe() (string, chan *packet.Frame) {
	id := uuid.NewString()
	ch := make(chan *packet.Frame, subscriberBuffer)
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if m.isClosing() {
		close(ch)
		return id, ch
	}
	m.subscribers[id] = ch
	return id, ch
}

func (m *Mux) Unsubscribe(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// SendFrame writes f through the framer.
func (m *Mux) SendFrame(f *packet.Frame) error {
	if m.isClosing() {
		return ErrClosed
	}
	m.ioMu.Lock()
	if m.isClosing() {
		m.ioMu.Unlock()
		return ErrClosed
	}
	err := m.framer.Send(f)
	m.ioMu.Unlock()
	if err != nil {
		return err
	}
	if m.onSent != nil {
		m.onSent(f)
	}
	return nil
}

// Monitor receives frames and delivers them to subscribers until ctx is done
// or the Mux is closed.
func (m *Mux) Monitor(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if m.isClosing() {
			return nil
		}

		m.ioMu.Lock()
		f, err := m.framer.Receive()
		m.ioMu.Unlock()

		switch {
		case err == nil:
			m.rate.Observe(m.clock.Now())
			m.publish(f)
		case errors.Is(err, framer.ErrIncomplete):
			// more bytes are needed, read again straight away
		case errors.Is(err, framer.ErrNoData):
			if !sleepCtx(ctx, m.idleDelay) {
				return ctx.Err()
			}
		case errors.Is(err, framer.ErrTransport):
			m.logf("%v", err)
			if !sleepCtx(ctx, m.faultDelay) {
				return ctx.Err()
			}
		default:
			return err
		}
	}
}

func (m *Mux) publish(f *packet.Frame) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	for _, ch := range m.subscribers {
		// each subscriber gets its own copy so consumers cannot race
		select {
		case ch <- f.Clone():
		default:
			m.dropped++
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (m *Mux) isClosing() bool {
	m.closingMu.Lock()
	defer m.closingMu.Unlock()
	return m.closing
}

func (m *Mux) Close() error {
	m.closingMu.Lock()
	if m.closing {
		m.closingMu.Unlock()
		return nil
	}
	m.closing = true
	m.closingMu.Unlock()

	m.subscriberMu.Lock()
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	m.subscriberMu.Unlock()

	// Closing first unblocks a pending read. The failed operation may then
	// reconnect, so close again once it has released the framer.
	err := m.t.Close()
	m.ioMu.Lock()
	defer m.ioMu.Unlock()
	if m.t.IsOpen() {
		err = errors.Join(err, m.t.Close())
	}
	return err
}

// Status returns the framer state together with the receive rate.
func (m *Mux) Status() Status {
	m.ioMu.Lock()
	s := Status{
		Capacity:   m.framer.Capacity(),
		Open:       m.framer.IsOpen(),
		Mode:       m.framer.Mode().String(),
		SendStatus: m.framer.SendStatus().String(),
		RecvStatus: m.framer.RecvStatus().String(),
		Buffered:   m.framer.Buffered(),
		Stats:      m.framer.Stats(),
	}
	m.ioMu.Unlock()

	m.subscriberMu.Lock()
	s.Dropped = m.dropped
	m.subscriberMu.Unlock()

	s.Rate = m.rate.Summary()
	return s
}
