// Package devlink provides a synthetic Transporter for running the daemon
// without hardware. It emits counter frames on a ticker, delivers them in
// random-sized chunks with periodic line noise, and echoes every write back
// to the reader.
package devlink

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"code.hybscloud.com/iox"

	"github.com/banshee-data/packetlink/internal/monitoring"
	"github.com/banshee-data/packetlink/internal/packet"
	"github.com/banshee-data/packetlink/internal/timeutil"
	"github.com/banshee-data/packetlink/internal/transport"
)

// CounterIndex is the payload offset of the little-endian uint32 counter.
const CounterIndex = 1

// MinCapacity is the smallest frame that holds the counter and a checksum.
const MinCapacity = 8

// noise is injected ahead of every JunkEvery'th frame. The 0xFF is a false
// start marker.
var noise = []byte{0x00, 0xFF, 0x42}

// Link is a loopback Transporter. It starts closed.
type Link struct {
	capacity    int
	period      time.Duration
	readTimeout time.Duration
	junkEvery   int
	checksum    bool
	clock       timeutil.Clock

	mu      sync.Mutex
	rng     *rand.Rand
	open    bool
	pending []byte
	counter uint32
	stop    chan struct{}
	wg      sync.WaitGroup
	notify  chan struct{}
}

var _ transport.Transporter = (*Link)(nil)

type Option func(*Link)

// WithPeriod sets the interval between generated frames. Zero disables the
// generator; the link then only echoes writes.
func WithPeriod(d time.Duration) Option { return func(l *Link) { l.period = d } }

// WithReadTimeout bounds how long Read waits for data before reporting
// iox.ErrWouldBlock.
func WithReadTimeout(d time.Duration) Option { return func(l *Link) { l.readTimeout = d } }

// WithJunkEvery prefixes every n'th frame with noise bytes. Zero disables it.
func WithJunkEvery(n int) Option { return func(l *Link) { l.junkEvery = n } }

// WithSeed makes chunk sizes reproducible.
func WithSeed(seed uint64) Option {
	return func(l *Link) { l.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithChecksum seals generated frames with packet.BCC.
func WithChecksum(seal bool) Option { return func(l *Link) { l.checksum = seal } }

// WithClock drives the generator from c instead of the wall clock.
func WithClock(c timeutil.Clock) Option { return func(l *Link) { l.clock = c } }

func New(capacity int, opts ...Option) (*Link, error) {
	if err := packet.ValidCapacity(capacity); err != nil {
		return nil, err
	}
	if capacity < MinCapacity {
		return nil, fmt.Errorf("%w: devlink needs at least %d bytes, got %d", packet.ErrCapacity, MinCapacity, capacity)
	}
	l := &Link{
		capacity:    capacity,
		period:      500 * time.Millisecond,
		readTimeout: 100 * time.Millisecond,
		junkEvery:   7,
		clock:       timeutil.RealClock{},
		rng:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		notify:      make(chan struct{}, 1),
	}
	for _, fn := range opts {
		fn(l)
	}
	return l, nil
}

// Open starts the generator. Opening an open link is a no-op.
func (l *Link) Open() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.open {
		return nil
	}
	l.open = true
	l.pending = l.pending[:0]
	if l.period > 0 {
		l.stop = make(chan struct{})
		l.wg.Add(1)
		go l.generate(l.clock.NewTicker(l.period), l.stop)
	}
	monitoring.Logf("devlink: opened synthetic %d-byte link (period %s)", l.capacity, l.period)
	return nil
}

// Close stops the generator and drops undelivered bytes.
func (l *Link) Close() error {
	l.mu.Lock()
	if !l.open {
		l.mu.Unlock()
		return nil
	}
	l.open = false
	l.pending = nil
	stop := l.stop
	l.stop = nil
	l.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	l.wg.Wait()
	l.wake()
	return nil
}

func (l *Link) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}

// Read returns a random-sized prefix of the pending bytes, waiting up to the
// read timeout for some to arrive.
func (l *Link) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	deadline := time.NewTimer(l.readTimeout)
	defer deadline.Stop()
	for {
		l.mu.Lock()
		if !l.open {
			l.mu.Unlock()
			return 0, transport.ErrNotOpen
		}
		if len(l.pending) > 0 {
			k := min(len(p), len(l.pending))
			k = 1 + l.rng.IntN(k)
			n := copy(p, l.pending[:k])
			l.pending = l.pending[n:]
			l.mu.Unlock()
			return n, nil
		}
		l.mu.Unlock()

		select {
		case <-l.notify:
		case <-deadline.C:
			return 0, iox.ErrWouldBlock
		}
	}
}

// Write loops p back to the reader.
func (l *Link) Write(p []byte) (int, error) {
	l.mu.Lock()
	if !l.open {
		l.mu.Unlock()
		return 0, transport.ErrNotOpen
	}
	l.pending = append(l.pending, p...)
	l.mu.Unlock()
	l.wake()
	return len(p), nil
}

// wake never blocks, so it may be called with l.mu held.
func (l *Link) wake() {
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

func (l *Link) generate(ticker timeutil.Ticker, stop chan struct{}) {
	defer l.wg.Done()
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			l.emit()
		}
	}
}

// emit queues the next counter frame.
func (l *Link) emit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return
	}
	l.counter++
	f, err := packet.New(l.capacity)
	if err != nil {
		return
	}
	if err := packet.Store(f, CounterIndex, l.counter); err != nil {
		return
	}
	if l.checksum {
		f.SealChecksum()
	}
	if l.junkEvery > 0 && l.counter%uint32(l.junkEvery) == 0 {
		l.pending = append(l.pending, noise...)
	}
	l.pending = append(l.pending, f.Buffer()...)
	l.wake()
}

// Counter returns the number of frames generated so far.
func (l *Link) Counter() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counter
}
