// Package transporttest provides a scripted Transporter for tests.
package transporttest

import (
	"bytes"
	"errors"
	"sync"

	"code.hybscloud.com/iox"

	"github.com/banshee-data/packetlink/internal/transport"
)

// ErrScripted is the default error used by scripted faults.
var ErrScripted = errors.New("transporttest: scripted fault")

// ReadResult is one scripted Read outcome. Data is copied into the caller's
// buffer; with a non-nil Err any tail that does not fit is lost.
type ReadResult struct {
	Data []byte
	Err  error
}

// WriteResult is one scripted Write outcome.
type WriteResult struct {
	N   int
	Err error
}

// Script is a Transporter whose reads and writes are played back from
// queues. Once the read queue is empty, Read reports iox.ErrWouldBlock.
// Once the write queue is empty, writes succeed in full.
type Script struct {
	mu sync.Mutex

	reads  []ReadResult
	writes []WriteResult

	open    bool
	OpenErr error

	Written    bytes.Buffer
	ReadCalls  int
	WriteCalls int
	OpenCalls  int
	CloseCalls int
}

var _ transport.Transporter = (*Script)(nil)

// New returns an open Script.
func New() *Script {
	return &Script{open: true}
}

// QueueRead appends one read returning data.
func (s *Script) QueueRead(data ...byte) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads = append(s.reads, ReadResult{Data: append([]byte(nil), data...)})
	return s
}

// QueueReadErr appends one failing read.
func (s *Script) QueueReadErr(err error) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads = append(s.reads, ReadResult{Err: err})
	return s
}

// QueueReadDataErr appends one read returning data together with err.
func (s *Script) QueueReadDataErr(err error, data ...byte) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads = append(s.reads, ReadResult{Data: append([]byte(nil), data...), Err: err})
	return s
}

// QueueWrite appends one write outcome.
func (s *Script) QueueWrite(n int, err error) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, WriteResult{N: n, Err: err})
	return s
}

// Pending returns the number of queued reads not yet consumed.
func (s *Script) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reads)
}

func (s *Script) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ReadCalls++
	if len(s.reads) == 0 {
		return 0, iox.ErrWouldBlock
	}
	r := s.reads[0]
	s.reads = s.reads[1:]
	if r.Err != nil {
		return copy(p, r.Data), r.Err
	}
	n := copy(p, r.Data)
	if n < len(r.Data) {
		// keep the tail for the next read
		s.reads = append([]ReadResult{{Data: r.Data[n:]}}, s.reads...)
	}
	return n, nil
}

func (s *Script) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.WriteCalls++
	if len(s.writes) == 0 {
		return s.Written.Write(p)
	}
	w := s.writes[0]
	s.writes = s.writes[1:]
	n := min(max(w.N, 0), len(p))
	s.Written.Write(p[:n])
	return n, w.Err
}

func (s *Script) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OpenCalls++
	if s.OpenErr != nil {
		return s.OpenErr
	}
	s.open = true
	return nil
}

func (s *Script) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	s.open = false
	return nil
}

func (s *Script) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}
