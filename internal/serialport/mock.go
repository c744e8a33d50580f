package serialport

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"go.bug.st/serial"
)

// ErrPortClosed is returned by TestableSerialPort after Close.
var ErrPortClosed = errors.New("serial port closed")

// TestableSerialPort implements TimeoutSerialPorter with configurable
// behaviour for testing. An empty read buffer behaves like an elapsed read
// timeout and returns (0, nil).
type TestableSerialPort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// MaxRead caps the bytes returned per Read, simulating a UART that
	// delivers a frame in pieces. Zero means no cap.
	MaxRead int

	// ShortWrite, when positive, caps the bytes accepted by the next Write.
	ShortWrite int

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by the next Write call if set
	WriteError error

	// CloseError is returned by Close if set
	CloseError error

	Closed      bool
	ReadCalls   int
	WriteCalls  int
	ReadTimeout time.Duration
}

// NewTestableSerialPort creates a new TestableSerialPort for testing.
func NewTestableSerialPort() *TestableSerialPort {
	return &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
}

func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadCalls++
	if t.Closed {
		return 0, ErrPortClosed
	}
	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}
	if t.ReadBuffer.Len() == 0 {
		return 0, nil
	}
	if t.MaxRead > 0 && len(p) > t.MaxRead {
		p = p[:t.MaxRead]
	}
	return t.ReadBuffer.Read(p)
}

func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.WriteCalls++
	if t.Closed {
		return 0, ErrPortClosed
	}
	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}
	if t.ShortWrite > 0 && t.ShortWrite < len(p) {
		p = p[:t.ShortWrite]
		t.ShortWrite = 0
	}
	return t.WriteBuffer.Write(p)
}

func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = true
	return t.CloseError
}

func (t *TestableSerialPort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadTimeout = timeout
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadBuffer.Write(data)
}

// GetWrittenData returns a copy of all data written to the port.
func (t *TestableSerialPort) GetWrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return bytes.Clone(t.WriteBuffer.Bytes())
}

// MockOpener hands out devices from a list, one per Open, and records the
// calls. When the list is exhausted the last device is reused.
type MockOpener struct {
	mu sync.Mutex

	Devices []*TestableSerialPort
	// Error is returned by Open if set
	Error error
	Calls []MockOpenCall
}

// MockOpenCall records details of an Open call.
type MockOpenCall struct {
	Path string
	Mode *serial.Mode
}

// Open implements Opener.
func (m *MockOpener) Open(path string, mode *serial.Mode) (SerialPorter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockOpenCall{Path: path, Mode: mode})
	if m.Error != nil {
		return nil, m.Error
	}
	if len(m.Devices) == 0 {
		return nil, errors.New("mock opener: no device")
	}
	dev := m.Devices[0]
	if len(m.Devices) > 1 {
		m.Devices = m.Devices[1:]
	}
	return dev, nil
}

// OpenCount returns the number of Open calls.
func (m *MockOpener) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
