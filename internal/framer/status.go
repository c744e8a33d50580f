package framer

import "errors"

var (
	ErrNilTransporter = errors.New("framer: nil transporter")
	ErrSendFailed     = errors.New("framer: send failed")
	ErrTransport      = errors.New("framer: transport failure")
	ErrIncomplete     = errors.New("framer: incomplete or desynchronized frame")
	ErrNoData         = errors.New("framer: no data available")
)

// SendStatus is the outcome of the most recent Send.
type SendStatus int

const (
	SendIdle SendStatus = iota
	SendOK
	SendFailed
)

func (s SendStatus) String() string {
	switch s {
	case SendIdle:
		return "idle"
	case SendOK:
		return "ok"
	case SendFailed:
		return "send failure"
	default:
		return "unknown"
	}
}

// RecvStatus is the outcome of the most recent Receive.
type RecvStatus int

const (
	RecvIdle RecvStatus = iota
	RecvOK
	// RecvNoData means the transporter had nothing to read.
	RecvNoData
	// RecvIncomplete means bytes were buffered but no valid frame was found.
	RecvIncomplete
	// RecvOverflow is RecvIncomplete on a call that discarded the
	// accumulation buffer to stay within bounds.
	RecvOverflow
	RecvTransportFailure
)

func (s RecvStatus) String() string {
	switch s {
	case RecvIdle:
		return "idle"
	case RecvOK:
		return "ok"
	case RecvNoData:
		return "no data"
	case RecvIncomplete:
		return "incomplete/desynchronized"
	case RecvOverflow:
		return "overflow"
	case RecvTransportFailure:
		return "transport failure"
	default:
		return "unknown"
	}
}

// Mode is derived from the accumulation buffer: an empty buffer is Synced.
type Mode int

const (
	Synced Mode = iota
	Resyncing
)

func (m Mode) String() string {
	if m == Resyncing {
		return "resyncing"
	}
	return "synced"
}

// Stats are cumulative counters for one Framer.
type Stats struct {
	FramesSent      uint64 `json:"frames_sent"`
	FramesReceived  uint64 `json:"frames_received"`
	FastPath        uint64 `json:"fast_path"`
	Resyncs         uint64 `json:"resyncs"`
	Overflows       uint64 `json:"overflows"`
	DiscardedBytes  uint64 `json:"discarded_bytes"`
	TransportFaults uint64 `json:"transport_faults"`
	SendFailures    uint64 `json:"send_failures"`
	ReconnectErrors uint64 `json:"reconnect_errors"`
}
