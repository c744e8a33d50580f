package framer

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/packetlink/internal/packet"
	"github.com/banshee-data/packetlink/internal/transport"
	"github.com/banshee-data/packetlink/internal/transport/transporttest"
)

var frame8 = []byte{0xFF, 1, 2, 3, 4, 5, 6, 0x0D}

func newTestFramer(t *testing.T, s *transporttest.Script, capacity int, opts ...Option) *Framer {
	t.Helper()
	opts = append([]Option{WithLogf(t.Logf)}, opts...)
	f, err := New(s, capacity, opts...)
	require.NoError(t, err)
	return f
}

func TestNew_NilTransporter(t *testing.T) {
	f, err := New(nil, 8)
	assert.Nil(t, f)
	assert.ErrorIs(t, err, ErrNilTransporter)
}

func TestNew_BadCapacity(t *testing.T) {
	f, err := New(transporttest.New(), 2)
	assert.Nil(t, f)
	assert.ErrorIs(t, err, packet.ErrCapacity)
}

func TestNew_Defaults(t *testing.T) {
	f := newTestFramer(t, transporttest.New(), packet.Capacity16)
	assert.Equal(t, packet.Capacity16, f.Capacity())
	assert.Equal(t, 2*packet.Capacity16, f.acc.Cap())
	assert.Equal(t, SendIdle, f.SendStatus())
	assert.Equal(t, RecvIdle, f.RecvStatus())
	assert.Equal(t, Synced, f.Mode())
	assert.True(t, f.IsOpen())
}

func TestSend(t *testing.T) {
	s := transporttest.New()
	f := newTestFramer(t, s, 8)
	fr, _ := packet.FromPayload(8, []byte{1, 2, 3, 4, 5, 6})

	require.NoError(t, f.Send(fr))
	assert.Equal(t, frame8, s.Written.Bytes())
	assert.Equal(t, SendOK, f.SendStatus())
	assert.Zero(t, s.CloseCalls)
	assert.Zero(t, s.OpenCalls)
	assert.Equal(t, uint64(1), f.Stats().FramesSent)
}

func TestSend_Failures(t *testing.T) {
	tests := []struct {
		name string
		n    int
		err  error
	}{
		{"partial write", 5, nil},
		{"zero write", 0, nil},
		{"write error", 0, errors.New("EIO")},
		{"partial write with error", 3, io.ErrShortWrite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := transporttest.New().QueueWrite(tt.n, tt.err)
			f := newTestFramer(t, s, 8)
			fr, _ := packet.New(8)

			err := f.Send(fr)
			assert.ErrorIs(t, err, ErrSendFailed)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			}
			assert.Equal(t, SendFailed, f.SendStatus())
			assert.Equal(t, 1, s.CloseCalls, "close issued once")
			assert.Equal(t, 1, s.OpenCalls, "open issued once")
			assert.Equal(t, 1, s.WriteCalls, "no retry")
			assert.Equal(t, uint64(1), f.Stats().SendFailures)
		})
	}
}

func TestSend_ReconnectFailureIsNotFatal(t *testing.T) {
	s := transporttest.New().QueueWrite(0, errors.New("gone"))
	s.OpenErr = errors.New("no device")
	f := newTestFramer(t, s, 8)
	fr, _ := packet.New(8)

	assert.ErrorIs(t, f.Send(fr), ErrSendFailed)
	assert.Equal(t, uint64(1), f.Stats().ReconnectErrors)

	// a later send goes straight to the transporter again
	s.OpenErr = nil
	assert.NoError(t, f.Send(fr))
}

func TestSend_CapacityMismatch(t *testing.T) {
	s := transporttest.New()
	f := newTestFramer(t, s, 8)
	fr, _ := packet.New(16)

	assert.ErrorIs(t, f.Send(fr), packet.ErrSizeMismatch)
	assert.ErrorIs(t, f.Send(nil), packet.ErrSizeMismatch)
	assert.Zero(t, s.WriteCalls)
	assert.Zero(t, s.CloseCalls)
}

func TestSend_CustomReconnector(t *testing.T) {
	s := transporttest.New().QueueWrite(1, nil)
	calls := 0
	f := newTestFramer(t, s, 8, WithReconnector(transport.ReconnectFunc(func(transport.Transporter) error {
		calls++
		return nil
	})))
	fr, _ := packet.New(8)

	assert.Error(t, f.Send(fr))
	assert.Equal(t, 1, calls)
	assert.Zero(t, s.CloseCalls, "default close+open replaced")
}

func TestReceive_AlignedRead(t *testing.T) {
	s := transporttest.New().QueueRead(frame8...)
	f := newTestFramer(t, s, 8)

	fr, err := f.Receive()
	require.NoError(t, err)
	assert.Equal(t, frame8, fr.Bytes())
	assert.Equal(t, RecvOK, f.RecvStatus())
	assert.Zero(t, f.Buffered(), "fast path must not touch the accumulation buffer")
	assert.Equal(t, Synced, f.Mode())
	assert.Equal(t, uint64(1), f.Stats().FastPath)
	assert.Zero(t, f.Stats().Resyncs)
}

func TestReceive_SplitRead(t *testing.T) {
	s := transporttest.New().
		QueueRead(0xFF, 1, 2, 3, 4).
		QueueRead(5, 6, 0x0D)
	f := newTestFramer(t, s, 8)

	fr, err := f.Receive()
	assert.Nil(t, fr)
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, RecvIncomplete, f.RecvStatus())
	assert.Equal(t, 5, f.Buffered())
	assert.Equal(t, Resyncing, f.Mode())

	fr, err = f.Receive()
	require.NoError(t, err)
	assert.Equal(t, frame8, fr.Bytes())
	assert.Zero(t, f.Buffered())
	assert.Equal(t, Synced, f.Mode())
}

func TestReceive_LeadingGarbage(t *testing.T) {
	junk := []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77}
	stream := append(append([]byte(nil), junk...), frame8...)
	// the scripted transporter hands the 15 bytes over in reads of at most 8
	s := transporttest.New().QueueRead(stream...)
	f := newTestFramer(t, s, 8)

	fr, err := f.Receive()
	assert.Nil(t, fr)
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, 8, f.Buffered())

	fr, err = f.Receive()
	require.NoError(t, err)
	assert.Equal(t, frame8, fr.Bytes())
	assert.Zero(t, f.Buffered(), "garbage before the frame is discarded")
	assert.Equal(t, uint64(len(junk)), f.Stats().DiscardedBytes)
	assert.Equal(t, uint64(1), f.Stats().Resyncs)
}

func TestReceive_KeepsTrailingBytes(t *testing.T) {
	// frame then the start of the next one, delivered unaligned
	s := transporttest.New().
		QueueRead(0x00, 0xFF, 1, 2).
		QueueRead(3, 4, 5, 6, 0x0D, 0xFF, 9, 9)
	f := newTestFramer(t, s, 8)

	_, err := f.Receive()
	assert.ErrorIs(t, err, ErrIncomplete)

	fr, err := f.Receive()
	require.NoError(t, err)
	assert.Equal(t, frame8, fr.Bytes())
	assert.Equal(t, []byte{0xFF, 9, 9}, f.acc.Bytes())
	assert.Equal(t, Resyncing, f.Mode())

	s.QueueRead(9, 9, 9, 9, 0x0D)
	fr, err = f.Receive()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 9, 9, 9, 9, 9, 9, 0x0D}, fr.Bytes())
	assert.Zero(t, f.Buffered())
}

func TestReceive_LeftmostWindowWins(t *testing.T) {
	// two candidate windows at offsets 1 and 3; the first one is returned
	s := transporttest.New().
		QueueRead(0x00, 0xFF, 0xFF, 0xFF, 0, 0, 0).
		QueueRead(0, 0x0D, 0x0D, 0x0D)
	f := newTestFramer(t, s, 8)

	_, err := f.Receive()
	assert.ErrorIs(t, err, ErrIncomplete)

	fr, err := f.Receive()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0, 0, 0, 0, 0x0D}, fr.Bytes())
	assert.Equal(t, []byte{0x0D, 0x0D}, f.acc.Bytes())
}

func TestReceive_AlignedReadLeavesBufferAlone(t *testing.T) {
	s := transporttest.New().
		QueueRead(0x01, 0x02, 0x03).
		QueueRead(frame8...)
	f := newTestFramer(t, s, 8)

	_, err := f.Receive()
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, 3, f.Buffered())

	fr, err := f.Receive()
	require.NoError(t, err)
	assert.Equal(t, frame8, fr.Bytes())
	assert.Equal(t, 3, f.Buffered())
	assert.Equal(t, uint64(1), f.Stats().FastPath)
}

func TestReceive_Overflow(t *testing.T) {
	s := transporttest.New()
	f := newTestFramer(t, s, 8)
	junk := []byte{1, 2, 3, 4, 5, 6, 7}

	// 7 + 7 = 14 <= 16 buffered without a frame
	s.QueueRead(junk...).QueueRead(junk...)
	for range 2 {
		_, err := f.Receive()
		assert.ErrorIs(t, err, ErrIncomplete)
		assert.Equal(t, RecvIncomplete, f.RecvStatus())
	}
	assert.Equal(t, 14, f.Buffered())

	// 14 + 7 > 16: the old bytes are dropped before appending
	s.QueueRead(junk...)
	_, err := f.Receive()
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, RecvOverflow, f.RecvStatus())
	assert.Equal(t, 7, f.Buffered())
	assert.Equal(t, uint64(1), f.Stats().Overflows)
	assert.Equal(t, uint64(14), f.Stats().DiscardedBytes)
	assert.LessOrEqual(t, f.Buffered(), 16)
}

func TestReceive_OverflowDropsFragment(t *testing.T) {
	s := transporttest.New()
	f := newTestFramer(t, s, 8)

	// 10 junk bytes then a frame head, then 7 bytes that would complete it
	s.QueueRead(0, 0, 0, 0, 0, 0, 0).
		QueueRead(0, 0, 0, 0xFF, 1, 2, 3).
		QueueRead(4, 5, 6, 0x0D, 0, 0, 0)
	for range 2 {
		_, err := f.Receive()
		assert.ErrorIs(t, err, ErrIncomplete)
	}
	_, err := f.Receive()
	assert.ErrorIs(t, err, ErrIncomplete, "fragment was discarded on overflow")
	assert.Equal(t, RecvOverflow, f.RecvStatus())
}

func TestReceive_OverflowThenFrameInSameRead(t *testing.T) {
	s := transporttest.New()
	f := newTestFramer(t, s, 8)

	s.QueueRead(0, 0, 0, 0, 0, 0, 0).
		QueueRead(0, 0, 0, 0, 0, 0, 0).
		QueueRead(0xFF, 1, 2, 3, 4, 5, 6) // 7 bytes, not aligned
	for range 3 {
		_, err := f.Receive()
		assert.ErrorIs(t, err, ErrIncomplete)
	}
	s.QueueRead(0x0D)
	fr, err := f.Receive()
	require.NoError(t, err)
	assert.Equal(t, frame8, fr.Bytes())
}

func TestReceive_TransportFault(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"io error", errors.New("EIO")},
		{"eof", io.EOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := transporttest.New().QueueReadErr(tt.err)
			f := newTestFramer(t, s, 8)

			fr, err := f.Receive()
			assert.Nil(t, fr)
			assert.ErrorIs(t, err, ErrTransport)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, RecvTransportFailure, f.RecvStatus())
			assert.Equal(t, 1, s.CloseCalls)
			assert.Equal(t, 1, s.OpenCalls)
			assert.Equal(t, uint64(1), f.Stats().TransportFaults)
		})
	}
}

func TestReceive_ZeroReadIsFault(t *testing.T) {
	s := transporttest.New().QueueRead()
	f := newTestFramer(t, s, 8)

	_, err := f.Receive()
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, io.ErrNoProgress)
	assert.Equal(t, 1, s.CloseCalls)
	assert.Equal(t, 1, s.OpenCalls)
}

func TestReceive_DataWithErrorIsDiscarded(t *testing.T) {
	s := transporttest.New().QueueReadDataErr(io.ErrUnexpectedEOF, frame8...)
	f := newTestFramer(t, s, 8)

	fr, err := f.Receive()
	assert.Nil(t, fr)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Zero(t, f.Buffered())
	assert.Zero(t, f.Stats().FramesReceived)

	_, err = f.Receive()
	assert.ErrorIs(t, err, ErrNoData)
}

func TestReceive_FaultKeepsBufferedBytes(t *testing.T) {
	s := transporttest.New().
		QueueRead(0xFF, 1, 2).
		QueueReadErr(errors.New("EIO")).
		QueueRead(3, 4, 5, 6, 0x0D)
	f := newTestFramer(t, s, 8)

	_, err := f.Receive()
	assert.ErrorIs(t, err, ErrIncomplete)
	_, err = f.Receive()
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, 3, f.Buffered())

	fr, err := f.Receive()
	require.NoError(t, err)
	assert.Equal(t, frame8, fr.Bytes())
}

func TestReceive_NoDataIsIdempotent(t *testing.T) {
	s := transporttest.New()
	f := newTestFramer(t, s, 8)

	for range 3 {
		fr, err := f.Receive()
		assert.Nil(t, fr)
		assert.ErrorIs(t, err, ErrNoData)
		assert.Equal(t, RecvNoData, f.RecvStatus())
		assert.Zero(t, f.Buffered())
		assert.Equal(t, Synced, f.Mode())
	}
	assert.Zero(t, s.CloseCalls)
	assert.Zero(t, s.OpenCalls)
	assert.Equal(t, Stats{}, f.Stats())
}

func TestReceive_WithChecksum(t *testing.T) {
	good, _ := packet.FromPayload(8, []byte{1, 2, 3, 4})
	good.SealChecksum()
	bad := good.Bytes()
	bad[2] ^= 0x40

	s := transporttest.New().QueueRead(bad...).QueueRead(good.Buffer()...)
	f := newTestFramer(t, s, 8, WithChecksum())

	_, err := f.Receive()
	assert.ErrorIs(t, err, ErrIncomplete, "marker-valid frame with a bad checksum is rejected")

	fr, err := f.Receive()
	require.NoError(t, err)
	assert.True(t, fr.Equal(good))
}

func TestReceiveInto(t *testing.T) {
	s := transporttest.New().QueueRead(frame8...)
	f := newTestFramer(t, s, 8)

	dst, _ := packet.New(8)
	require.NoError(t, f.ReceiveInto(dst))
	assert.Equal(t, frame8, dst.Bytes())

	// no data: dst untouched
	assert.ErrorIs(t, f.ReceiveInto(dst), ErrNoData)
	assert.Equal(t, frame8, dst.Bytes())

	wrong, _ := packet.New(16)
	assert.ErrorIs(t, f.ReceiveInto(wrong), packet.ErrSizeMismatch)
}

func TestReceive_StreamOfFrames(t *testing.T) {
	// a long stream cut into odd-sized reads still yields every frame
	var stream []byte
	var want [][]byte
	for i := range 20 {
		fr, _ := packet.FromPayload(8, []byte{byte(i), byte(i), byte(i), byte(i), byte(i), byte(i)})
		want = append(want, fr.Bytes())
		stream = append(stream, fr.Buffer()...)
	}
	s := transporttest.New()
	for len(stream) > 0 {
		k := min(5, len(stream))
		s.QueueRead(stream[:k]...)
		stream = stream[k:]
	}
	f := newTestFramer(t, s, 8)

	var got [][]byte
	for s.Pending() > 0 || f.Buffered() >= 8 {
		fr, err := f.Receive()
		if err != nil {
			require.ErrorIs(t, err, ErrIncomplete)
			continue
		}
		got = append(got, fr.Bytes())
	}
	assert.Equal(t, want, got)
}
