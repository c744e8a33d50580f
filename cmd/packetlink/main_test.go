package main

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/packetlink/internal/config"
	"github.com/banshee-data/packetlink/internal/db"
	"github.com/banshee-data/packetlink/internal/packet"
	"github.com/banshee-data/packetlink/internal/serialport"
)

func ptr[T any](v T) *T { return &v }

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.NewDB(filepath.Join(t.TempDir(), "packetlink.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestResolveSettings_Defaults(t *testing.T) {
	s, err := resolveSettings(&config.LinkConfig{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultPortPath, s.PortPath)
	assert.Equal(t, config.DefaultCapacity, s.Capacity)
	assert.Equal(t, config.DefaultReadTimeout, s.ReadTimeout)
	assert.Equal(t, config.DefaultListen, s.Listen)
	assert.Equal(t, serialport.DefaultBaudRate, s.Serial.BaudRate)
	assert.True(t, s.RecordRx)
	assert.NotEmpty(t, s.SessionID)
}

func TestResolveSettings_Precedence(t *testing.T) {
	cfg := &config.LinkConfig{
		PortPath: ptr("/dev/ttyS0"),
		Capacity: ptr(32),
		Listen:   ptr("127.0.0.1:9000"),
		Checksum: ptr(true),
	}
	stored := &db.LinkConfig{
		Name:     "bench",
		PortPath: "/dev/ttyACM1",
		BaudRate: 57600,
		Capacity: 64,
		Parity:   "even",
		Enabled:  true,
	}

	s, err := resolveSettings(cfg, stored, nil)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM1", s.PortPath)
	assert.Equal(t, 64, s.Capacity)
	assert.False(t, s.Checksum, "stored link overrides the file")
	assert.Equal(t, "E", s.Serial.Parity)
	assert.Equal(t, "127.0.0.1:9000", s.Listen)

	origPort, origCap := *port, *capacity
	t.Cleanup(func() { *port, *capacity = origPort, origCap })
	*port = "/dev/ttyUSB3"
	*capacity = 16

	s, err = resolveSettings(cfg, stored, map[string]bool{"port": true, "capacity": true})
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB3", s.PortPath)
	assert.Equal(t, 16, s.Capacity)
}

func TestResolveSettings_Invalid(t *testing.T) {
	_, err := resolveSettings(&config.LinkConfig{}, &db.LinkConfig{PortPath: "/dev/x", Capacity: 2}, nil)
	assert.ErrorIs(t, err, packet.ErrCapacity)

	_, err = resolveSettings(&config.LinkConfig{}, &db.LinkConfig{PortPath: "/dev/x", Capacity: 16, BaudRate: 12345}, nil)
	assert.ErrorContains(t, err, "serial")

	_, err = resolveSettings(&config.LinkConfig{PortPath: ptr("")}, nil, nil)
	assert.ErrorContains(t, err, "serial port is required")
}

func TestSettingsString(t *testing.T) {
	s := settings{PortPath: "/dev/ttyUSB0", Capacity: 16, SessionID: "abc"}
	assert.Equal(t, "/dev/ttyUSB0 (115200 8N1), 16-byte frames, checksum=false, session abc", s.String())
	s.Dev = true
	assert.Contains(t, s.String(), "dev link")
}

func TestRecordFrames(t *testing.T) {
	d := newTestDB(t)
	c := make(chan *packet.Frame, 2)
	f1, _ := packet.FromPayload(8, []byte{1})
	f2, _ := packet.FromPayload(8, []byte{2})
	c <- f1
	c <- f2
	close(c)

	n := recordFrames(context.Background(), d, "s1", c)
	assert.Equal(t, 2, n)

	counts, err := d.FrameCounts("s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[db.DirectionRx])
}

func TestRecordFrames_StopsOnCancel(t *testing.T) {
	d := newTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Zero(t, recordFrames(ctx, d, "s1", make(chan *packet.Frame)))
}

func TestTxRecorder(t *testing.T) {
	d := newTestDB(t)
	f, _ := packet.FromPayload(8, []byte{9, 9})
	txRecorder(d, "s2")(f)

	recs, err := d.RecentFrames(10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, db.DirectionTx, recs[0].Direction)
	assert.Equal(t, f.Bytes(), recs[0].Data)
}

func TestNewLink_DevLoopback(t *testing.T) {
	d := newTestDB(t)
	s := settings{
		Capacity:    packet.Capacity16,
		ReadTimeout: 10 * time.Millisecond,
		Checksum:    true,
		RecordTx:    true,
		Dev:         true,
		SessionID:   "dev",
	}
	link, err := newLink(s, d)
	require.NoError(t, err)
	defer link.Close()

	id, c := link.Subscribe()
	defer link.Unsubscribe(id)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		link.Monitor(ctx)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	// the sent frame is echoed back by the loopback link
	out, err := packet.FromPayload(packet.Capacity16, []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE})
	require.NoError(t, err)
	out.SealChecksum()
	require.NoError(t, link.SendFrame(out))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case f := <-c:
			if f.Equal(out) {
				counts, err := d.FrameCounts("dev")
				require.NoError(t, err)
				assert.Equal(t, int64(1), counts[db.DirectionTx])
				return
			}
		case <-deadline:
			t.Fatal("echoed frame not received")
		}
	}
}
