package main

import (
	"fmt"
	"time"

	"github.com/banshee-data/packetlink/internal/config"
	"github.com/banshee-data/packetlink/internal/db"
	"github.com/banshee-data/packetlink/internal/packet"
	"github.com/banshee-data/packetlink/internal/serialport"
)

// settings is the effective daemon configuration. Sources apply in order:
// defaults, config file, stored link (-link), then flags given explicitly.
type settings struct {
	PortPath    string
	Serial      serialport.PortOptions
	Capacity    int
	ReadTimeout time.Duration
	Checksum    bool
	Listen      string
	RecordRx    bool
	RecordTx    bool
	Dev         bool
	SessionID   string
}

func resolveSettings(cfg *config.LinkConfig, stored *db.LinkConfig, set map[string]bool) (settings, error) {
	s := settings{
		PortPath:    cfg.GetPortPath(),
		Serial:      cfg.GetSerial(),
		Capacity:    cfg.GetCapacity(),
		ReadTimeout: cfg.GetReadTimeout(),
		Checksum:    cfg.GetChecksum(),
		Listen:      cfg.GetListen(),
		RecordRx:    cfg.GetRecordRx(),
		RecordTx:    cfg.GetRecordTx(),
		Dev:         *devMode,
		SessionID:   newSessionID(),
	}

	if stored != nil {
		s.PortPath = stored.PortPath
		s.Serial = serialport.PortOptions{
			BaudRate: stored.BaudRate,
			DataBits: stored.DataBits,
			StopBits: stored.StopBits,
			Parity:   stored.Parity,
		}
		s.Capacity = stored.Capacity
		s.Checksum = stored.Checksum
	}

	if set["port"] {
		s.PortPath = *port
	}
	if set["capacity"] {
		s.Capacity = *capacity
	}
	if set["listen"] {
		s.Listen = *listen
	}
	if set["checksum"] {
		s.Checksum = *checksum
	}

	if err := packet.ValidCapacity(s.Capacity); err != nil {
		return s, err
	}
	serial, err := s.Serial.Normalise()
	if err != nil {
		return s, fmt.Errorf("serial: %w", err)
	}
	s.Serial = serial
	if s.Listen == "" {
		return s, fmt.Errorf("listen address is required")
	}
	if !s.Dev && s.PortPath == "" {
		return s, fmt.Errorf("serial port is required")
	}
	return s, nil
}

func (s settings) String() string {
	if s.Dev {
		return fmt.Sprintf("dev link, %d-byte frames, checksum=%t, session %s", s.Capacity, s.Checksum, s.SessionID)
	}
	return fmt.Sprintf("%s (%s), %d-byte frames, checksum=%t, session %s", s.PortPath, s.Serial, s.Capacity, s.Checksum, s.SessionID)
}
