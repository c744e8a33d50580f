package db

import (
	"fmt"

	"github.com/banshee-data/packetlink/internal/packet"
)

// Direction of a logged frame relative to the host.
type Direction string

const (
	DirectionRx Direction = "rx"
	DirectionTx Direction = "tx"
)

// FrameRecord is one row of the frame log.
type FrameRecord struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Direction  Direction `json:"direction"`
	Capacity   int       `json:"capacity"`
	Data       []byte    `json:"data"`
	RecordedAt int64     `json:"recorded_at"`
}

// Frame rebuilds the logged frame.
func (r FrameRecord) Frame() (*packet.Frame, error) {
	f, err := packet.New(r.Capacity)
	if err != nil {
		return nil, err
	}
	if err := f.CopyFrom(r.Data); err != nil {
		return nil, err
	}
	return f, nil
}

// RecordFrame appends a frame to the log.
func (db *DB) RecordFrame(sessionID string, dir Direction, f *packet.Frame) error {
	if dir != DirectionRx && dir != DirectionTx {
		return fmt.Errorf("invalid direction %q", dir)
	}
	_, err := db.Exec(
		`INSERT INTO frames (session_id, direction, capacity, data) VALUES (?, ?, ?, ?)`,
		sessionID, string(dir), f.Capacity(), f.Bytes(),
	)
	if err != nil {
		return fmt.Errorf("failed to record frame: %w", err)
	}
	return nil
}

// RecentFrames returns up to limit frames, newest first. A limit of zero or
// less returns 100 frames.
func (db *DB) RecentFrames(limit int) ([]FrameRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT id, session_id, direction, capacity, data, recorded_at
		 FROM frames ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query frames: %w", err)
	}
	defer rows.Close()

	var records []FrameRecord
	for rows.Next() {
		var r FrameRecord
		var dir string
		if err := rows.Scan(&r.ID, &r.SessionID, &dir, &r.Capacity, &r.Data, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}
		r.Direction = Direction(dir)
		records = append(records, r)
	}
	return records, rows.Err()
}

// FrameCounts returns the number of logged frames per direction for a session.
func (db *DB) FrameCounts(sessionID string) (map[Direction]int64, error) {
	rows, err := db.Query(
		`SELECT direction, COUNT(*) FROM frames WHERE session_id = ? GROUP BY direction`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count frames: %w", err)
	}
	defer rows.Close()

	counts := map[Direction]int64{DirectionRx: 0, DirectionTx: 0}
	for rows.Next() {
		var dir string
		var n int64
		if err := rows.Scan(&dir, &n); err != nil {
			return nil, fmt.Errorf("failed to scan frame count: %w", err)
		}
		counts[Direction(dir)] = n
	}
	return counts, rows.Err()
}
