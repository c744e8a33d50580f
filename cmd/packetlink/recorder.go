package main

import (
	"context"
	"log"

	"github.com/banshee-data/packetlink/internal/db"
	"github.com/banshee-data/packetlink/internal/packet"
)

// frameRecorder is the subset of *db.DB used to log frames.
type frameRecorder interface {
	RecordFrame(sessionID string, dir db.Direction, f *packet.Frame) error
}

// recordFrames logs every frame from c until ctx is done or c is closed and
// returns the number of frames stored.
func recordFrames(ctx context.Context, r frameRecorder, sessionID string, c <-chan *packet.Frame) int {
	n := 0
	for {
		select {
		case f, ok := <-c:
			if !ok {
				return n
			}
			if err := r.RecordFrame(sessionID, db.DirectionRx, f); err != nil {
				log.Printf("failed to record frame: %v", err)
				continue
			}
			n++
		case <-ctx.Done():
			return n
		}
	}
}

// txRecorder returns a sent hook logging outgoing frames.
func txRecorder(r frameRecorder, sessionID string) func(*packet.Frame) {
	return func(f *packet.Frame) {
		if err := r.RecordFrame(sessionID, db.DirectionTx, f); err != nil {
			log.Printf("failed to record sent frame: %v", err)
		}
	}
}
