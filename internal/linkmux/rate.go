package linkmux

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// rateWindow is the number of inter-frame intervals kept for RateSummary.
const rateWindow = 256

// RateSummary describes the spacing of recently received frames.
type RateSummary struct {
	Frames          uint64  `json:"frames"`
	Samples         int     `json:"samples"`
	MeanIntervalMs  float64 `json:"mean_interval_ms"`
	StdDevMs        float64 `json:"stddev_interval_ms"`
	FramesPerSecond float64 `json:"frames_per_second"`
}

type rateTracker struct {
	mu        sync.Mutex
	last      time.Time
	haveLast  bool
	frames    uint64
	intervals []float64 // milliseconds, ring of len <= cap
	next      int
}

func newRateTracker(window int) *rateTracker {
	return &rateTracker{intervals: make([]float64, 0, window)}
}

// Observe records a frame arrival at t.
func (r *rateTracker) Observe(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames++
	if r.haveLast {
		ms := float64(t.Sub(r.last)) / float64(time.Millisecond)
		if len(r.intervals) < cap(r.intervals) {
			r.intervals = append(r.intervals, ms)
		} else {
			r.intervals[r.next] = ms
			r.next = (r.next + 1) % len(r.intervals)
		}
	}
	r.last = t
	r.haveLast = true
}

// Summary returns the mean and standard deviation of the recorded intervals.
func (r *rateTracker) Summary() RateSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := RateSummary{Frames: r.frames, Samples: len(r.intervals)}
	switch len(r.intervals) {
	case 0:
		return s
	case 1:
		s.MeanIntervalMs = r.intervals[0]
	default:
		s.MeanIntervalMs, s.StdDevMs = stat.MeanStdDev(r.intervals, nil)
	}
	if s.MeanIntervalMs > 0 && !math.IsNaN(s.MeanIntervalMs) {
		s.FramesPerSecond = 1000 / s.MeanIntervalMs
	}
	return s
}
