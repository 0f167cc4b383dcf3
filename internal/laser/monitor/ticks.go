package monitor

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// TickTimer keeps a sliding window of simulation tick durations.
type TickTimer struct {
	mu      sync.Mutex
	samples []float64 // milliseconds
	next    int
	full    bool
}

// TickSummary describes the tick durations currently in the window.
type TickSummary struct {
	Count    int     `json:"count"`
	MeanMs   float64 `json:"mean_ms"`
	StdDevMs float64 `json:"stddev_ms"`
	MaxMs    float64 `json:"max_ms"`
}

// NewTickTimer keeps the last window durations (at least 1).
func NewTickTimer(window int) *TickTimer {
	if window < 1 {
		window = 1
	}
	return &TickTimer{samples: make([]float64, window)}
}

// Observe records one tick duration.
func (t *TickTimer) Observe(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples[t.next] = float64(d) / float64(time.Millisecond)
	t.next++
	if t.next == len(t.samples) {
		t.next = 0
		t.full = true
	}
}

// Summary returns mean, standard deviation and maximum of the window.
func (t *TickTimer) Summary() TickSummary {
	t.mu.Lock()
	n := t.next
	if t.full {
		n = len(t.samples)
	}
	window := append([]float64(nil), t.samples[:n]...)
	t.mu.Unlock()

	if n == 0 {
		return TickSummary{}
	}
	s := TickSummary{Count: n, MaxMs: floats.Max(window)}
	if n == 1 {
		s.MeanMs = window[0]
		return s
	}
	s.MeanMs, s.StdDevMs = stat.MeanStdDev(window, nil)
	return s
}
