package monitoring

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// LatencyWindow keeps the most recent job durations (nanoseconds) in a ring
// buffer
type LatencyWindow struct {
	mu      sync.Mutex
	samples []float64
	next    int
	full    bool
}

// NewLatencyWindow creates a window holding up to size samples
func NewLatencyWindow(size int) *LatencyWindow {
	if size <= 0 {
		size = 256
	}
	return &LatencyWindow{samples: make([]float64, size)}
}

// Add records one duration
func (w *LatencyWindow) Add(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples[w.next] = float64(d)
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.full = true
	}
}

// Len returns the number of samples held
func (w *LatencyWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.full {
		return len(w.samples)
	}
	return w.next
}

// Quantile returns the empirical p-quantile (0..1) of the window, or zero
// when empty.
func (w *LatencyWindow) Quantile(p float64) time.Duration {
	w.mu.Lock()
	n := w.next
	if w.full {
		n = len(w.samples)
	}
	data := make([]float64, n)
	copy(data, w.samples[:n])
	w.mu.Unlock()

	if n == 0 {
		return 0
	}
	sort.Float64s(data)
	q := stat.Quantile(p, stat.Empirical, data, nil)
	return time.Duration(q)
}

// Mean returns the mean latency of the window
func (w *LatencyWindow) Mean() time.Duration {
	w.mu.Lock()
	n := w.next
	if w.full {
		n = len(w.samples)
	}
	data := make([]float64, n)
	copy(data, w.samples[:n])
	w.mu.Unlock()

	if n == 0 {
		return 0
	}
	return time.Duration(stat.Mean(data, nil))
}
