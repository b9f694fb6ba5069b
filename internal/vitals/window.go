package vitals

import (
	"math"
	"sync"
)

// DefaultWindowCapacity keeps about one minute of samples at 1 Hz.
const DefaultWindowCapacity = 60

// Window is a fixed-capacity circular buffer of samples. Appending to a full
// window evicts the oldest sample.
type Window struct {
	mu       sync.RWMutex
	buf      []Sample
	capacity int
	pos      int // next write position
	full     bool
}

// NewWindow creates a window with the given capacity. Non-positive values fall
// back to DefaultWindowCapacity.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultWindowCapacity
	}
	return &Window{
		buf:      make([]Sample, capacity),
		capacity: capacity,
	}
}

// Append adds a sample. A sample stamped earlier than the newest entry is
// clamped to the newest timestamp so the window stays time-ordered.
func (w *Window) Append(s Sample) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if newest, ok := w.newestLocked(); ok && s.Timestamp.Before(newest.Timestamp) {
		s.Timestamp = newest.Timestamp
	}

	w.buf[w.pos] = s
	w.pos = (w.pos + 1) % w.capacity
	if w.pos == 0 {
		w.full = true
	}
}

// Reset empties the window.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = make([]Sample, w.capacity)
	w.pos = 0
	w.full = false
}

// Len returns the number of samples held.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lenLocked()
}

// Capacity returns the maximum number of samples held.
func (w *Window) Capacity() int {
	return w.capacity
}

// Samples returns all samples in chronological order.
func (w *Window) Samples() []Sample {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if !w.full {
		result := make([]Sample, w.pos)
		copy(result, w.buf[:w.pos])
		return result
	}

	result := make([]Sample, w.capacity)
	copy(result, w.buf[w.pos:])
	copy(result[w.capacity-w.pos:], w.buf[:w.pos])
	return result
}

// Latest returns the newest sample.
func (w *Window) Latest() (Sample, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.newestLocked()
}

// Current returns the newest BPM, or false when the window is empty.
func (w *Window) Current() (int, bool) {
	s, ok := w.Latest()
	if !ok {
		return 0, false
	}
	return s.BPM, true
}

// Average returns the mean BPM rounded to the nearest integer.
func (w *Window) Average() (int, bool) {
	samples := w.Samples()
	if len(samples) == 0 {
		return 0, false
	}

	sum := 0
	for _, s := range samples {
		sum += s.BPM
	}
	return int(math.Round(float64(sum) / float64(len(samples)))), true
}

// Min returns the lowest BPM in the window.
func (w *Window) Min() (int, bool) {
	samples := w.Samples()
	if len(samples) == 0 {
		return 0, false
	}

	lowest := samples[0].BPM
	for _, s := range samples[1:] {
		if s.BPM < lowest {
			lowest = s.BPM
		}
	}
	return lowest, true
}

// Max returns the highest BPM in the window.
func (w *Window) Max() (int, bool) {
	samples := w.Samples()
	if len(samples) == 0 {
		return 0, false
	}

	highest := samples[0].BPM
	for _, s := range samples[1:] {
		if s.BPM > highest {
			highest = s.BPM
		}
	}
	return highest, true
}

func (w *Window) lenLocked() int {
	if w.full {
		return w.capacity
	}
	return w.pos
}

func (w *Window) newestLocked() (Sample, bool) {
	if w.lenLocked() == 0 {
		return Sample{}, false
	}
	return w.buf[(w.pos-1+w.capacity)%w.capacity], true
}
