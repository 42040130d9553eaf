package telemetry

import (
	"sync"
	"time"
)

// History is a bounded FIFO of readings backed by a pre-allocated
// circular buffer. Appends evict the oldest entry once capacity is
// reached. Safe for concurrent use: the orchestrator's tick writes
// while agent cycles read.
type History struct {
	mu       sync.RWMutex
	readings []Reading // circular buffer, pre-allocated
	head     int       // next write position
	count    int       // entries currently stored (≤ len(readings))
}

// NewHistory creates a history with the given capacity. Capacities
// below 1 fall back to 720 (one hour of 5-second ticks).
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 720
	}
	return &History{readings: make([]Reading, capacity)}
}

// Append stores r, evicting the oldest reading when full.
func (h *History) Append(r Reading) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readings[h.head] = r
	h.head = (h.head + 1) % len(h.readings)
	if h.count < len(h.readings) {
		h.count++
	}
}

// Len returns the number of stored readings.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Cap returns the buffer capacity.
func (h *History) Cap() int {
	return len(h.readings)
}

// Latest returns the most recent reading, or false when empty.
func (h *History) Latest() (Reading, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.count == 0 {
		return Reading{}, false
	}
	idx := (h.head - 1 + len(h.readings)) % len(h.readings)
	return h.readings[idx], true
}

// Recent returns up to n readings in chronological order (oldest
// first), ending with the latest.
func (h *History) Recent(n int) []Reading {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n > h.count {
		n = h.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]Reading, 0, n)
	start := (h.head - n + len(h.readings)) % len(h.readings)
	for i := 0; i < n; i++ {
		out = append(out, h.readings[(start+i)%len(h.readings)])
	}
	return out
}

// All returns every stored reading in chronological order.
func (h *History) All() []Reading {
	return h.Recent(h.Cap())
}

// Since returns readings with timestamps at or after t, oldest first.
func (h *History) Since(t time.Time) []Reading {
	all := h.All()
	for i, r := range all {
		if !r.Timestamp.Before(t) {
			return all[i:]
		}
	}
	return nil
}
