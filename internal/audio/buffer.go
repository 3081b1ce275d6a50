package audio

import (
	"sync"
)

// SampleWindow is a thread-safe ring buffer that keeps the most recent
// time-domain samples of a stream. Writes never block; once the ring is
// full the oldest samples are overwritten.
type SampleWindow struct {
	buffer []byte
	size   int
	write  int
	filled int
	mu     sync.RWMutex
}

// NewSampleWindow creates a new window holding up to size samples
func NewSampleWindow(size int) *SampleWindow {
	return &SampleWindow{
		buffer: make([]byte, size),
		size:   size,
	}
}

// Write appends samples, overwriting the oldest when full.
// Returns the number of samples retained from data.
func (w *SampleWindow) Write(data []byte) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Only the tail of an oversized write can survive
	if len(data) > w.size {
		data = data[len(data)-w.size:]
	}

	for _, b := range data {
		w.buffer[w.write] = b
		w.write = (w.write + 1) % w.size
	}

	w.filled += len(data)
	if w.filled > w.size {
		w.filled = w.size
	}

	return len(data)
}

// Snapshot copies the latest len(dst) samples into dst, oldest first.
// When fewer samples have been written, the head of dst is padded with
// Midpoint (silence). Returns the number of real samples copied.
func (w *SampleWindow) Snapshot(dst []byte) int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	n := len(dst)
	if n > w.filled {
		n = w.filled
	}

	pad := len(dst) - n
	for i := 0; i < pad; i++ {
		dst[i] = Midpoint
	}

	start := (w.write - n + w.size) % w.size
	for i := 0; i < n; i++ {
		dst[pad+i] = w.buffer[(start+i)%w.size]
	}

	return n
}

// Clear clears the window
func (w *SampleWindow) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.write = 0
	w.filled = 0
}
