package aggregator

import (
	"fmt"
	"sync"
	"time"

	"mine-monitor/internal/models"
)

// DefaultBufferCapacity is the number of recent readings kept in memory
const DefaultBufferCapacity = 1000

// BufferStats are the liveness figures exposed to observers
type BufferStats struct {
	TotalSamples uint64  `json:"total_samples"`
	LastUpdate   float64 `json:"last_update"`
	DataRate     float64 `json:"data_rate"` // samples per second over the buffered span
	Buffered     int     `json:"buffered"`
	Capacity     int     `json:"capacity"`
}

// RingBuffer is a fixed-capacity FIFO of readings. Push evicts the oldest
// entry when full; reads return independent copies in arrival order.
type RingBuffer struct {
	mu    sync.Mutex
	items []models.Reading
	head  int // index of the oldest entry
	size  int

	total      uint64
	lastUpdate time.Time
	clock      func() time.Time
}

// NewRingBuffer allocates a buffer. A nil clock means time.Now.
func NewRingBuffer(capacity int, clock func() time.Time) (*RingBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: buffer capacity %d", ErrInvalidCapacity, capacity)
	}

	if clock == nil {
		clock = time.Now
	}

	return &RingBuffer{
		items: make([]models.Reading, capacity),
		clock: clock,
	}, nil
}

// Push appends a reading, evicting the oldest one when the buffer is full
func (b *RingBuffer) Push(r models.Reading) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.items)

	if b.size < capacity {
		b.items[(b.head+b.size)%capacity] = r
		b.size++
	} else {
		b.items[b.head] = r
		b.head = (b.head + 1) % capacity
	}

	b.total++
	b.lastUpdate = b.clock()
}

// Restore appends previously stored readings, oldest first. The sample
// counter and last update time are left alone since nothing new arrived.
func (b *RingBuffer) Restore(rs []models.Reading) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.items)

	if len(rs) > capacity {
		rs = rs[len(rs)-capacity:]
	}

	for _, r := range rs {
		if b.size < capacity {
			b.items[(b.head+b.size)%capacity] = r
			b.size++
		} else {
			b.items[b.head] = r
			b.head = (b.head + 1) % capacity
		}
	}
}

// Snapshot returns the newest max readings in arrival order; max <= 0 returns all
func (b *RingBuffer) Snapshot(max int) []models.Reading {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.size
	if max > 0 && max < n {
		n = max
	}

	return b.copyLastLocked(n)
}

// Window returns readings stamped within d of the clock's now, in arrival order
func (b *RingBuffer) Window(d time.Duration) []models.Reading {
	cutoff := models.ToTimestamp(b.clock().Add(-d))

	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.items)

	// readings arrive in order, so scan back from the newest
	n := 0
	for n < b.size {
		r := b.items[(b.head+b.size-1-n)%capacity]
		if r.Timestamp < cutoff {
			break
		}

		n++
	}

	return b.copyLastLocked(n)
}

// Latest returns the newest reading
func (b *RingBuffer) Latest() (models.Reading, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 {
		return models.Reading{}, false
	}

	return b.items[(b.head+b.size-1)%len(b.items)], true
}

// Len is the number of buffered readings
func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.size
}

// Cap is the fixed capacity
func (b *RingBuffer) Cap() int {
	return len(b.items)
}

// Stats returns the sample counter, last update and data rate
func (b *RingBuffer) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := BufferStats{
		TotalSamples: b.total,
		Buffered:     b.size,
		Capacity:     len(b.items),
	}

	if !b.lastUpdate.IsZero() {
		s.LastUpdate = models.ToTimestamp(b.lastUpdate)
	}

	if b.size > 1 {
		oldest := b.items[b.head]
		newest := b.items[(b.head+b.size-1)%len(b.items)]

		if span := newest.Timestamp - oldest.Timestamp; span > 0 {
			s.DataRate = float64(b.size-1) / span
		}
	}

	return s
}

func (b *RingBuffer) copyLastLocked(n int) []models.Reading {
	out := make([]models.Reading, n)
	capacity := len(b.items)
	start := b.head + b.size - n

	for i := 0; i < n; i++ {
		out[i] = b.items[(start+i)%capacity]
	}

	return out
}
