// Package buffer holds the quarantine of rejected ingest rows.
package buffer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/gridpower/internal/storage/types"
)

// DefaultCapacity is used when New is called with a non-positive capacity.
const DefaultCapacity = 1024

// RingBuffer is a thread-safe circular buffer of rejected rows. When full,
// the oldest rejection is overwritten.
type RingBuffer struct {
	mu       sync.RWMutex
	data     []types.Rejection
	head     int64 // Next write position
	tail     int64 // Oldest data position
	count    int64 // Current number of elements
	capacity int64

	// Statistics
	pushCount  atomic.Int64
	dropCount  atomic.Int64
	evictCount atomic.Int64
}

// New creates a new RingBuffer with the given capacity.
func New(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RingBuffer{
		data:     make([]types.Rejection, capacity),
		capacity: int64(capacity),
	}
}

// Push adds a rejection, overwriting the oldest if the buffer is full.
// Returns false if an older rejection was dropped.
func (rb *RingBuffer) Push(r types.Rejection) bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	dropped := false
	if rb.count >= rb.capacity {
		// Overwrite oldest
		rb.tail++
		rb.count--
		rb.dropCount.Add(1)
		dropped = true
	}

	idx := rb.head % rb.capacity
	rb.data[idx] = r
	rb.head++
	rb.count++
	rb.pushCount.Add(1)

	return !dropped
}

// Recent returns up to n rejections, newest first, without removing them.
// A non-positive n returns everything.
func (rb *RingBuffer) Recent(n int) []types.Rejection {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	count := rb.count
	if n > 0 && int64(n) < count {
		count = int64(n)
	}

	result := make([]types.Rejection, count)
	for i := int64(0); i < count; i++ {
		idx := (rb.head - 1 - i) % rb.capacity
		result[i] = rb.data[idx]
	}
	return result
}

// Filter defines criteria for selecting rejections.
type Filter struct {
	Session string
	Since   time.Time // zero = no filter
}

// Matches returns true if the rejection matches the filter.
func (f *Filter) Matches(r *types.Rejection) bool {
	if f.Session != "" && r.Session != f.Session {
		return false
	}
	if !f.Since.IsZero() && r.At.Before(f.Since) {
		return false
	}
	return true
}

// Query returns rejections matching the filter, oldest first.
func (rb *RingBuffer) Query(filter Filter, limit int) []types.Rejection {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.count == 0 {
		return nil
	}

	var results []types.Rejection
	maxResults := limit
	if maxResults <= 0 {
		maxResults = int(rb.count)
	}

	for i := int64(0); i < rb.count && len(results) < maxResults; i++ {
		idx := (rb.tail + i) % rb.capacity
		r := &rb.data[idx]
		if filter.Matches(r) {
			results = append(results, *r)
		}
	}

	return results
}

// EvictOlderThan removes rejections recorded before cutoff.
// Returns the number of rejections evicted.
func (rb *RingBuffer) EvictOlderThan(cutoff time.Time) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	evicted := 0
	for rb.count > 0 {
		idx := rb.tail % rb.capacity
		if !rb.data[idx].At.Before(cutoff) {
			break
		}
		rb.data[idx] = types.Rejection{}
		rb.tail++
		rb.count--
		evicted++
	}
	rb.evictCount.Add(int64(evicted))

	return evicted
}

// Len returns the current number of rejections in the buffer.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return int(rb.count)
}

// Cap returns the capacity of the buffer.
func (rb *RingBuffer) Cap() int {
	return int(rb.capacity)
}

// Stats returns buffer statistics.
func (rb *RingBuffer) Stats() BufferStats {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	return BufferStats{
		Capacity:   int(rb.capacity),
		Count:      int(rb.count),
		PushCount:  rb.pushCount.Load(),
		DropCount:  rb.dropCount.Load(),
		EvictCount: rb.evictCount.Load(),
	}
}

// BufferStats holds buffer statistics.
type BufferStats struct {
	Capacity   int   `json:"capacity"`
	Count      int   `json:"count"`
	PushCount  int64 `json:"pushed"`
	DropCount  int64 `json:"dropped"`
	EvictCount int64 `json:"evicted"`
}
