package signal

import (
	"sync"

	"github.com/rickgao/kalshi-trader/internal/model"
)

// Queue is a fixed-capacity ring buffer shared between signal producers and
// the decision engine. Push never blocks; the engine drains per cycle.
type Queue struct {
	mu       sync.Mutex
	buf      []model.Signal
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	closed   bool

	// Stats
	totalPushed  int64
	totalDrained int64
	dropped      int64
}

// NewQueue creates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		buf:      make([]model.Signal, capacity),
		capacity: capacity,
	}
}

// Push adds a signal. Returns false when the queue is full or closed; the
// signal is dropped and counted.
func (q *Queue) Push(sig model.Signal) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || q.count == q.capacity {
		q.dropped++
		return false
	}

	q.buf[q.tail] = sig
	q.tail = (q.tail + 1) % q.capacity
	q.count++
	q.totalPushed++
	return true
}

// Drain removes and returns up to max signals (all of them when max <= 0).
// Returns nil when empty.
func (q *Queue) Drain(max int) []model.Signal {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil
	}

	n := q.count
	if max > 0 && max < n {
		n = max
	}

	out := make([]model.Signal, n)
	for i := 0; i < n; i++ {
		out[i] = q.buf[q.head]
		q.buf[q.head] = model.Signal{}
		q.head = (q.head + 1) % q.capacity
		q.count--
		q.totalDrained++
	}
	return out
}

// Len returns the current number of queued signals.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Close stops the queue. Subsequent pushes are dropped.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// QueueStats contains queue counters.
type QueueStats struct {
	Len          int
	Capacity     int
	TotalPushed  int64
	TotalDrained int64
	Dropped      int64
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Len:          q.count,
		Capacity:     q.capacity,
		TotalPushed:  q.totalPushed,
		TotalDrained: q.totalDrained,
		Dropped:      q.dropped,
	}
}
