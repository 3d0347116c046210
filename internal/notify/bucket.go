package notify

import (
	"sync"
	"time"
)

// bucket caps outbound messages per minute. Rather than dripping tokens
// continuously it refills to capacity once the minute window rolls over,
// so a burst of fills can drain it and the next minute starts fresh.
type bucket struct {
	mu       sync.Mutex
	max      int
	tokens   int
	lastFill time.Time
}

func newBucket(max int) *bucket {
	return &bucket{
		max:      max,
		tokens:   max,
		lastFill: time.Now(),
	}
}

// allow consumes a token if one is available.
func (b *bucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if now := time.Now(); now.Sub(b.lastFill) >= time.Minute {
		b.tokens = b.max
		b.lastFill = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// remaining returns the tokens left in the current window.
func (b *bucket) remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}
