package ratelimit

import (
	"sync"
	"time"
)

// Bucket is a token bucket: it holds up to capacity tokens and gains
// rate tokens per second.
type Bucket struct {
	mu       sync.Mutex
	capacity float64
	rate     float64
	tokens   float64
	last     time.Time
	now      func() time.Time
}

// NewBucket returns a full bucket.
func NewBucket(capacity int, perMinute int) *Bucket {
	return newBucketWithClock(capacity, perMinute, time.Now)
}

func newBucketWithClock(capacity int, perMinute int, now func() time.Time) *Bucket {
	if capacity < 1 {
		capacity = 1
	}
	return &Bucket{
		capacity: float64(capacity),
		rate:     float64(perMinute) / 60,
		tokens:   float64(capacity),
		last:     now(),
		now:      now,
	}
}

// Take removes one token. When the bucket is empty it returns false and
// how long until a token is available.
func (b *Bucket) Take() (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if b.rate <= 0 {
		return false, time.Duration(1<<63 - 1)
	}
	missing := 1 - b.tokens
	return false, time.Duration(missing / b.rate * float64(time.Second))
}

// Refund returns a token taken for a request that was later rejected.
func (b *Bucket) Refund() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens++
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
}

// Tokens reports the tokens currently available.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return b.tokens
}

// Fill resets the bucket to capacity.
func (b *Bucket) Fill() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = b.capacity
	b.last = b.now()
}

func (b *Bucket) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.last).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.rate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.last = now
}
