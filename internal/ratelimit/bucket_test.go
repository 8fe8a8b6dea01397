package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestBucketBurstThenEmpty(t *testing.T) {
	clock := newFakeClock()
	b := newBucketWithClock(3, 60, clock.Now)

	for i := 0; i < 3; i++ {
		ok, _ := b.Take()
		assert.True(t, ok, "take %d", i)
	}
	ok, wait := b.Take()
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)
}

func TestBucketRefill(t *testing.T) {
	clock := newFakeClock()
	b := newBucketWithClock(2, 120, clock.Now) // two tokens per second

	b.Take()
	b.Take()
	assert.Zero(t, b.Tokens())

	clock.Advance(500 * time.Millisecond)
	assert.InDelta(t, 1.0, b.Tokens(), 1e-9)

	clock.Advance(time.Hour)
	assert.InDelta(t, 2.0, b.Tokens(), 1e-9, "capped at capacity")
}

func TestBucketRefundAndFill(t *testing.T) {
	clock := newFakeClock()
	b := newBucketWithClock(2, 60, clock.Now)

	b.Take()
	b.Refund()
	b.Refund()
	assert.InDelta(t, 2.0, b.Tokens(), 1e-9, "refund never exceeds capacity")

	b.Take()
	b.Take()
	b.Fill()
	assert.InDelta(t, 2.0, b.Tokens(), 1e-9)
}

func TestBucketZeroRateNeverRefills(t *testing.T) {
	clock := newFakeClock()
	b := newBucketWithClock(1, 0, clock.Now)

	ok, _ := b.Take()
	assert.True(t, ok)
	clock.Advance(time.Hour)
	ok, wait := b.Take()
	assert.False(t, ok)
	assert.Greater(t, wait, time.Hour)
}
