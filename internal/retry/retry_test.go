package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig(maxAttempts int) Config {
	return Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetryManager(t *testing.T) {
	t.Run("successful on first attempt", func(t *testing.T) {
		var attempts atomic.Int32
		err := NewManager(fastConfig(3)).Run(context.Background(), func(ctx context.Context) error {
			attempts.Add(1)
			return nil
		})
		assert.NoError(t, err)
		assert.EqualValues(t, 1, attempts.Load())
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		var attempts atomic.Int32
		boom := errors.New("engine failed to start")
		err := NewManager(fastConfig(3)).Run(context.Background(), func(ctx context.Context) error {
			attempts.Add(1)
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.EqualValues(t, 3, attempts.Load())
	})

	t.Run("succeeds after retries", func(t *testing.T) {
		var attempts atomic.Int32
		err := NewManager(fastConfig(0)).Run(context.Background(), func(ctx context.Context) error {
			if attempts.Add(1) < 4 {
				return errors.New("not yet")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.EqualValues(t, 4, attempts.Load())
	})

	t.Run("permanent error stops retries", func(t *testing.T) {
		var attempts atomic.Int32
		stopped := errors.New("supervisor stopped")
		err := NewManager(fastConfig(0)).Run(context.Background(), func(ctx context.Context) error {
			attempts.Add(1)
			return Permanent(stopped)
		})
		assert.Equal(t, stopped, err)
		assert.EqualValues(t, 1, attempts.Load())
	})

	t.Run("context cancellation", func(t *testing.T) {
		cfg := fastConfig(0)
		cfg.InitialDelay = time.Second
		cfg.MaxDelay = time.Second

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		start := time.Now()
		err := NewManager(cfg).Run(ctx, func(ctx context.Context) error {
			return errors.New("always")
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	})

	t.Run("on retry hook", func(t *testing.T) {
		cfg := fastConfig(3)
		var seen []int
		cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
			seen = append(seen, attempt)
		}
		_ = NewManager(cfg).Run(context.Background(), func(ctx context.Context) error {
			return errors.New("fail")
		})
		assert.Equal(t, []int{1, 2}, seen)
	})
}

func TestBackoff(t *testing.T) {
	m := NewManager(Config{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2})

	assert.Equal(t, 100*time.Millisecond, m.NextDelay(1))
	assert.Equal(t, 200*time.Millisecond, m.NextDelay(2))
	assert.Equal(t, 400*time.Millisecond, m.NextDelay(3))
	assert.Equal(t, time.Second, m.NextDelay(10))
}

func TestJitterStaysInRange(t *testing.T) {
	m := NewManager(Config{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 1, Jitter: 0.2})
	for i := 0; i < 50; i++ {
		d := m.NextDelay(1)
		assert.GreaterOrEqual(t, d, 80*time.Millisecond)
		assert.LessOrEqual(t, d, 120*time.Millisecond)
	}
}

func TestPermanentNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}
