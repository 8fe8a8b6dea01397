package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmmcquay/chess-study/internal/config"
	"github.com/dmmcquay/chess-study/internal/logging"
)

func newTestLimiter(t *testing.T, cfg *config.RateLimitConfig) (*Limiter, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	cfg.Enabled = true
	return newLimiter(cfg, logging.NewTestLogger(nil), clock.Now), clock
}

func TestNewLimiterDisabled(t *testing.T) {
	l := NewLimiter(&config.RateLimitConfig{Enabled: false}, logging.NewTestLogger(nil))
	assert.Nil(t, l)

	// A nil limiter allows everything
	assert.NoError(t, l.Allow("client", "nextMove"))
	assert.False(t, l.Status().Enabled)
	l.Reset()
	l.Close()
}

func TestLimiterGlobalBurst(t *testing.T) {
	l, clock := newTestLimiter(t, &config.RateLimitConfig{RequestsPerMin: 60, BurstSize: 3})

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow("", "nextMove"))
	}

	err := l.Allow("", "nextMove")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLimited))

	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, "global", limitErr.Scope)
	assert.Equal(t, time.Second, limitErr.RetryAfter)

	clock.Advance(time.Second)
	assert.NoError(t, l.Allow("", "nextMove"))
}

func TestLimiterToolNamesIgnoreCase(t *testing.T) {
	// Config keys arrive lower-cased
	l, _ := newTestLimiter(t, &config.RateLimitConfig{
		RequestsPerMin: 600,
		BurstSize:      100,
		PerToolLimits:  map[string]int{"startanalysis": 6},
	})

	require.NoError(t, l.Allow("", "startAnalysis"))
	err := l.Allow("", "startAnalysis")
	require.Error(t, err)

	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, "tool", limitErr.Scope)
	assert.Equal(t, "startanalysis", limitErr.Tool)

	// Other tools are unaffected
	assert.NoError(t, l.Allow("", "nextMove"))
}

func TestLimiterRefundsOnRejection(t *testing.T) {
	l, _ := newTestLimiter(t, &config.RateLimitConfig{
		RequestsPerMin: 600,
		BurstSize:      10,
		PerToolLimits:  map[string]int{"startAnalysis": 60},
	})

	require.NoError(t, l.Allow("", "startAnalysis"))
	before := l.Status().GlobalTokens

	require.Error(t, l.Allow("", "startAnalysis"))
	assert.InDelta(t, before, l.Status().GlobalTokens, 1e-9)
}

func TestLimiterPerClient(t *testing.T) {
	l, _ := newTestLimiter(t, &config.RateLimitConfig{RequestsPerMin: 60, BurstSize: 2})
	l.global = newBucketWithClock(100, 6000, l.now)

	require.NoError(t, l.Allow("alice", "getState"))
	require.NoError(t, l.Allow("alice", "getState"))

	err := l.Allow("alice", "getState")
	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, "client", limitErr.Scope)

	assert.NoError(t, l.Allow("bob", "getState"))
	assert.Equal(t, 2, l.ActiveClients())
}

func TestLimiterDropsIdleClients(t *testing.T) {
	l, clock := newTestLimiter(t, &config.RateLimitConfig{RequestsPerMin: 60, BurstSize: 5})

	require.NoError(t, l.Allow("alice", "getState"))
	clock.Advance(10 * time.Minute)
	require.NoError(t, l.Allow("bob", "getState"))

	clock.Advance(25 * time.Minute)
	assert.Equal(t, 1, l.dropIdleClients())
	assert.Equal(t, 1, l.ActiveClients())
}

func TestLimiterReset(t *testing.T) {
	l, _ := newTestLimiter(t, &config.RateLimitConfig{RequestsPerMin: 60, BurstSize: 1})

	require.NoError(t, l.Allow("alice", "getState"))
	require.Error(t, l.Allow("alice", "getState"))

	l.Reset()
	assert.NoError(t, l.Allow("alice", "getState"))
}

func TestLimiterStatus(t *testing.T) {
	l, _ := newTestLimiter(t, &config.RateLimitConfig{
		RequestsPerMin: 120,
		BurstSize:      4,
		PerToolLimits:  map[string]int{"startAnalysis": 60},
	})

	st := l.Status()
	assert.True(t, st.Enabled)
	assert.Equal(t, 120, st.RequestsPerMin)
	assert.Equal(t, 4, st.BurstSize)
	assert.InDelta(t, 4.0, st.GlobalTokens, 1e-9)
	assert.InDelta(t, 2.0, st.ToolTokens["startanalysis"], 1e-9)
}
