package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmmcquay/chess-study/internal/logging"
	"github.com/dmmcquay/chess-study/internal/metrics"
	"github.com/dmmcquay/chess-study/internal/retry"
)

func newTestSupervisor(eng EngineInterface) *Supervisor {
	s := NewSupervisor(eng, logging.NewTestLogger(nil), 100*time.Millisecond)
	s.SetRetryConfig(retry.Config{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	})
	s.SetHealthCheckInterval(10 * time.Millisecond)
	s.SetMetrics(metrics.NewPrometheusCollector(), metrics.NewCollector())
	return s
}

func TestSupervisorStartsEngine(t *testing.T) {
	eng := NewMockEngine()
	s := newTestSupervisor(eng)

	var restarts atomic.Int32
	s.OnRestart(func() { restarts.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Start(ctx))
	assert.Error(t, s.Start(ctx), "second start must fail")

	assert.Eventually(t, eng.IsRunning, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return restarts.Load() >= 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.False(t, eng.IsRunning())
}

func TestSupervisorRestartsDeadEngine(t *testing.T) {
	eng := NewMockEngine()
	s := newTestSupervisor(eng)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	require.Eventually(t, eng.IsRunning, time.Second, 5*time.Millisecond)
	eng.SetRunning(false)

	assert.Eventually(t, func() bool { return eng.StartCalls() >= 2 && eng.IsRunning() }, time.Second, 5*time.Millisecond)
}

func TestSupervisorPingsHealthyEngine(t *testing.T) {
	eng := NewMockEngine()
	s := newTestSupervisor(eng)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	assert.Eventually(t, func() bool { return eng.PingCalls() >= 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, eng.StartCalls())
}

func TestSupervisorManualRestart(t *testing.T) {
	eng := NewMockEngine()
	s := newTestSupervisor(eng)
	s.SetHealthCheckInterval(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	require.Eventually(t, eng.IsRunning, time.Second, 5*time.Millisecond)
	s.Restart()

	assert.Eventually(t, func() bool { return eng.StartCalls() == 2 && eng.StopCalls() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestSupervisorEnsure(t *testing.T) {
	eng := NewMockEngine()
	s := newTestSupervisor(eng)
	defer s.Stop()

	require.NoError(t, s.Ensure(context.Background()))
	assert.True(t, eng.IsRunning())
	assert.True(t, s.IsRunning())

	// Already up: nothing to do
	require.NoError(t, s.Ensure(context.Background()))
	assert.Equal(t, 1, eng.StartCalls())
}

func TestSupervisorEnsureFailure(t *testing.T) {
	eng := NewMockEngine()
	eng.SetStartError(errors.New("exec: not found"))
	s := newTestSupervisor(eng)

	assert.Error(t, s.Ensure(context.Background()))
	assert.False(t, s.IsRunning())
}

func TestSupervisorUnresponsiveAfterStart(t *testing.T) {
	eng := NewMockEngine()
	eng.SetPingError(ErrPingTimeout)
	s := newTestSupervisor(eng)

	err := s.Ensure(context.Background())
	assert.ErrorIs(t, err, ErrPingTimeout)
	assert.False(t, eng.IsRunning(), "unresponsive engine is stopped")
}

func TestSupervisorRestartsCrashedEngine(t *testing.T) {
	eng := NewMockEngine()
	s := newTestSupervisor(eng)
	s.SetHealthCheckInterval(time.Hour)

	var restarts atomic.Int32
	s.OnRestart(func() { restarts.Add(1) })

	require.NoError(t, s.Ensure(context.Background()))
	defer s.Stop()
	require.Equal(t, int32(1), restarts.Load())

	eng.Crash(errors.New("signal: segmentation fault"))

	assert.Eventually(t, func() bool {
		return eng.StartCalls() == 2 && eng.IsRunning() && restarts.Load() == 2
	}, time.Second, 5*time.Millisecond)
}
