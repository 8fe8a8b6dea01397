package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmmcquay/chess-study/internal/logging"
)

// DefaultTimeout bounds a signal-triggered shutdown.
const DefaultTimeout = 30 * time.Second

type step struct {
	name string
	fn   func(context.Context) error
}

// Manager stops registered components in reverse registration order, so
// whatever was started last is stopped first.
type Manager struct {
	logger logging.ContextLogger

	mu    sync.Mutex
	steps []step

	once sync.Once
	done chan struct{}
	err  error
}

func NewManager(logger logging.ContextLogger) *Manager {
	return &Manager{
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Register adds a component to stop. Registering after Shutdown has no effect.
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, step{name: name, fn: fn})
}

// HandleSignals shuts down on SIGINT or SIGTERM, or when ctx ends.
func (m *Manager) HandleSignals(ctx context.Context) {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer stop()
		select {
		case <-sigCtx.Done():
			m.logger.Info("Shutdown requested", "cause", context.Cause(sigCtx))
			_ = m.Shutdown(DefaultTimeout)
		case <-m.done:
		}
	}()
}

// Shutdown stops every component once. Later calls return the first result.
func (m *Manager) Shutdown(timeout time.Duration) error {
	m.once.Do(func() {
		defer close(m.done)

		m.mu.Lock()
		steps := append([]step(nil), m.steps...)
		m.mu.Unlock()

		m.logger.Info("Starting graceful shutdown", "components", len(steps), "timeout", timeout)
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var errs []error
		for i := len(steps) - 1; i >= 0; i-- {
			if err := m.run(ctx, steps[i]); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", steps[i].name, err))
			}
		}
		m.err = errors.Join(errs...)

		if m.err != nil {
			m.logger.Error("Graceful shutdown completed with errors", "errors", len(errs))
		} else {
			m.logger.Info("Graceful shutdown completed")
		}
	})
	<-m.done
	return m.err
}

func (m *Manager) run(ctx context.Context, s step) error {
	if err := ctx.Err(); err != nil {
		m.logger.Warn("Skipping component, shutdown deadline passed", "component", s.name)
		return err
	}

	start := time.Now()
	err := s.fn(ctx)
	if err != nil {
		m.logger.Error("Component shutdown failed", "component", s.name, "error", err, "elapsed", time.Since(start))
		return err
	}
	m.logger.Info("Component stopped", "component", s.name, "elapsed", time.Since(start))
	return nil
}

// Done is closed once shutdown has finished.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until shutdown has finished.
func (m *Manager) Wait() {
	<-m.done
}
