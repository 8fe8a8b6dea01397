package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmmcquay/chess-study/internal/logging"
	"github.com/dmmcquay/chess-study/internal/metrics"
	"github.com/dmmcquay/chess-study/internal/retry"
)

var errSupervisorStopped = errors.New("supervisor stopped")

// Supervisor keeps the engine alive: it pings it periodically and restarts
// it with exponential backoff when it dies or stops answering.
type Supervisor struct {
	engine       EngineInterface
	logger       logging.ContextLogger
	retryManager *retry.Manager
	pingTimeout  time.Duration
	prom         *metrics.PrometheusCollector
	stats        *metrics.Collector

	// startMu serializes engine starts from Ensure and the supervision loop.
	startMu sync.Mutex

	mu                  sync.RWMutex
	running             bool
	stopCh              chan struct{}
	restartCh           chan struct{}
	exitCh              chan struct{}
	healthCheckInterval time.Duration
	onRestart           []func()
}

// NewSupervisor wraps engine. pingTimeout bounds each health check.
func NewSupervisor(engine EngineInterface, logger logging.ContextLogger, pingTimeout time.Duration) *Supervisor {
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	s := &Supervisor{
		engine:              engine,
		logger:              logger,
		pingTimeout:         pingTimeout,
		restartCh:           make(chan struct{}, 1),
		exitCh:              make(chan struct{}, 1),
		healthCheckInterval: 30 * time.Second,
	}
	s.SetRetryConfig(retry.DefaultConfig())
	if n, ok := engine.(exitNotifier); ok {
		n.OnExit(s.engineExited)
	}
	return s
}

// exitNotifier is implemented by engines that report a crash as it happens.
type exitNotifier interface {
	OnExit(fn func(err error))
}

func (s *Supervisor) engineExited(err error) {
	s.recordStatus(false)
	select {
	case s.exitCh <- struct{}{}:
	default:
	}
}

// SetRetryConfig replaces the restart backoff policy.
func (s *Supervisor) SetRetryConfig(cfg retry.Config) {
	if cfg.OnRetry == nil {
		cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
			s.logger.Warn("Engine start failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		}
	}
	s.retryManager = retry.NewManager(cfg)
}

// SetHealthCheckInterval changes how often the engine is pinged.
func (s *Supervisor) SetHealthCheckInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthCheckInterval = d
}

func (s *Supervisor) SetMetrics(prom *metrics.PrometheusCollector, stats *metrics.Collector) {
	s.prom = prom
	s.stats = stats
}

// OnRestart registers a hook run after every engine (re)start.
func (s *Supervisor) OnRestart(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRestart = append(s.onRestart, fn)
}

// Start launches the supervision loop, which brings the engine up in the background.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("supervisor already running")
	}

	s.running = true
	s.stopCh = make(chan struct{})
	go s.supervise(ctx, s.stopCh)

	return nil
}

// Ensure starts the engine synchronously when it is down and makes sure the
// supervision loop runs. Used to bring the engine up on first use.
func (s *Supervisor) Ensure(ctx context.Context) error {
	if err := s.startOnce(ctx); err != nil {
		return err
	}

	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()
	if !running {
		// The loop must outlive the request that triggered it
		return s.Start(context.WithoutCancel(ctx))
	}
	return nil
}

// Stop stops the supervisor and the engine.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return s.engine.Stop()
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	return s.engine.Stop()
}

func (s *Supervisor) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// GetEngine returns the supervised engine.
func (s *Supervisor) GetEngine() EngineInterface {
	return s.engine
}

// Restart requests an engine restart from the supervision loop.
func (s *Supervisor) Restart() {
	select {
	case s.restartCh <- struct{}{}:
		s.logger.Info("Manual restart requested")
	default:
		// Restart already pending
	}
}

func (s *Supervisor) supervise(ctx context.Context, stopCh chan struct{}) {
	s.logger.Info("Starting engine supervisor")

	if !s.engine.IsRunning() {
		s.startWithRetry(ctx, stopCh)
	}

	s.mu.RLock()
	interval := s.healthCheckInterval
	s.mu.RUnlock()
	healthTicker := time.NewTicker(interval)
	defer healthTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Supervisor context cancelled")
			return

		case <-stopCh:
			s.logger.Info("Supervisor stopped")
			return

		case <-s.restartCh:
			s.logger.Info("Processing restart request")
			if err := s.engine.Stop(); err != nil {
				s.logger.Error("Failed to stop engine for restart", "error", err)
			}
			s.recordRestart()
			s.startWithRetry(ctx, stopCh)

		case <-s.exitCh:
			if !s.engine.IsRunning() {
				s.logger.Warn("Engine exited, restarting")
				s.recordRestart()
				s.startWithRetry(ctx, stopCh)
			}

		case <-healthTicker.C:
			if !s.engine.IsRunning() {
				s.logger.Warn("Engine not running, restarting")
				s.recordRestart()
				s.startWithRetry(ctx, stopCh)
				continue
			}

			pingCtx, cancel := context.WithTimeout(ctx, s.pingTimeout)
			err := s.engine.Ping(pingCtx)
			cancel()
			s.recordHealth(err == nil)

			if err != nil {
				s.logger.Error("Engine health check failed", "error", err)
				if err := s.engine.Stop(); err != nil {
					s.logger.Error("Failed to stop unhealthy engine", "error", err)
				}
				s.recordRestart()
				s.startWithRetry(ctx, stopCh)
			}
		}
	}
}

func (s *Supervisor) startWithRetry(ctx context.Context, stopCh chan struct{}) {
	err := s.retryManager.Run(ctx, func(retryCtx context.Context) error {
		select {
		case <-stopCh:
			return retry.Permanent(errSupervisorStopped)
		default:
		}
		return s.startOnce(retryCtx)
	})

	if err != nil && !errors.Is(err, errSupervisorStopped) {
		s.logger.Error("Failed to start engine after retries", "error", err)
	}
}

// startOnce starts the engine, unless it is already up, and verifies it
// answers isready. ctx bounds the handshake only.
func (s *Supervisor) startOnce(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if s.engine.IsRunning() {
		return nil
	}
	s.logger.Info("Starting engine")

	if err := s.engine.Start(ctx); err != nil {
		s.logger.Error("Failed to start engine", "error", err)
		s.recordStatus(false)
		return err
	}

	pingCtx, cancel := context.WithTimeout(ctx, s.pingTimeout)
	defer cancel()

	if err := s.engine.Ping(pingCtx); err != nil {
		s.logger.Error("Engine not responsive after start", "error", err)
		_ = s.engine.Stop()
		s.recordStatus(false)
		return err
	}

	s.logger.Info("Engine started successfully", "engine", s.engine.Name())
	s.recordStatus(true)

	s.mu.RLock()
	hooks := append([]func(){}, s.onRestart...)
	s.mu.RUnlock()
	for _, hook := range hooks {
		hook()
	}
	return nil
}

func (s *Supervisor) recordStatus(running bool) {
	if s.prom != nil {
		s.prom.RecordEngineStatus(running, s.engine.Name())
	}
}

func (s *Supervisor) recordHealth(ok bool) {
	if s.prom != nil {
		s.prom.RecordEngineHealthCheck(ok)
	}
}

func (s *Supervisor) recordRestart() {
	if s.prom != nil {
		s.prom.RecordEngineRestart()
	}
	if s.stats != nil {
		s.stats.RecordRestart()
	}
}
