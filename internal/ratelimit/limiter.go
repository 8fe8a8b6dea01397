package ratelimit

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmmcquay/chess-study/internal/config"
	"github.com/dmmcquay/chess-study/internal/logging"
)

// ErrLimited is wrapped by every rejection so callers can test with errors.Is.
var ErrLimited = errors.New("rate limit exceeded")

const (
	staleClientAfter = 30 * time.Minute
	sweepInterval    = 5 * time.Minute
)

// LimitError describes which limit rejected a call.
type LimitError struct {
	Scope      string
	Tool       string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	if e.Tool != "" && strings.Contains(e.Scope, "tool") {
		return fmt.Sprintf("%s: %s limit for %s, retry in %s", ErrLimited, e.Scope, e.Tool, e.RetryAfter.Round(time.Millisecond))
	}
	return fmt.Sprintf("%s: %s limit, retry in %s", ErrLimited, e.Scope, e.RetryAfter.Round(time.Millisecond))
}

func (e *LimitError) Unwrap() error { return ErrLimited }

// Status is a point-in-time view of the limiter.
type Status struct {
	Enabled        bool               `json:"enabled"`
	RequestsPerMin int                `json:"requestsPerMin,omitempty"`
	BurstSize      int                `json:"burstSize,omitempty"`
	GlobalTokens   float64            `json:"globalTokens,omitempty"`
	ActiveClients  int                `json:"activeClients"`
	ToolTokens     map[string]float64 `json:"toolTokens,omitempty"`
}

type clientBuckets struct {
	global   *Bucket
	tools    map[string]*Bucket
	lastSeen time.Time
}

// Limiter applies a global budget, per-tool budgets and the same budgets
// again per client. Tool names are matched case-insensitively since config
// keys arrive lower-cased.
type Limiter struct {
	logger    logging.ContextLogger
	perMinute int
	burst     int
	toolRates map[string]int
	now       func() time.Time

	global *Bucket
	tools  map[string]*Bucket

	mu      sync.Mutex
	clients map[string]*clientBuckets

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewLimiter returns nil when rate limiting is disabled; a nil *Limiter
// allows everything.
func NewLimiter(cfg *config.RateLimitConfig, logger logging.ContextLogger) *Limiter {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	l := newLimiter(cfg, logger, time.Now)
	go l.sweep()
	return l
}

func newLimiter(cfg *config.RateLimitConfig, logger logging.ContextLogger, now func() time.Time) *Limiter {
	l := &Limiter{
		logger:    logger,
		perMinute: cfg.RequestsPerMin,
		burst:     cfg.BurstSize,
		toolRates: make(map[string]int, len(cfg.PerToolLimits)),
		now:       now,
		tools:     make(map[string]*Bucket, len(cfg.PerToolLimits)),
		clients:   make(map[string]*clientBuckets),
		stopCh:    make(chan struct{}),
	}
	l.global = newBucketWithClock(l.burst, l.perMinute, now)
	for tool, rate := range cfg.PerToolLimits {
		key := strings.ToLower(tool)
		l.toolRates[key] = rate
		l.tools[key] = newBucketWithClock(l.toolBurst(rate), rate, now)
	}
	return l
}

// toolBurst scales the global burst to a tool's share of the global rate.
func (l *Limiter) toolBurst(rate int) int {
	if l.perMinute < 1 {
		return 1
	}
	burst := l.burst * rate / l.perMinute
	if burst < 1 {
		burst = 1
	}
	return burst
}

// Allow charges one call of tool by clientID against every applicable
// budget. A rejected call is refunded to the budgets it already passed.
func (l *Limiter) Allow(clientID, tool string) error {
	if l == nil {
		return nil
	}
	tool = strings.ToLower(tool)

	var taken []*Bucket
	take := func(b *Bucket, scope string) error {
		ok, wait := b.Take()
		if ok {
			taken = append(taken, b)
			return nil
		}
		for _, t := range taken {
			t.Refund()
		}
		l.logger.Warn("Rate limit exceeded", "scope", scope, "client", clientID, "tool", tool)
		return &LimitError{Scope: scope, Tool: tool, RetryAfter: wait}
	}

	if err := take(l.global, "global"); err != nil {
		return err
	}
	if b, ok := l.tools[tool]; ok {
		if err := take(b, "tool"); err != nil {
			return err
		}
	}
	if clientID == "" {
		return nil
	}

	c := l.client(clientID)
	if err := take(c.global, "client"); err != nil {
		return err
	}
	if b := l.clientTool(c, tool); b != nil {
		if err := take(b, "client tool"); err != nil {
			return err
		}
	}
	return nil
}

func (l *Limiter) client(id string) *clientBuckets {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clients[id]
	if !ok {
		c = &clientBuckets{
			global: newBucketWithClock(l.burst, l.perMinute, l.now),
			tools:  make(map[string]*Bucket),
		}
		l.clients[id] = c
	}
	c.lastSeen = l.now()
	return c
}

func (l *Limiter) clientTool(c *clientBuckets, tool string) *Bucket {
	rate, ok := l.toolRates[tool]
	if !ok {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := c.tools[tool]
	if !ok {
		b = newBucketWithClock(l.toolBurst(rate), rate, l.now)
		c.tools[tool] = b
	}
	return b
}

// Reset refills every bucket.
func (l *Limiter) Reset() {
	if l == nil {
		return
	}
	l.global.Fill()
	for _, b := range l.tools {
		b.Fill()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.clients {
		c.global.Fill()
		for _, b := range c.tools {
			b.Fill()
		}
	}
}

// Close stops the background sweep of idle clients.
func (l *Limiter) Close() {
	if l == nil {
		return
	}
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *Limiter) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.dropIdleClients()
		}
	}
}

func (l *Limiter) dropIdleClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	dropped := 0
	now := l.now()
	for id, c := range l.clients {
		if now.Sub(c.lastSeen) > staleClientAfter {
			delete(l.clients, id)
			dropped++
		}
	}
	if dropped > 0 {
		l.logger.Debug("Dropped idle rate limit clients", "count", dropped)
	}
	return dropped
}

// ActiveClients counts clients with their own buckets.
func (l *Limiter) ActiveClients() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *Limiter) Status() Status {
	if l == nil {
		return Status{}
	}
	st := Status{
		Enabled:        true,
		RequestsPerMin: l.perMinute,
		BurstSize:      l.burst,
		GlobalTokens:   l.global.Tokens(),
		ActiveClients:  l.ActiveClients(),
		ToolTokens:     make(map[string]float64, len(l.tools)),
	}
	for tool, b := range l.tools {
		st.ToolTokens[tool] = b.Tokens()
	}
	return st
}
