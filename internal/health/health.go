package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/dmmcquay/chess-study/internal/logging"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// DefaultCheckTimeout bounds each check run by CheckHealth.
const DefaultCheckTimeout = 5 * time.Second

// Check reports a component's health; nil means healthy.
type Check func(ctx context.Context) error

// Component is the result of one check.
type Component struct {
	Name        string        `json:"name"`
	Status      Status        `json:"status"`
	Critical    bool          `json:"critical"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration_ns"`
}

type Response struct {
	Status     Status      `json:"status"`
	Timestamp  time.Time   `json:"timestamp"`
	Components []Component `json:"components,omitempty"`
	Version    string      `json:"version,omitempty"`
	Uptime     string      `json:"uptime,omitempty"`
}

type registered struct {
	check    Check
	critical bool
}

// Checker runs registered checks. A failing critical check makes the
// service unhealthy; any other failure only degrades it.
type Checker struct {
	logger  logging.ContextLogger
	version string
	started time.Time
	timeout time.Duration

	mu     sync.RWMutex
	checks map[string]registered
}

func NewChecker(logger logging.ContextLogger, version string) *Checker {
	return &Checker{
		logger:  logger,
		version: version,
		started: time.Now(),
		timeout: DefaultCheckTimeout,
		checks:  make(map[string]registered),
	}
}

// SetTimeout changes how long a single check may run.
func (c *Checker) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// Register adds or replaces a check.
func (c *Checker) Register(name string, critical bool, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = registered{check: check, critical: critical}
}

// CheckHealth runs every check concurrently and combines the results.
func (c *Checker) CheckHealth(ctx context.Context) Response {
	c.mu.RLock()
	checks := make(map[string]registered, len(c.checks))
	for name, r := range c.checks {
		checks[name] = r
	}
	c.mu.RUnlock()

	resp := Response{
		Status:     StatusHealthy,
		Timestamp:  time.Now().UTC(),
		Version:    c.version,
		Uptime:     time.Since(c.started).Round(time.Second).String(),
		Components: make([]Component, 0, len(checks)),
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = resp.Components
	)
	for name, r := range checks {
		wg.Add(1)
		go func(name string, r registered) {
			defer wg.Done()
			comp := c.run(ctx, name, r)
			mu.Lock()
			results = append(results, comp)
			mu.Unlock()
		}(name, r)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	resp.Components = results

	for _, comp := range results {
		switch {
		case comp.Status == StatusHealthy:
		case comp.Critical:
			resp.Status = StatusUnhealthy
		case resp.Status == StatusHealthy:
			resp.Status = StatusDegraded
		}
	}
	return resp
}

func (c *Checker) run(ctx context.Context, name string, r registered) Component {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	comp := Component{
		Name:        name,
		Status:      StatusHealthy,
		Critical:    r.critical,
		LastChecked: start.UTC(),
	}

	err := r.check(checkCtx)
	comp.Duration = time.Since(start)
	if err != nil {
		comp.Message = err.Error()
		comp.Status = StatusDegraded
		if r.critical {
			comp.Status = StatusUnhealthy
		}
		c.logger.WithField("component", name).Warn("Health check failed", "error", err)
	}
	return comp
}

// Pinger is anything that can answer a liveness probe.
type Pinger interface {
	IsRunning() bool
	Ping(ctx context.Context) error
}

// PingCheck turns a Pinger into a Check.
func PingCheck(name string, p Pinger) Check {
	return func(ctx context.Context) error {
		if !p.IsRunning() {
			return fmt.Errorf("%s is not running", name)
		}
		return p.Ping(ctx)
	}
}

// LivenessHandler answers as long as the process can serve requests.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.write(w, http.StatusOK, Response{
			Status:    StatusHealthy,
			Timestamp: time.Now().UTC(),
			Version:   c.version,
			Uptime:    time.Since(c.started).Round(time.Second).String(),
		})
	}
}

// ReadinessHandler runs the checks; only an unhealthy result fails the probe.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if _, ok := logging.CorrelationIDFromContext(ctx); !ok {
			ctx = logging.ContextWithCorrelationID(ctx, logging.GenerateCorrelationID())
		}
		c.logger.WithContext(ctx).Debug("Performing readiness check")

		resp := c.CheckHealth(ctx)
		code := http.StatusOK
		if resp.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.write(w, code, resp)
	}
}

func (c *Checker) write(w http.ResponseWriter, code int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		c.logger.Error("Failed to encode health response", "error", err)
	}
}
