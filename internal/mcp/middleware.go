package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cast"

	"github.com/dmmcquay/chess-study/internal/engine"
	"github.com/dmmcquay/chess-study/internal/logging"
	"github.com/dmmcquay/chess-study/internal/metrics"
	"github.com/dmmcquay/chess-study/internal/ratelimit"
	"github.com/dmmcquay/chess-study/internal/retry"
)

const anonymousClient = "anonymous"

type clientIDKey struct{}

// ContextWithClientID tags ctx with the caller's identity for rate limiting.
func ContextWithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey{}, clientID)
}

// Middleware wraps MCP tool handlers with rate limiting, metrics and logging.
type Middleware struct {
	logger      logging.ContextLogger
	metrics     *metrics.Collector
	prom        *metrics.PrometheusCollector
	rateLimiter *ratelimit.Limiter
	retryDelay  time.Duration
}

// NewMiddleware creates a new middleware instance. stats and rateLimiter may be nil.
func NewMiddleware(logger logging.ContextLogger, stats *metrics.Collector, rateLimiter *ratelimit.Limiter) *Middleware {
	return &Middleware{
		logger:      logger,
		metrics:     stats,
		rateLimiter: rateLimiter,
		retryDelay:  250 * time.Millisecond,
	}
}

// SetPrometheus exports tool calls and rate limit decisions.
func (m *Middleware) SetPrometheus(prom *metrics.PrometheusCollector) {
	m.prom = prom
}

// ToolHandler is the function signature for MCP tool handlers.
type ToolHandler func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// WrapTool gives each call its own correlation and request IDs, charges it
// against the rate limiter and records the outcome.
func (m *Middleware) WrapTool(toolName string, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()

		if _, ok := logging.CorrelationIDFromContext(ctx); !ok {
			ctx = logging.ContextWithCorrelationID(ctx, logging.GenerateCorrelationID())
		}
		ctx = logging.ContextWithRequestID(ctx, logging.GenerateRequestID())

		clientID := extractClientID(ctx, request)
		logger := m.logger.WithContext(ctx).WithField("tool", toolName)
		logger.Info("Tool request received", "client", clientID)

		if err := m.rateLimiter.Allow(clientID, toolName); err != nil {
			m.record(toolName, "rate_limited", time.Since(start))
			m.recordRateLimit(clientID, toolName, true)
			return nil, fmt.Errorf("tool %s: %w", toolName, err)
		}
		m.recordRateLimit(clientID, toolName, false)

		result, err := handler(ctx, request)

		status := "success"
		if err != nil {
			status = "error"
			logger.Error("Tool request failed", "client", clientID, "error", err, "duration", time.Since(start))
		} else {
			logger.Info("Tool request completed", "client", clientID, "duration", time.Since(start))
		}
		m.record(toolName, status, time.Since(start))

		return result, err
	}
}

// WrapToolWithRetry retries the wrapped handler while the engine is down,
// which covers the window in which the supervisor restarts it. Any other
// error, rate limiting included, is returned at once.
func (m *Middleware) WrapToolWithRetry(toolName string, handler ToolHandler, maxRetries int) ToolHandler {
	wrapped := m.WrapTool(toolName, handler)

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		mgr := retry.NewManager(retry.Config{
			MaxAttempts:  maxRetries + 1,
			InitialDelay: m.retryDelay,
			MaxDelay:     4 * m.retryDelay,
			Multiplier:   2.0,
			OnRetry: func(attempt int, err error, delay time.Duration) {
				m.logger.WithContext(ctx).Debug("Retrying tool request",
					"tool", toolName, "attempt", attempt, "backoff", delay)
			},
		})

		var result *mcp.CallToolResult
		err := mgr.Run(ctx, func(ctx context.Context) error {
			res, err := wrapped(ctx, request)
			if err != nil {
				if errors.Is(err, engine.ErrEngineNotRunning) {
					return err
				}
				return retry.Permanent(err)
			}
			result = res
			return nil
		})
		if err != nil {
			return nil, err
		}
		return result, nil
	}
}

func (m *Middleware) record(tool, status string, d time.Duration) {
	if m.metrics != nil {
		m.metrics.RecordToolCall(tool, status, d)
	}
	if m.prom != nil {
		m.prom.RecordToolCall(tool, status, d.Seconds())
	}
}

func (m *Middleware) recordRateLimit(client, tool string, hit bool) {
	if m.prom == nil || m.rateLimiter == nil {
		return
	}
	m.prom.RecordRateLimit(client, tool, hit)
	m.prom.SetActiveClients(float64(m.rateLimiter.ActiveClients()))
}

// extractClientID looks for a client identifier on the context, then in the
// tool arguments.
func extractClientID(ctx context.Context, request mcp.CallToolRequest) string {
	if clientID, ok := ctx.Value(clientIDKey{}).(string); ok && clientID != "" {
		return clientID
	}
	if clientID := cast.ToString(arguments(request)["clientID"]); clientID != "" {
		return clientID
	}
	return anonymousClient
}
