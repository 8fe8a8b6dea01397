package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusOnce     sync.Once
	prometheusInstance *PrometheusCollector
)

// PrometheusCollector exports the chess-study metrics.
type PrometheusCollector struct {
	// MCP tool metrics
	toolCallsTotal   *prometheus.CounterVec
	toolErrorsTotal  *prometheus.CounterVec
	toolDurationSecs *prometheus.HistogramVec

	// Rate limit metrics
	rateLimitHitsTotal   *prometheus.CounterVec
	rateLimitChecksTotal prometheus.Counter

	// Engine metrics
	engineStatus        *prometheus.GaugeVec
	engineRestartsTotal prometheus.Counter
	engineHealthChecks  *prometheus.CounterVec
	engineLinesTotal    *prometheus.CounterVec
	searchesTotal       *prometheus.CounterVec
	searchDuration      prometheus.Histogram

	// Study metrics
	studyCommandsTotal *prometheus.CounterVec
	gamesLoaded        prometheus.Gauge

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Resource metrics
	activeClients     prometheus.Gauge
	activeConnections prometheus.Gauge

	// Cache metrics
	cacheHitsTotal   prometheus.Counter
	cacheMissesTotal prometheus.Counter
	cacheSize        prometheus.Gauge
	cacheItems       prometheus.Gauge
}

// NewPrometheusCollector returns the process-wide collector.
func NewPrometheusCollector() *PrometheusCollector {
	prometheusOnce.Do(func() {
		prometheusInstance = &PrometheusCollector{
			toolCallsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chess_study_tool_calls_total",
					Help: "Total number of MCP tool calls",
				},
				[]string{"tool", "status"},
			),
			toolErrorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chess_study_tool_errors_total",
					Help: "Total number of MCP tool errors",
				},
				[]string{"tool", "error_type"},
			),
			toolDurationSecs: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "chess_study_tool_duration_seconds",
					Help:    "Duration of MCP tool calls in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),

			rateLimitHitsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chess_study_rate_limit_hits_total",
					Help: "Total number of rate limit hits",
				},
				[]string{"client", "tool"},
			),
			rateLimitChecksTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "chess_study_rate_limit_checks_total",
					Help: "Total number of rate limit checks",
				},
			),

			engineStatus: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "chess_study_engine_status",
					Help: "Status of the UCI engine (1=running, 0=stopped)",
				},
				[]string{"engine"},
			),
			engineRestartsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "chess_study_engine_restarts_total",
					Help: "Total number of engine restarts",
				},
			),
			engineHealthChecks: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chess_study_engine_health_checks_total",
					Help: "Total number of engine health checks",
				},
				[]string{"status"},
			),
			engineLinesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chess_study_engine_lines_total",
					Help: "Lines received from the engine by kind",
				},
				[]string{"kind"},
			),
			searchesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chess_study_searches_total",
					Help: "Analysis requests by how they were answered",
				},
				[]string{"source"},
			),
			searchDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "chess_study_search_duration_seconds",
					Help:    "Time from go to bestmove",
					Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
				},
			),

			studyCommandsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chess_study_commands_total",
					Help: "Study session commands by name and outcome",
				},
				[]string{"command", "status"},
			),
			gamesLoaded: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "chess_study_games_loaded",
					Help: "Number of games in the current collection",
				},
			),

			httpRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chess_study_http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			httpRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "chess_study_http_request_duration_seconds",
					Help:    "Duration of HTTP requests in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "path"},
			),

			activeClients: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "chess_study_active_clients",
					Help: "Number of active MCP clients",
				},
			),
			activeConnections: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "chess_study_websocket_connections",
					Help: "Number of open websocket connections",
				},
			),

			cacheHitsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "chess_study_cache_hits_total",
					Help: "Total number of analysis cache hits",
				},
			),
			cacheMissesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "chess_study_cache_misses_total",
					Help: "Total number of analysis cache misses",
				},
			),
			cacheSize: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "chess_study_cache_size_bytes",
					Help: "Current cache size in bytes",
				},
			),
			cacheItems: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "chess_study_cache_items",
					Help: "Current number of items in cache",
				},
			),
		}
	})
	return prometheusInstance
}

func (p *PrometheusCollector) RecordToolCall(tool, status string, durationSecs float64) {
	p.toolCallsTotal.WithLabelValues(tool, status).Inc()
	p.toolDurationSecs.WithLabelValues(tool).Observe(durationSecs)

	if status == "error" {
		p.toolErrorsTotal.WithLabelValues(tool, "general").Inc()
	}
}

func (p *PrometheusCollector) RecordRateLimit(client, tool string, hit bool) {
	p.rateLimitChecksTotal.Inc()
	if hit {
		p.rateLimitHitsTotal.WithLabelValues(client, tool).Inc()
	}
}

// RecordEngineStatus sets the status gauge for the named engine binary.
func (p *PrometheusCollector) RecordEngineStatus(running bool, engine string) {
	value := 0.0
	if running {
		value = 1.0
	}
	p.engineStatus.WithLabelValues(engine).Set(value)
}

func (p *PrometheusCollector) RecordEngineRestart() {
	p.engineRestartsTotal.Inc()
}

func (p *PrometheusCollector) RecordEngineHealthCheck(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	p.engineHealthChecks.WithLabelValues(status).Inc()
}

// RecordEngineLine counts one inbound engine line ("bestmove", "info" or "other").
func (p *PrometheusCollector) RecordEngineLine(kind string) {
	p.engineLinesTotal.WithLabelValues(kind).Inc()
}

// RecordSearch counts an analysis request answered by "engine" or "cache".
func (p *PrometheusCollector) RecordSearch(source string) {
	p.searchesTotal.WithLabelValues(source).Inc()
}

func (p *PrometheusCollector) RecordSearchDuration(durationSecs float64) {
	p.searchDuration.Observe(durationSecs)
}

func (p *PrometheusCollector) RecordStudyCommand(command, status string) {
	p.studyCommandsTotal.WithLabelValues(command, status).Inc()
}

func (p *PrometheusCollector) SetGamesLoaded(count int) {
	p.gamesLoaded.Set(float64(count))
}

func (p *PrometheusCollector) RecordHTTPRequest(method, path, status string, durationSecs float64) {
	p.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	p.httpRequestDuration.WithLabelValues(method, path).Observe(durationSecs)
}

func (p *PrometheusCollector) SetActiveClients(count float64) {
	p.activeClients.Set(count)
}

// SetActiveConnections sets the number of open websocket connections.
func (p *PrometheusCollector) SetActiveConnections(count float64) {
	p.activeConnections.Set(count)
}

func (p *PrometheusCollector) RecordCacheHit() {
	p.cacheHitsTotal.Inc()
}

func (p *PrometheusCollector) RecordCacheMiss() {
	p.cacheMissesTotal.Inc()
}

func (p *PrometheusCollector) SetCacheStats(items, sizeBytes float64) {
	p.cacheItems.Set(items)
	p.cacheSize.Set(sizeBytes)
}
