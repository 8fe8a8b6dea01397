package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmmcquay/chess-study/internal/engine"
	"github.com/dmmcquay/chess-study/internal/health"
	"github.com/dmmcquay/chess-study/internal/logging"
	"github.com/dmmcquay/chess-study/internal/metrics"
	"github.com/dmmcquay/chess-study/internal/study"
)

const maxCommandBody = 8 << 20

// Study is the part of the session the HTTP surface drives.
type Study interface {
	Dispatch(ctx context.Context, req study.Request) (study.Snapshot, error)
	State() study.Snapshot
	Subscribe() (<-chan study.Snapshot, func())
}

// CommandResponse is the body of POST /api/command.
type CommandResponse struct {
	Snapshot study.Snapshot `json:"snapshot"`
	Error    string         `json:"error,omitempty"`
}

// HTTPServer serves health, metrics, the JSON command API and the websocket.
type HTTPServer struct {
	server *http.Server
	logger logging.ContextLogger
	study  Study
	hub    *Hub

	cancel context.CancelFunc
	done   sync.WaitGroup
	addr   net.Addr
	mu     sync.Mutex
}

func NewHTTPServer(addr string, logger logging.ContextLogger, checker *health.Checker, s Study, prom *metrics.PrometheusCollector) *HTTPServer {
	srv := &HTTPServer{
		logger: logger,
		study:  s,
		hub:    NewHub(s, logger, prom),
	}
	srv.server = &http.Server{
		Addr:              addr,
		Handler:           srv.routes(checker, prom),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes(checker *health.Checker, prom *metrics.PrometheusCollector) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestContext(s.logger))
	if prom != nil {
		r.Use(PrometheusMiddleware(prom))
	}

	r.Get("/health", checker.LivenessHandler())
	r.Get("/ready", checker.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Post("/command", s.handleCommand)
	})
	r.Get("/ws", s.hub.ServeWS)
	return r
}

// Handler exposes the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Hub is the websocket hub behind /ws.
func (s *HTTPServer) Hub() *Hub {
	return s.hub
}

// Start listens in the background and starts relaying snapshots.
func (s *HTTPServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}

	hubCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.cancel = cancel
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.done.Add(2)
	go func() {
		defer s.done.Done()
		s.hub.Run(hubCtx)
	}()
	go func() {
		defer s.done.Done()
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
	return nil
}

// Addr is the bound address once Start has succeeded.
func (s *HTTPServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr == nil {
		return s.server.Addr
	}
	return s.addr.String()
}

// Stop shuts the server down and disconnects websocket clients.
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	err := s.server.Shutdown(ctx)

	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.done.Wait()
	return err
}

func (s *HTTPServer) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.study.State(), s.logger)
}

func (s *HTTPServer) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req study.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, CommandResponse{Snapshot: s.study.State(), Error: "invalid command: " + err.Error()}, s.logger)
		return
	}

	snap, err := s.study.Dispatch(r.Context(), req)
	resp := CommandResponse{Snapshot: snap}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, statusFor(err), resp, s.logger)
}

// statusFor maps command errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, study.ErrIllegalMove),
		errors.Is(err, study.ErrInvalidFEN),
		errors.Is(err, study.ErrUnknownCommand):
		return http.StatusBadRequest
	case errors.Is(err, study.ErrNoEngine):
		return http.StatusConflict
	case errors.Is(err, engine.ErrEngineNotRunning):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v interface{}, logger logging.ContextLogger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}
