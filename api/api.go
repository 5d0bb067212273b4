// Package api serves the read-only observability endpoints: hub
// statistics, per-connection details, liveness and Prometheus metrics.
package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/floorlink/floorlink/hub"
	"github.com/floorlink/floorlink/metric"
)

// Options configures the API server
type Options struct {
	// Logger is the parent logger; nil disables logging
	Logger *slog.Logger
	// Metrics is the shared registry; nil disables the /metrics endpoint
	Metrics *metric.MetricsRegistry
}

// Server exposes the observability API over chi
type Server struct {
	monitor *hub.Monitor
	opts    Options
	logger  *slog.Logger
}

// New constructs the API server
func New(m *hub.Monitor, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		monitor: m,
		opts:    opts,
		logger:  logger.With("component", "api"),
	}
}

// Router builds the HTTP routes
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1/realtime", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/connections", s.handleConnections)
		r.Get("/connections/{id}", s.handleConnection)
	})
	if s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics.Handler())
	}
	return r
}

// handleHealth reports liveness plus the monitor's aggregate state. The
// status code stays 200 even in the warning band; only critical flips to
// 503 so load balancers shed traffic exactly when the hub is saturated.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.monitor.State()
	code := http.StatusOK
	if state == hub.HealthCritical {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]any{"status": state})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.monitor.StatsSnapshot())
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.monitor.ConnectionList())
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	detail, ok := s.monitor.ConnectionDetail(id)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "connection not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode failed", "error", err)
	}
}
