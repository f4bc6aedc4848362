// Package http provides the inbound HTTP adapter for vbk-watch: health checks
// for the watcher and the anchor lookup API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/archon-research/vbk-watch/internal/ports/inbound"
)

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	// Addr is the address to listen on (e.g., ":8080")
	Addr string

	// Logger for the server
	Logger *slog.Logger

	// ReadTimeout for HTTP requests
	ReadTimeout time.Duration

	// WriteTimeout for HTTP responses. Anchor lookups go to NodeCore, so this
	// should exceed the NodeCore client timeout.
	WriteTimeout time.Duration
}

// ServerConfigDefaults returns a config with default values.
func ServerConfigDefaults() ServerConfig {
	return ServerConfig{
		Addr:         ":8080",
		Logger:       slog.Default(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 45 * time.Second,
	}
}

// tipReporter is implemented by checkers that expose the last processed tip.
type tipReporter interface {
	Tip() (hash string, height int64)
}

// Server serves health checks and any routes mounted on it.
//
// Endpoints:
//   - /health/ready  - 200 once the watcher has processed its first tip
//   - /health/live   - 200 while tips keep being processed
//   - /health        - combined status, including the current tip when known
//
// Once shuttingDown is set every health route answers 503 so the orchestrator stops
// routing traffic before the process exits.
type Server struct {
	server       *http.Server
	mux          *http.ServeMux
	checker      inbound.HealthChecker
	shuttingDown *atomic.Bool
	logger       *slog.Logger
}

// NewServer creates a new server. shuttingDown may be nil.
func NewServer(config ServerConfig, checker inbound.HealthChecker, shuttingDown *atomic.Bool) *Server {
	defaults := ServerConfigDefaults()
	if config.Addr == "" {
		config.Addr = defaults.Addr
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if shuttingDown == nil {
		shuttingDown = &atomic.Bool{}
	}

	s := &Server{
		mux:          http.NewServeMux(),
		checker:      checker,
		shuttingDown: shuttingDown,
		logger:       config.Logger.With("component", "http-server"),
	}

	s.mux.HandleFunc("GET /health/ready", s.handleReady)
	s.mux.HandleFunc("GET /health/live", s.handleLive)
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return s
}

// Mount lets a handler register additional routes. Call before Start.
func (s *Server) Mount(register func(mux *http.ServeMux)) {
	register(s.mux)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens on the configured address and serves in the background.
// Listen errors are returned synchronously.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("starting http server", "addr", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", "error", err)
		}
	}()
	return nil
}

// Shutdown marks the server as shutting down and gracefully stops it.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.shuttingDown.Store(true)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	switch {
	case s.shuttingDown.Load():
		respondJSON(w, s.logger, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
	case s.checker.IsReady():
		respondJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ready"})
	default:
		respondJSON(w, s.logger, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
	}
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	switch {
	case s.shuttingDown.Load():
		respondJSON(w, s.logger, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
	case s.checker.IsHealthy():
		respondJSON(w, s.logger, http.StatusOK, map[string]string{"status": "healthy"})
	default:
		respondJSON(w, s.logger, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown.Load() {
		respondJSON(w, s.logger, http.StatusServiceUnavailable, map[string]any{
			"status":       "shutting_down",
			"ready":        false,
			"healthy":      false,
			"shuttingDown": true,
		})
		return
	}

	ready := s.checker.IsReady()
	healthy := s.checker.IsHealthy()
	status := "ok"
	statusCode := http.StatusOK
	if !ready || !healthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	body := map[string]any{
		"status":       status,
		"ready":        ready,
		"healthy":      healthy,
		"shuttingDown": false,
	}
	if tr, ok := s.checker.(tipReporter); ok && ready {
		hash, height := tr.Tip()
		body["tip"] = map[string]any{"hash": hash, "height": height}
	}
	respondJSON(w, s.logger, statusCode, body)
}

func respondJSON(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}
