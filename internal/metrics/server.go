// Package metrics implements metrics server.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusProvider is the subset of Worker capability the metrics server's
// health endpoint needs. Defined here (not imported from internal/worker)
// to avoid a metrics <-> worker import cycle; internal/worker.Worker
// already implements it for internal/command.WorkerControl.
type StatusProvider interface {
	Status() any
}

// Server serves Prometheus metrics at its configured path plus a
// /healthz endpoint reporting the active acquisition run's status, so an
// operator (or a liveness probe) doesn't need the control socket just to
// see whether a run is progressing.
type Server struct {
	addr   string
	path   string
	status StatusProvider
	server *http.Server
}

// NewServer creates a new metrics server. status may be nil, in which
// case /healthz reports only that the daemon process is up.
func NewServer(addr, path string, status StatusProvider) *Server {
	if path == "" {
		path = "/metrics"
	}
	return &Server{
		addr:   addr,
		path:   path,
		status: status,
	}
}

// Start starts the metrics HTTP server.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("starting metrics server", "addr", s.addr, "path", s.path)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"ok": true}
	if s.status != nil {
		body["run"] = s.status.Status()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("encode healthz response", "error", err)
	}
}

// Stop gracefully stops the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	slog.Info("stopping metrics server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}

	slog.Info("metrics server stopped")
	return nil
}
