// Package api provides HTTP handlers and the main API server logic for
// IntakeFlow.
//
// It exposes RESTful endpoints for the patient chat surface and the staff
// triage dashboard. The API integrates with the flow and store modules.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/NovaFertility/IntakeFlow/internal/flow"
	"github.com/NovaFertility/IntakeFlow/internal/store"
)

// Server timeouts.
const (
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Server hosts the chat and triage endpoints.
type Server struct {
	mgr        *flow.Manager
	st         store.Store
	httpServer *http.Server
}

// NewServer creates an API server bound to the given address.
func NewServer(addr string, mgr *flow.Manager, st store.Store) *Server {
	s := &Server{mgr: mgr, st: st}

	mux := http.NewServeMux()
	mux.HandleFunc("/sessions", s.sessionsHandler)
	mux.HandleFunc("/sessions/", s.sessionSubtreeHandler)
	mux.HandleFunc("/admin/intakes", s.intakesHandler)
	mux.HandleFunc("/admin/intakes/", s.intakeSubtreeHandler)
	mux.HandleFunc("/admin/stats", s.statsHandler)
	mux.HandleFunc("/health", s.healthHandler)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
	return s
}

// Handler returns the server's HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	slog.Info("Server.Run: IntakeFlow API listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, DefaultShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		slog.Error("Server.healthHandler: failed to write response", "error", err)
	}
}
