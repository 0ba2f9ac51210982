// Package api provides the worker's HTTP status server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tutu-network/riemann/internal/health"
)

// WorkerStatus is the body of GET /api/status.
type WorkerStatus struct {
	Kernel        string    `json:"kernel"`
	DiscoveryAddr string    `json:"discovery_addr"`
	TaskAddr      string    `json:"task_addr"`
	Discovery     bool      `json:"discovery_serving"`
	Executor      bool      `json:"executor_serving"`
	MaxConcurrent int       `json:"max_concurrent"`
	StartedAt     time.Time `json:"started_at"`
	Uptime        string    `json:"uptime"`
}

// StatusFunc reports the current worker state.
type StatusFunc func() WorkerStatus

// Server is the worker status HTTP server.
type Server struct {
	status  StatusFunc
	checker *health.Checker
	log     *zap.Logger
}

// NewServer creates a status server. checker may be nil.
func NewServer(status StatusFunc, checker *health.Checker, log *zap.Logger) *Server {
	return &Server{status: status, checker: checker, log: log.Named("api")}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Get("/api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.status())
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// ListenAndServe serves the status API on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves the status API on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	s.log.Info("status API listening", zap.Stringer("addr", ln.Addr()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	status, code := "ok", http.StatusOK
	if !s.checker.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": s.checker.Statuses(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
