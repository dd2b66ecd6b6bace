// Package health provides the HTTP liveness and readiness endpoints.
//
// Docker and Kubernetes probe /healthz and /readyz; /statusz additionally
// reports the pending queue depth and budget state for operators.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// StatusFunc reports the current pending queue length and whether the
// global budget is exhausted.
type StatusFunc func(ctx context.Context) (pending int, limitExceeded bool)

// Server is a lightweight HTTP server for health probes.
type Server struct {
	port   int
	ready  atomic.Bool
	status StatusFunc
	server *http.Server
}

// New creates a new health check server. status may be nil.
func New(port int, status StatusFunc) *Server {
	return &Server{port: port, status: status}
}

// SetReady marks the daemon as ready to accept traffic.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// ListenAndServe starts the health check HTTP server.
// It blocks until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()

	probe := func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "not_ready"})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}

	mux.HandleFunc("GET /healthz", probe)
	mux.HandleFunc("GET /readyz", probe)

	mux.HandleFunc("GET /statusz", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"ready": s.ready.Load()}
		if s.status != nil {
			pending, exceeded := s.status(r.Context())
			body["queue_pending"] = pending
			body["limit_exceeded"] = exceeded
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(body)
	})

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("health server listening", "port", s.port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}
