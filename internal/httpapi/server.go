// Package httpapi serves the local diagnostics endpoints: health, session
// status, and Prometheus metrics. It binds to loopback and is off by default.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"todovoice/internal/observability"
	"todovoice/internal/voicesession"
)

// StatusSource reports the live session snapshot.
type StatusSource interface {
	Status() voicesession.Status
}

type Server struct {
	addr   string
	source StatusSource
	srv    *http.Server
}

func New(addr string, source StatusSource) *Server {
	return &Server{addr: addr, source: source}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/statusz", s.handleStatus)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	return r
}

// Start serves in the background until Shutdown.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	// Surface an immediate bind failure to the caller.
	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.source == nil {
		respondJSON(w, http.StatusOK, voicesession.Status{})
		return
	}
	respondJSON(w, http.StatusOK, s.source.Status())
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
