// Package api exposes the observability HTTP surface for a running crawl.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/souqdata/areacrawl/internal/budget"
	"github.com/souqdata/areacrawl/internal/metrics"
	"github.com/souqdata/areacrawl/internal/progress"
)

// Server serves health, progress, and metrics endpoints. It is read-only:
// the crawl is driven by the engine, never over HTTP.
type Server struct {
	router     chi.Router
	store      *progress.Store
	supervisor *budget.Supervisor
	runID      string
	logger     *zap.Logger
	httpSrv    *http.Server
}

// NewServer wires routes for the given store and supervisor.
func NewServer(store *progress.Store, supervisor *budget.Supervisor, runID string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:      store,
		supervisor: supervisor,
		runID:      runID,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Get("/healthz", s.healthz)
	r.Get("/progress", s.progress)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving on the given port in a background goroutine.
func (s *Server) Start(port int) {
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("observability server stopped", zap.Error(err))
		}
	}()
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// progressResponse is the JSON body for GET /progress.
type progressResponse struct {
	RunID   string           `json:"run_id"`
	State   string           `json:"state"`
	Elapsed string           `json:"elapsed"`
	Summary progress.Summary `json:"summary"`
}

func (s *Server) progress(w http.ResponseWriter, _ *http.Request) {
	resp := progressResponse{
		RunID:   s.runID,
		State:   s.supervisor.State().String(),
		Elapsed: s.supervisor.Elapsed().Round(time.Second).String(),
		Summary: s.store.Summarize(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
