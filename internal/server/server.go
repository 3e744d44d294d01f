// Package server exposes the webhook endpoint that triggers runs plus the
// status and report API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/pagepress/internal/config"
	"git.home.luguber.info/inful/pagepress/internal/eventstore"
	"git.home.luguber.info/inful/pagepress/internal/metrics"
	"git.home.luguber.info/inful/pagepress/internal/pipeline"
)

// Runtime is the daemon surface the HTTP handlers act on.
type Runtime interface {
	// TriggerRun enqueues a run and returns its ID.
	TriggerRun(trigger string) (string, error)
	// ActiveRun returns the currently executing run, if any.
	ActiveRun() *eventstore.RunSummary
	// History returns recent runs, newest first.
	History() []*eventstore.RunSummary
	// RunReport returns the detailed report for a finished run.
	RunReport(runID string) *pipeline.RunReport
	// QueueDepth returns the number of queued runs for the project's group.
	QueueDepth() int
}

// Server manages the webhook/status HTTP endpoint.
type Server struct {
	cfg       config.ServerConfig
	runtime   Runtime
	startTime time.Time
	httpSrv   *http.Server
	registry  metricsRegistry

	mu     sync.RWMutex
	branch string
}

type metricsRegistry interface {
	HTTPHandler() http.Handler
}

// promRegistry adapts the metrics package's HTTP handler.
type promRegistry struct {
	recorder *metrics.PrometheusRecorder
}

func (p promRegistry) HTTPHandler() http.Handler {
	return metrics.HTTPHandler(p.recorder.Registry())
}

// New creates the HTTP server. A nil prometheus recorder disables /metrics.
func New(cfg config.ServerConfig, branch string, runtime Runtime, prom *metrics.PrometheusRecorder) *Server {
	s := &Server{
		cfg:       cfg,
		branch:    branch,
		runtime:   runtime,
		startTime: time.Now(),
	}
	if prom != nil {
		s.registry = promRegistry{recorder: prom}
	}
	return s
}

// SetBranch updates the branch filter applied to incoming pushes, used when
// the configuration is reloaded.
func (s *Server) SetBranch(branch string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.branch = branch
}

func (s *Server) branchFilter() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.branch
}

// Handler builds the route table. Exposed for httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+s.cfg.WebhookPath, s.handleWebhook)
	mux.HandleFunc("POST /api/runs", s.handleManualTrigger)
	mux.HandleFunc("GET /api/runs", s.handleHistory)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /runs/{id}", s.handleReportPage)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.registry != nil {
		mux.Handle("GET /metrics", s.registry.HTTPHandler())
	}
	return mux
}

// Start begins serving until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", s.cfg.Listen)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
