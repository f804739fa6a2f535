// Package api exposes the job orchestrator over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"adimporter/shared/domain/entity/creative"
	"adimporter/shared/domain/entity/job"
	"adimporter/shared/observability/types"

	"adimporter/workers/orchestrator/internal/jobs"
)

// JobController is the orchestrator surface the API drives.
type JobController interface {
	Start(ctx context.Context, batch []byte, debug bool) (*jobs.StartResult, error)
	Poll(ctx context.Context, id string, debug bool) (*jobs.View, error)
	Stop(ctx context.Context, id string) (*job.Job, error)
}

// HashLister provides the stored perceptual hashes for variation ranking.
type HashLister interface {
	ListHashes(ctx context.Context) ([]creative.HashedCreative, error)
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Config holds the API settings.
type Config struct {
	ServiceName      string
	Addr             string
	Timeout          time.Duration
	MaxBatchBytes    int64
	DefaultThreshold int
}

// Server handles HTTP runtime integration for the orchestrator.
type Server struct {
	cfg     Config
	jobs    JobController
	hashes  HashLister
	checks  map[string]ReadinessCheck
	logger  types.Logger
	metrics types.Metrics
	server  *http.Server
}

// NewServer creates a Server. hashes may be nil when no database is configured.
func NewServer(cfg Config, controller JobController, hashes HashLister, logger types.Logger, metrics types.Metrics) *Server {
	if cfg.MaxBatchBytes <= 0 {
		cfg.MaxBatchBytes = 64 << 20
	}
	return &Server{
		cfg:     cfg,
		jobs:    controller,
		hashes:  hashes,
		checks:  make(map[string]ReadinessCheck),
		logger:  logger,
		metrics: metrics,
	}
}

// AddReadinessCheck registers a named check consulted by /ready.
func (s *Server) AddReadinessCheck(name string, check ReadinessCheck) {
	s.checks[name] = check
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/imports", s.track("start_import", s.handleStartImport))
	mux.HandleFunc("GET /v1/imports/{id}", s.track("get_import", s.handleGetImport))
	mux.HandleFunc("POST /v1/imports/{id}/stop", s.track("stop_import", s.handleStopImport))
	mux.HandleFunc("GET /v1/imports/{id}/report", s.track("get_report", s.handleGetReport))
	mux.HandleFunc("GET /v1/creatives/variations", s.track("variations", s.handleVariations))

	for _, path := range []string{"/health", "/healthz", "/live", "/livez"} {
		mux.HandleFunc("GET "+path, s.handleHealth)
	}
	for _, path := range []string{"/ready", "/readyz"} {
		mux.HandleFunc("GET "+path, s.handleReady)
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

// Start begins serving and blocks until the server is stopped.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.Timeout,
	}

	s.logger.Info(context.Background(), "Starting HTTP server", types.Fields{"address": s.cfg.Addr})

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	s.logger.Info(ctx, "Shutting down HTTP server", nil)
	return s.server.Shutdown(ctx)
}
