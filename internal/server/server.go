package server

// Package server exposes the decision pipeline over HTTP.
//
// Responsibilities:
//   - POST /api/v1/analyze          start an analysis run (rate limited)
//   - GET  /api/v1/runs             list runs, newest last
//   - GET  /api/v1/runs/{id}        full run state incl. decision log
//   - DELETE /api/v1/runs/{id}      cancel a running analysis
//   - GET  /api/v1/runs/{id}/decisions/flat    tabular decision export
//   - GET  /api/v1/runs/{id}/decisions/nested  structured decision export
//   - POST /api/v1/decisions/import            re-import a nested export
//   - WS   /ws/runs/{id}            real-time run event stream
//   - GET  /healthz, /readyz, /metrics
//
// Runs execute asynchronously: analyze returns 202 with the run ID and
// the WebSocket URL, and clients either poll the run resource or attach
// to the stream.

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/plantops/plantops-ai/internal/config"
	"github.com/plantops/plantops-ai/internal/history"
	"github.com/plantops/plantops-ai/internal/middleware"
	"github.com/plantops/plantops-ai/internal/reasoning/engine"
)

// Deps bundles the collaborators the server fronts.
type Deps struct {
	Engine  engine.Engine
	History history.Store
	Logger  *zap.Logger
}

// Server is the plantops-ai HTTP server.
type Server struct {
	cfg    *config.Config
	engine engine.Engine
	store  history.Store
	logger *zap.Logger

	limiter    *middleware.RateLimiter
	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	running bool
}

// NewServer wires a server from configuration and collaborators.
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		engine:  deps.Engine,
		store:   deps.History,
		logger:  deps.Logger,
		limiter: middleware.NewRateLimiter(cfg.RateLimit.AnalyzePerMinute),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start begins serving. Non-blocking; use Wait to block until shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	mux := http.NewServeMux()
	s.registerHandlers(mux)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("http server listening",
			zap.Int("port", s.cfg.Server.Port),
			zap.Bool("tls", s.cfg.Server.TLSEnabled),
		)
		var err error
		if s.cfg.Server.TLSEnabled {
			err = s.httpServer.ListenAndServeTLS(s.cfg.Server.TLSCertPath, s.cfg.Server.TLSKeyPath)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server failed", zap.Error(err))
			s.cancel()
		}
	}()

	return nil
}

// Stop shuts the server down gracefully. In-flight requests get ten
// seconds to finish; active runs keep executing in the engine until
// their own contexts end.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is not running")
	}
	s.running = false
	s.mu.Unlock()

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http shutdown incomplete", zap.Error(err))
		}
	}

	s.limiter.Stop()
	s.cancel()
	s.wg.Wait()
	return nil
}

// Wait blocks until the server context ends.
func (s *Server) Wait() {
	<-s.ctx.Done()
}

// IsRunning reports whether Start has succeeded and Stop has not run.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Handler returns the full route set as a single handler. Exposed for
// httptest-based tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHandlers(mux)
	return mux
}

func (s *Server) registerHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/v1/analyze", s.limiter.Middleware(s.handleAnalyze))
	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/runs/", s.handleRunByID)
	mux.HandleFunc("/api/v1/decisions/import", s.handleDecisionImport)

	mux.HandleFunc("/ws/runs/", s.handleRunStream)
}
