// Package server exposes the job submission HTTP API: POST /process, GET
// /health, GET /api/version, and job status polling.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/vaultpress/buildworker/internal/common"
	"github.com/vaultpress/buildworker/internal/jobs"
)

// Server owns the HTTP listener, job submission API, and the live log
// stream websocket.
type Server struct {
	manager   *jobs.Manager
	logger    arbor.ILogger
	router    *http.ServeMux
	server    *http.Server
	logStream *logStreamer
}

func New(cfg *common.Config, manager *jobs.Manager, logger arbor.ILogger) *Server {
	s := &Server{manager: manager, logger: logger, logStream: newLogStreamer(logger)}
	s.logStream.start(2 * time.Second)
	s.router = s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.withMiddleware(s.router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.logger.Info().Str("address", s.server.Addr).Msg("http server starting")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down http server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// Handler exposes the wrapped mux for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
