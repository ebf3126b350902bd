// Package server provides HTTP server setup, routing, and middleware.
package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"cspreport/internal/config"
	"cspreport/internal/ingest"
	"cspreport/internal/metrics"
	"cspreport/internal/status"
)

const shutdownTimeout = 15 * time.Second

// Server holds the HTTP server and its dependencies.
type Server struct {
	cfg      *config.Config
	router   *http.ServeMux
	reports  *ingest.Handler
	health   *status.Handler
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
}

// New creates a new Server with all routes configured.
func New(
	cfg *config.Config,
	reports *ingest.Handler,
	health *status.Handler,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
) *Server {
	s := &Server{
		cfg:      cfg,
		router:   http.NewServeMux(),
		reports:  reports,
		health:   health,
		metrics:  m,
		gatherer: gatherer,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	limit := RateLimitMiddleware(s.cfg.RateLimit, s.cfg.RateBurst)

	// Report intake
	s.router.Handle("POST /api/report", limit(DecompressMiddleware(http.HandlerFunc(s.reports.HandleReport))))
	s.router.HandleFunc("OPTIONS /api/report", ingest.HandlePreflight)

	s.router.HandleFunc("GET /healthz", s.health.HandleHealth)
	s.router.Handle("GET /metrics", metrics.Handler(s.gatherer))

	if s.cfg.EnablePprof {
		log.Info().Msg("Pprof enabled")
		s.router.HandleFunc("/debug/pprof/", pprof.Index)
		s.router.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		s.router.HandleFunc("/debug/pprof/profile", pprof.Profile)
		s.router.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		s.router.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
}

// Handler returns the HTTP handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	if s.cfg.HttpLogging {
		log.Info().Msg("HTTP logging enabled")
		h = LoggingMiddleware(h)
	}
	return RequestIDMiddleware(s.metrics.Middleware(h))
}

// ListenAndServe starts the HTTP server and shuts it down gracefully once
// ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	log.Info().
		Str("listen_addr", s.cfg.ListenAddr).
		Msg("Starting server")

	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
