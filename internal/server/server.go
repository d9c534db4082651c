// Package server exposes the data source service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapdata/pkg/core"
)

// Backend is the part of the service the API serves.
type Backend interface {
	Sources() []core.SourceDescriptor
	Connected() []string
	CachedResults() int
	Tables(ctx context.Context, source string) ([]string, error)
	GetDF(ctx context.Context, source, table string) (*core.TabularResult, error)
	Query(ctx context.Context, sql, source string) (*core.TabularResult, error)
	Invalidate(ctx context.Context, source string) error
}

// Runner is a background task tied to the server's lifetime.
type Runner interface {
	Run(ctx context.Context) error
}

// Config holds configuration for the API server.
type Config struct {
	Backend Backend
	Addr    string
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
	// Watcher runs alongside the server when set.
	Watcher Runner
	Logger  *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	backend  Backend
	addr     string
	gatherer prometheus.Gatherer
	watcher  Runner
	logger   *slog.Logger
}

// New creates a new API server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		backend:  cfg.Backend,
		addr:     cfg.Addr,
		gatherer: cfg.Gatherer,
		watcher:  cfg.Watcher,
		logger:   logger,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		requestID,
		s.logRequests,
		middleware.Recoverer,
		middleware.Compress(5),
	)

	r.Get("/healthz", s.handleHealth)
	r.Get("/sources", s.handleSources)
	r.Route("/sources/{name}", func(r chi.Router) {
		r.Get("/tables", s.handleTables)
		r.Get("/df", s.handleDF)
		r.Post("/invalidate", s.handleInvalidate)
	})
	r.Post("/query", s.handleQuery)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until the context is cancelled.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting API server", "addr", "http://"+ln.Addr().String())

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.watcher != nil {
		eg.Go(func() error {
			return s.watcher.Run(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down API server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
