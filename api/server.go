// Package api exposes the document lake over HTTP: insight extraction,
// document status, cached insight listing, and a progress event stream.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/doculake/doculake/internal/notify"
)

const (
	// DefaultAddr is used when no listen address is configured.
	DefaultAddr = ":8080"

	// ReadHeaderTimeout limits how long reading request headers may take.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is generous because the progress stream holds its
	// response open.
	WriteTimeout = 10 * time.Minute

	// IdleTimeout is the maximum time to wait for the next request on
	// keep-alive connections.
	IdleTimeout = 120 * time.Second

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 10 * time.Second
)

// ServerConfig contains the dependencies of the API server.
type ServerConfig struct {
	Logger  *slog.Logger
	Service InsightExtractor                     // Required
	Status  StatusReader                         // Required
	Cache   CacheLister                          // Required
	Broker  *notify.Broker[notify.ProgressEvent] // Optional: nil disables /api/progress
	Images  ImageAnalyzer                        // Optional: nil disables /api/images/analyze
	Pool    *pgxpool.Pool                        // Optional: nil disables pool ping in /ready
}

// Server is the JSON API HTTP server.
type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
}

// NewServer creates a server with all routes registered.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("insight service is required")
	}
	if cfg.Status == nil {
		return nil, errors.New("status store is required")
	}
	if cfg.Cache == nil {
		return nil, errors.New("cache gate is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	ih := &InsightHandler{service: cfg.Service, cache: cfg.Cache, logger: logger}
	mux.HandleFunc("POST /api/insights/extract", ih.extract)
	mux.HandleFunc("GET /api/documents/{docID}/insights", ih.listCached)

	dh := &DocumentHandler{status: cfg.Status, logger: logger}
	mux.HandleFunc("GET /api/documents", dh.list)
	mux.HandleFunc("GET /api/documents/{docID}/status", dh.getStatus)

	if cfg.Images != nil {
		imh := &ImageHandler{images: cfg.Images, logger: logger}
		mux.HandleFunc("POST /api/images/analyze", imh.analyze)
	}

	if cfg.Broker != nil {
		ph := &ProgressHandler{broker: cfg.Broker, logger: logger}
		mux.HandleFunc("GET /api/progress", ph.stream)
	}

	hh := &HealthHandler{pool: cfg.Pool, logger: logger}
	mux.HandleFunc("GET /health", hh.liveness)
	mux.HandleFunc("GET /ready", hh.readiness)

	return &Server{mux: mux, logger: logger}, nil
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery, then logging, then routes.
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware(s.logger), loggingMiddleware(s.logger))
}

// Run starts the server and blocks until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
