// Package server exposes deck generation over HTTP.
//
// Routes:
//
//	GET  /healthz          liveness probe
//	GET  /api/v1/orders    supported planes
//	POST /api/v1/generate  multipart upload → rendered artifact
//
// The server shares one [pipeline.Runner], so at most one generation runs
// at a time; a concurrent request is answered with 409 Conflict.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/spotmatch/pkg/imagesrc"
	"github.com/matzehuels/spotmatch/pkg/pipeline"
)

// Defaults for [Config].
const (
	DefaultAddr           = ":8080"
	DefaultMaxUploadBytes = 64 << 20
	DefaultMaxImages      = 200
	DefaultRequestTimeout = 5 * time.Minute
	shutdownTimeout       = 10 * time.Second
)

// Config configures a [Server].
type Config struct {
	Addr           string        `toml:"addr"`
	MaxUploadBytes int64         `toml:"max_upload_bytes"`
	MaxImages      int           `toml:"max_images"`
	RequestTimeout time.Duration `toml:"request_timeout"`

	// Defaults are applied before form fields of a generate request.
	Defaults pipeline.Options `toml:"-"`
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.MaxImages <= 0 {
		c.MaxImages = DefaultMaxImages
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
}

// Server serves the HTTP API.
type Server struct {
	cfg      Config
	runner   *pipeline.Runner
	provider imagesrc.Provider
	logger   *log.Logger
}

// New creates a server. A nil provider uses the imaging provider; a nil
// logger uses the runner's logger.
func New(cfg Config, runner *pipeline.Runner, provider imagesrc.Provider, logger *log.Logger) *Server {
	cfg.setDefaults()
	if provider == nil {
		provider = imagesrc.NewImagingProvider(0)
	}
	if logger == nil {
		logger = runner.Logger
	}
	return &Server{cfg: cfg, runner: runner, provider: provider, logger: logger}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/orders", s.orders)
		r.With(middleware.Timeout(s.cfg.RequestTimeout)).Post("/generate", s.generate)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errc
}
