package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rafaeljc/bifrost/internal/config"
)

// ArtifactSource exposes the raw artifact currently used for decisioning.
type ArtifactSource interface {
	RawArtifact() []byte
}

// Server manages the observability endpoints (health checks, metrics and the
// loaded artifact). It runs on a dedicated port, away from the host's traffic.
type Server struct {
	logger   *slog.Logger
	cfg      *config.ObservabilityConfig
	router   *chi.Mux
	server   *http.Server
	artifact ArtifactSource
	checkers []Checker
}

// NewServer creates a new instance of the observability server.
// The checkers are verified by the readiness probe. artifact may be nil.
func NewServer(logger *slog.Logger, cfg *config.ObservabilityConfig, artifact ArtifactSource, checkers ...Checker) *Server {
	r := chi.NewRouter()

	logger = logger.With(slog.String("component", "observability"))

	// Standard middlewares for the admin server
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)

	s := &Server{
		logger:   logger,
		cfg:      cfg,
		router:   r,
		artifact: artifact,
		checkers: checkers,
	}

	s.setupRoutes()

	return s
}

// setupRoutes registers all observability endpoints.
func (s *Server) setupRoutes() {
	s.router.Get(s.cfg.LivenessPath, s.liveness)

	// Ready only once every checker passes, i.e. an evaluable artifact is loaded.
	s.router.Get(s.cfg.ReadinessPath, s.readiness)

	s.router.Method(http.MethodGet, s.cfg.MetricsPath, promhttp.Handler())

	if s.artifact != nil && s.cfg.ArtifactPath != "" {
		s.router.Get(s.cfg.ArtifactPath, s.rawArtifact)
	}
}

// Handler returns the router, for embedding into a host's own server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server in a background goroutine.
// It is non-blocking.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%s", s.cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Timeout,
		WriteTimeout: s.cfg.Timeout,
		IdleTimeout:  s.cfg.Timeout * 3,
	}

	go func() {
		s.logger.Info("starting observability server",
			slog.String("addr", addr),
			slog.String("liveness_path", s.cfg.LivenessPath),
			slog.String("readiness_path", s.cfg.ReadinessPath),
			slog.String("metrics_path", s.cfg.MetricsPath),
			slog.String("artifact_path", s.cfg.ArtifactPath),
		)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("observability server failed", slog.String("error", err.Error()))
		}
	}()
}

// Shutdown gracefully stops the observability server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("stopping observability server")
	return s.server.Shutdown(ctx)
}
