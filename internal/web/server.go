// Package web serves the HTTP actions: the export endpoint with its JSON
// envelopes, health and metrics, and a small HTMX file browser over the
// storage gateway.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/skukla/kukla-integration-service-sub006/pkg/config"
	"github.com/skukla/kukla-integration-service-sub006/pkg/pipeline"
)

// exportTimeout bounds one export action. Large catalogs with paced
// enrichment dispatches can legitimately run for minutes.
const exportTimeout = 5 * time.Minute

// Server is the HTTP action server.
type Server struct {
	cfg    *config.Config
	orch   *pipeline.Orchestrator
	logger zerolog.Logger
	server *http.Server
}

// New assembles the router and the underlying http.Server.
func New(cfg *config.Config, orch *pipeline.Orchestrator, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		orch:   orch,
		logger: logger,
	}

	s.server = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      s.router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(recoverer(s.logger))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: s.cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Accept", "Content-Type", "HX-Request", "HX-Target"},
	}).Handler)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.With(chimiddleware.Timeout(exportTimeout)).Post("/export", s.handleExport)
	})

	r.Route("/files", func(r chi.Router) {
		r.Get("/", s.handleFilesPage)
		r.Get("/table", s.handleFilesTable)
		r.Get("/download", s.handleFileDownload)
		r.Delete("/{name}", s.handleFileDelete)
	})

	return r
}

// Start runs the server until it is shut down or fails.
func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.server.Addr).
		Str("env", s.cfg.Env).
		Msg("HTTP server starting")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("HTTP server shutting down")
	return s.server.Shutdown(ctx)
}

// Handler exposes the assembled router for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{
		"status":   "ok",
		"env":      s.cfg.Env,
		"provider": s.cfg.Storage.Provider,
	})
}
