// Package web provides the HTTP API of the pipeline service: ad-hoc
// classification of a CSV, code-table and data-type listings, and starting
// and inspecting pipeline runs.
package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/swamp/internal/config"
	"github.com/JonMunkholm/swamp/internal/metrics"
	"github.com/JonMunkholm/swamp/internal/pipeline"
	"github.com/JonMunkholm/swamp/internal/quality"
	appmw "github.com/JonMunkholm/swamp/internal/web/middleware"
)

// Deps are the collaborators of a Server.
type Deps struct {
	Runner  *pipeline.Runner
	Engine  *quality.Engine
	Metrics *metrics.Metrics
}

// Server is the HTTP server of the pipeline service.
type Server struct {
	cfg     *config.Config
	runner  *pipeline.Runner
	engine  *quality.Engine
	metrics *metrics.Metrics
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a Server with its routes registered.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:     cfg,
		runner:  deps.Runner,
		engine:  deps.Engine,
		metrics: deps.Metrics,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(appmw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(appmw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/classify", s.handleClassify)
		r.Get("/codetables", s.handleCodeTables)
		r.Get("/datatypes", s.handleDataTypes)

		// {name} is a run id for GET and a data type key for POST.
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{name}", s.handleGetRun)
		r.With(appmw.APIKeyAuth(s.cfg.Security.RequireAPIKey, s.cfg.Security.APIKeys)).
			Post("/runs/{name}", s.handleStartRun)
	})
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
