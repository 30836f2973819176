// Package server exposes the workflow engine over HTTP: validation,
// execution, and source management under /api/v1, plus health and
// Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/avi3tal/agentflow/internal/metrics"
	"github.com/avi3tal/agentflow/internal/registry"
)

// Version reported by the health endpoint.
const Version = "1.0.0"

type Server struct {
	reg *registry.Registry
	met *metrics.Metrics
	log *slog.Logger

	runTimeout time.Duration
	httpSrv    *http.Server
}

// Option tweaks server construction.
type Option func(*Server)

// WithRunTimeout caps each execution served over HTTP.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.runTimeout = d
	}
}

func New(reg *registry.Registry, met *metrics.Metrics, log *slog.Logger, opts ...Option) *Server {
	if log == nil {
		log = slog.Default()
	}
	if met == nil {
		met = metrics.New()
	}
	s := &Server{
		reg:        reg,
		met:        met,
		log:        log,
		runTimeout: 60 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router assembles the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/health/live", s.handleLiveness)
	r.Method(http.MethodGet, "/metrics", s.met.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/workflows", func(r chi.Router) {
			r.Post("/validate", s.handleValidate)
			r.Post("/execute", s.handleExecute)
			r.Post("/build", s.handleBuild)
			r.Get("/node-types", s.handleNodeTypes)
		})
		r.Route("/sources", func(r chi.Router) {
			r.Get("/", s.handleListSources)
			r.Post("/", s.handleRegisterSource)
			r.Delete("/", s.handleClearSources)
			r.Get("/{sourceID}", s.handleGetSource)
			r.Delete("/{sourceID}", s.handleUnregisterSource)
			r.Post("/{sourceID}/test", s.handleTestSource)
		})
	})
	return r
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("http server listening", "addr", addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	s.log.Info("http server shutting down")
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string, extra map[string]any) {
	body := map[string]any{"message": message}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, status, body)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"version":   Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "alive"})
}
