// Package service implements the Canopy HTTP API: seven JSON endpoints
// fronting a shard.Manager, with a single {code, message, hint} error
// envelope and Prometheus/JSON metrics.
package service

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/canopy-project/canopy/internal/shard"
)

// Server wires a shard.Manager to chi's router and owns the service's
// metrics.
type Server struct {
	mgr     *shard.Manager
	metrics *Metrics
	logger  *slog.Logger
	started time.Time
}

// NewServer builds a Server. logger defaults to slog.Default if nil.
func NewServer(mgr *shard.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		mgr:     mgr,
		metrics: NewMetrics(),
		logger:  logger,
		started: time.Now(),
	}
}

// Router builds the chi router serving the seven endpoints plus the raw
// Prometheus scrape path.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Post("/repos/add", s.handleReposAdd)
	r.Get("/repos", s.handleReposList)
	r.Get("/status", s.handleStatus)
	r.Post("/reindex", s.handleReindex)
	r.Post("/query", s.handleQuery)
	r.Post("/expand", s.handleExpand)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/metrics/prom", func(w http.ResponseWriter, req *http.Request) {
		s.metrics.PromHandler().ServeHTTP(w, req)
	})

	return r
}

// logRequests is chi middleware recording each request's route, status, and
// latency into the service's metrics.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		duration := time.Since(start)
		s.metrics.ObserveRequest(route, ww.Status(), duration)
		s.logger.Info("http request",
			"method", r.Method, "route", route, "status", ww.Status(),
			"duration_ms", duration.Milliseconds(),
		)
	})
}
