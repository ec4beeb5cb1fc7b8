package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options tunes the HTTP server.
type Options struct {
	// RateLimitRPS caps API requests per second across all clients; <= 0 disables limiting.
	RateLimitRPS   float64
	RateLimitBurst int
}

// Server exposes the search API together with health, readiness, and
// metrics endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the /api/v1 routes plus /healthz,
// /readyz, and /metrics.
func NewServer(addr string, svc Searcher, ready sharedobs.ReadinessChecker, opts Options, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/healthz", gin.WrapF(sharedobs.LivenessHandler()))
	r.GET("/readyz", gin.WrapF(sharedobs.ReadinessHandler(ready)))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := &handlers{svc: svc, logger: logger}
	api := r.Group("/api/v1")
	if opts.RateLimitRPS > 0 {
		api.Use(rateLimit(opts.RateLimitRPS, opts.RateLimitBurst))
	}
	api.GET("/earthquakes", h.search)
	api.POST("/earthquakes", h.search)
	api.GET("/clusters", h.clusters)
	api.GET("/stats/large", h.countLarge)
	api.GET("/stats/large-night", h.countLargeAtNight)

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
