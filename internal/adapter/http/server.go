package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes are the service handlers mounted next to the operational endpoints.
// Nil websocket handlers are not mounted.
type Routes struct {
	Planner   Planner
	Hazards   HazardSource
	Positions http.Handler
	Events    http.Handler
}

// Server exposes health, readiness, metrics and the escape planning API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /v1 routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, routes Routes, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: mux,
			// planning waits on a position fix and the directions provider
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	api := &api{planner: routes.Planner, hazards: routes.Hazards, logger: logger}
	mux.HandleFunc("POST /v1/plan", api.startPlan)
	mux.HandleFunc("GET /v1/plan", api.currentPlan)
	mux.HandleFunc("DELETE /v1/plan", api.clearPlan)
	mux.HandleFunc("GET /v1/hazards", api.hazardSnapshot)
	mux.HandleFunc("GET /v1/hazards/check", api.checkPosition)

	if routes.Positions != nil {
		mux.Handle("GET /v1/positions/ws", routes.Positions)
	}
	if routes.Events != nil {
		mux.Handle("GET /v1/events/ws", routes.Events)
	}

	return s
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
