package httpserver

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pwviptbl/CallCenter/internal/config"
	"github.com/pwviptbl/CallCenter/internal/docs"
	"github.com/pwviptbl/CallCenter/internal/version"
)

// Check is a named dependency probe used by /readyz and /status.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Server holds the HTTP server dependencies.
type Server struct {
	Router    *chi.Mux
	APIRouter chi.Router // authenticated, tenant-scoped /api/v1 sub-router
	Logger    *slog.Logger
	checks    []Check
	startedAt time.Time
}

// NewServer creates an HTTP server with middleware and health/metrics endpoints.
// apiAuth guards every route under /api/v1. Public handlers such as provider
// webhooks are mounted on Router; domain handlers are mounted on APIRouter.
func NewServer(cfg *config.Config, logger *slog.Logger, metricsReg *prometheus.Registry, apiAuth func(http.Handler) http.Handler, checks ...Check) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		checks:    checks,
		startedAt: time.Now(),
	}

	// Global middleware
	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID", "X-Tenant-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (unauthenticated)
	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz)
	s.Router.Get("/status", s.handleStatus)

	// API documentation (unauthenticated)
	s.Router.Mount("/api/docs", docs.Routes())

	// Prometheus metrics (unauthenticated)
	if metricsReg != nil {
		s.Router.Handle(cfg.MetricsPath, promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))
	}

	s.Router.Route("/api/v1", func(r chi.Router) {
		if apiAuth != nil {
			r.Use(apiAuth)
		}
		s.APIRouter = r
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	for _, c := range s.checks {
		if err := c.Ping(r.Context()); err != nil {
			s.Logger.Error("readiness check failed", "dependency", c.Name, "error", err)
			RespondError(w, http.StatusServiceUnavailable, "unavailable", c.Name+" not ready")
			return
		}
	}

	Respond(w, http.StatusOK, map[string]string{"status": "ready"})
}

type dependencyStatus struct {
	Status    string  `json:"status"`
	LatencyMS float64 `json:"latency_ms"`
}

type statusResponse struct {
	Status        string                      `json:"status"`
	Version       string                      `json:"version"`
	CommitSHA     string                      `json:"commit_sha"`
	Uptime        string                      `json:"uptime"`
	UptimeSeconds int64                       `json:"uptime_seconds"`
	Dependencies  map[string]dependencyStatus `json:"dependencies"`
}

// handleStatus reports build info, uptime and the latency of each dependency.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.startedAt)

	resp := statusResponse{
		Status:        "ok",
		Version:       version.Version,
		CommitSHA:     version.Commit,
		Uptime:        uptime.Truncate(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		Dependencies:  make(map[string]dependencyStatus, len(s.checks)),
	}

	for _, c := range s.checks {
		start := time.Now()
		ds := dependencyStatus{Status: "ok"}
		if err := c.Ping(r.Context()); err != nil {
			s.Logger.Error("status check failed", "dependency", c.Name, "error", err)
			ds.Status = "error"
			resp.Status = "degraded"
		}
		ds.LatencyMS = math.Round(float64(time.Since(start).Microseconds())/10) / 100
		resp.Dependencies[c.Name] = ds
	}

	Respond(w, http.StatusOK, resp)
}
