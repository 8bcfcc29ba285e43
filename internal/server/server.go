// Package server exposes the interview core over HTTP: turn submission,
// session lifecycle, the per-session event stream (SSE with a websocket
// mirror), scenario management, score aggregation, and the operational
// endpoints (health, readiness, metrics).
package server

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Maratmain/ai-hr/internal/health"
	"github.com/Maratmain/ai-hr/internal/observe"
	"github.com/Maratmain/ai-hr/internal/profile"
	"github.com/Maratmain/ai-hr/internal/scenario"
	"github.com/Maratmain/ai-hr/internal/session"
	"github.com/Maratmain/ai-hr/internal/turn"
)

// Config carries the server's collaborators. Sessions, Orchestrator,
// Scenarios and Profiles are required; the rest default to sensible no-ops.
type Config struct {
	Sessions     *session.Manager
	Orchestrator *turn.Orchestrator
	Scenarios    *scenario.Store
	Profiles     *profile.Store

	// Recorder backs GET /metrics/summary. Optional.
	Recorder *observe.Recorder

	// Metrics drives the request middleware. Defaults to the global set.
	Metrics *observe.Metrics

	// Health serves /healthz and /readyz. Optional.
	Health *health.Handler

	Logger *slog.Logger
}

// Server is the HTTP surface of the interview core.
type Server struct {
	sessions  *session.Manager
	orch      *turn.Orchestrator
	scenarios *scenario.Store
	profiles  *profile.Store
	recorder  *observe.Recorder
	metrics   *observe.Metrics
	health    *health.Handler
	logger    *slog.Logger
}

// New assembles a Server from its collaborators.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Server{
		sessions:  cfg.Sessions,
		orch:      cfg.Orchestrator,
		scenarios: cfg.Scenarios,
		profiles:  cfg.Profiles,
		recorder:  cfg.Recorder,
		metrics:   cfg.Metrics,
		health:    cfg.Health,
		logger:    cfg.Logger,
	}
}

// Routes builds the full handler tree, wrapped in the tracing and request
// logging middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /turn", s.handleTurn)
	mux.HandleFunc("POST /session/start", s.handleSessionStart)
	mux.HandleFunc("POST /session/end", s.handleSessionEnd)
	mux.HandleFunc("GET /session/{id}/events", s.handleSessionEvents)
	mux.HandleFunc("GET /session/{id}/ws", s.handleSessionWS)

	mux.HandleFunc("POST /scenario", s.handleScenarioPut)
	mux.HandleFunc("GET /scenario/{id}", s.handleScenarioGet)
	mux.HandleFunc("GET /scenarios", s.handleScenarioList)

	mux.HandleFunc("POST /score/aggregate", s.handleScoreAggregate)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics/summary", s.handleMetricsSummary)
	mux.Handle("GET /metrics", promhttp.Handler())

	if s.health != nil {
		s.health.Register(mux)
	}

	return observe.Middleware(s.metrics)(mux)
}
