// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/saltyscope/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Observe submits one raw observation. Returns an error wrapping a busy
	// sentinel on backpressure.
	Observe(ctx context.Context, obs model.Observation) error

	Status(ctx context.Context) model.Snapshot
	Policy(ctx context.Context) model.Policy
	UpdatePolicy(ctx context.Context, p model.Policy) (model.Policy, error)
	Rebet(ctx context.Context) (model.Snapshot, error)
	History(ctx context.Context, limit int) ([]model.DecisionRecord, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler       *HealthHandler
	statsHandler        *StatsHandler
	observationsHandler *ObservationsHandler
	statusHandler       *StatusHandler
	policyHandler       *PolicyHandler
	historyHandler      *HistoryHandler
	stream              http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithStream mounts the websocket status stream at /ws.
func WithStream(h http.Handler) Option {
	return func(s *Server) { s.stream = h }
}

// WithBusy tells the observations handler which error means backpressure.
func WithBusy(busy error) Option {
	return func(s *Server) { s.observationsHandler.busy = busy }
}

// WithMaxHistory caps GET /history?limit.
func WithMaxHistory(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.historyHandler.maxLimit = n
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		healthHandler:       NewHealthHandler(),
		statsHandler:        NewStatsHandler(statsProvider),
		observationsHandler: NewObservationsHandler(deps),
		statusHandler:       NewStatusHandler(deps),
		policyHandler:       NewPolicyHandler(deps),
		historyHandler:      NewHistoryHandler(deps, defaultMaxHistory),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("/metrics", s.healthHandler.Metrics())
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/observations", MetricsMiddleware(s.observationsHandler.HandlePostObservation, "observations"))
	mux.HandleFunc("/status", MetricsMiddleware(s.statusHandler.HandleGetStatus, "status"))
	mux.HandleFunc("/rebet", MetricsMiddleware(s.statusHandler.HandlePostRebet, "rebet"))
	mux.HandleFunc("/policy", MetricsMiddleware(s.policyHandler.HandlePolicy, "policy"))
	mux.HandleFunc("/history", MetricsMiddleware(s.historyHandler.HandleGetHistory, "history"))
	if s.stream != nil {
		mux.Handle("/ws", s.stream)
	}
}

type ackResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
