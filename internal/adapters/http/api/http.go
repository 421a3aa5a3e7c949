// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	EventDependencies
	LeaderboardDependencies
	StatsDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	eventsHandler      *EventsHandler
	leaderboardHandler *LeaderboardHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, maxLimit int) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps),
		eventsHandler:      NewEventsHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLimit),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", Instrument("healthz", s.healthHandler.HandleHealth))
	mux.HandleFunc("POST /events", Instrument("events", s.eventsHandler.HandlePostEvent))
	mux.HandleFunc("GET /leaderboard", Instrument("leaderboard", s.leaderboardHandler.HandleGetLeaderboard))
	mux.HandleFunc("GET /stats/{id}", Instrument("stats", s.statsHandler.HandleGetStats))
	mux.HandleFunc("POST /stats/{id}/{field}", Instrument("stats_update", s.statsHandler.HandleUpdateStat))
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
