package server

import (
	"net/http"
	"time"
)

// defaultSummaryWindow is the aggregation window when the query does not
// specify one.
const defaultSummaryWindow = 5 * time.Minute

type healthResponse struct {
	Status         string `json:"status"`
	ScenarioCount  int    `json:"scenario_count"`
	ActiveSessions int    `json:"active_sessions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		ScenarioCount:  s.scenarios.Count(),
		ActiveSessions: s.sessions.ActiveCount(),
	})
}

func (s *Server) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}

	window := defaultSummaryWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			badRequest(w, "window must be a positive duration such as 30s or 5m")
			return
		}
		window = d
	}
	writeJSON(w, http.StatusOK, s.recorder.Summarize(window))
}
