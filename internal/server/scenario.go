package server

import (
	"io"
	"net/http"
)

// maxScenarioBody bounds an uploaded scenario document.
const maxScenarioBody = 1 << 20

func (s *Server) handleScenarioPut(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxScenarioBody))
	if err != nil {
		badRequest(w, "read scenario body: "+err.Error())
		return
	}

	sc, err := s.scenarios.Load(body)
	if err != nil {
		// Validation failures enumerate their reasons in the error chain.
		badRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"id":         sc.ID,
		"node_count": len(sc.Nodes),
	})
}

func (s *Server) handleScenarioGet(w http.ResponseWriter, r *http.Request) {
	sc, err := s.scenarios.GetStrict(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// scenarioListEntry is one row of GET /scenarios.
type scenarioListEntry struct {
	ID        string `json:"id"`
	StartID   string `json:"start_id"`
	NodeCount int    `json:"node_count"`
}

func (s *Server) handleScenarioList(w http.ResponseWriter, _ *http.Request) {
	ids := s.scenarios.List()
	entries := make([]scenarioListEntry, 0, len(ids))
	for _, id := range ids {
		sc, err := s.scenarios.GetStrict(id)
		if err != nil {
			continue
		}
		entries = append(entries, scenarioListEntry{
			ID:        sc.ID,
			StartID:   sc.StartID,
			NodeCount: len(sc.Nodes),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenarios": entries})
}
