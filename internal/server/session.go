package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/Maratmain/ai-hr/internal/session"
)

// writeTimeout bounds a single websocket event write.
const writeTimeout = 5 * time.Second

type sessionStartRequest struct {
	CandidateID   string `json:"candidate_id"`
	RoleProfileID string `json:"role_profile_id"`
	ScenarioID    string `json:"scenario_id,omitempty"`
}

type sessionStartResponse struct {
	SessionID   string `json:"session_id"`
	StartNodeID string `json:"start_node_id"`
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req sessionStartRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid session start body: "+err.Error())
		return
	}
	if req.RoleProfileID == "" {
		badRequest(w, "role_profile_id is required")
		return
	}

	// Scenario resolution order: explicit request, the role profile's pin,
	// then the role id itself (the store synthesizes a fallback chain for
	// unknown ids).
	scenarioID := req.ScenarioID
	if scenarioID == "" {
		scenarioID = s.profiles.Get(req.RoleProfileID).ScenarioID
	}
	if scenarioID == "" {
		scenarioID = req.RoleProfileID
	}
	sc := s.scenarios.Get(scenarioID)

	st, err := s.sessions.Begin(session.BeginParams{
		ScenarioID:  sc.ID,
		StartNodeID: sc.StartID,
		RoleID:      req.RoleProfileID,
		CVID:        req.CandidateID,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionStartResponse{
		SessionID:   st.ID,
		StartNodeID: st.CurrentNodeID,
	})
}

type sessionEndRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleSessionEnd(w http.ResponseWriter, r *http.Request) {
	var req sessionEndRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid session end body: "+err.Error())
		return
	}
	final, err := s.sessions.End(req.SessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":           true,
		"overall":      final.Overall,
		"block_scores": final.BlockScores,
		"red_flags":    final.RedFlags,
		"turns":        final.TurnSeq,
	})
}

// handleSessionEvents streams the session's events as server-sent events.
// The stream ends when the session ends or the client disconnects.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	events, cancel, err := s.sessions.Subscribe(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer cancel()

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, fmt.Errorf("server: response writer does not support streaming"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()
			if ev.Type == session.EventSessionEnded {
				return
			}
		}
	}
}

// writeSSE writes one event in SSE wire format.
func writeSSE(w http.ResponseWriter, ev session.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}

// handleSessionWS mirrors the event stream over a websocket for clients that
// cannot consume SSE.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	events, cancel, err := s.sessions.Subscribe(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer cancel()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "session stream closed")

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, ev)
			cancelWrite()
			if err != nil {
				return
			}
			if ev.Type == session.EventSessionEnded {
				return
			}
		}
	}
}
