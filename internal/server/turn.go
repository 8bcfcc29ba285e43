package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/Maratmain/ai-hr/internal/session"
)

type turnRequest struct {
	SessionID  string `json:"session_id"`
	Transcript string `json:"transcript"`

	// Async requests a 202 with the event-stream location instead of
	// waiting for the substantive reply.
	Async bool `json:"async,omitempty"`
}

type turnResponse struct {
	Reply         string                `json:"reply"`
	NextNodeID    string                `json:"next_node_id"`
	ScoringUpdate session.ScoringUpdate `json:"scoring_update"`
	RedFlags      []string              `json:"red_flags"`
	Source        string                `json:"source"`
	Timings       session.Timings       `json:"timings"`
}

// handleTurn accepts one finalized transcript. Synchronous mode blocks until
// the turn commits and returns the reply; async mode returns 202 and the
// caller follows the session's event stream.
func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid turn body: "+err.Error())
		return
	}
	if req.SessionID == "" {
		badRequest(w, "session_id is required")
		return
	}

	if req.Async {
		// Validate the session before detaching so the caller still gets
		// its 404 synchronously.
		if _, err := s.sessions.Get(req.SessionID); err != nil {
			s.writeError(w, err)
			return
		}
		go func() {
			// Detached from the request context: client disconnect must not
			// cancel a turn it no longer waits for.
			_, err := s.orch.Run(context.Background(), req.SessionID, req.Transcript)
			if err != nil && !errors.Is(err, session.ErrSuperseded) {
				s.logger.Warn("async turn failed", "session_id", req.SessionID, "error", err)
			}
		}()
		w.Header().Set("Location", "/session/"+req.SessionID+"/events")
		w.WriteHeader(http.StatusAccepted)
		return
	}

	rec, err := s.orch.Run(r.Context(), req.SessionID, req.Transcript)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turnResponse{
		Reply:         rec.ReplyText,
		NextNodeID:    rec.NextNodeID,
		ScoringUpdate: rec.ScoringUpdate,
		RedFlags:      rec.RedFlags,
		Source:        rec.Source,
		Timings:       rec.Timings,
	})
}
