package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Maratmain/ai-hr/internal/scenario"
	"github.com/Maratmain/ai-hr/internal/session"
	"github.com/Maratmain/ai-hr/internal/turn"
)

// apiError is the JSON error envelope.
type apiError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

// writeJSON encodes v with the given status. Encoding failures degrade to a
// plain 500; by then the status header is already written.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":{"kind":"internal","message":"encoding failed"}}`, http.StatusInternalServerError)
	}
}

// writeError maps domain errors onto the error-kind vocabulary and HTTP
// status codes. Superseded turns are not errors to report: the caller
// receives 204 and the newer turn's events instead.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSuperseded):
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, session.ErrNotFound), errors.Is(err, scenario.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{apiError{Kind: "not_found", Message: err.Error()}})
	case errors.Is(err, session.ErrEnded), errors.Is(err, turn.ErrTerminal):
		writeJSON(w, http.StatusConflict, errorResponse{apiError{Kind: "conflict", Message: err.Error()}})
	default:
		s.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{apiError{Kind: "internal", Message: "internal error"}})
	}
}

// badRequest reports an invalid_input error.
func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{apiError{Kind: "invalid_input", Message: msg}})
}

// decodeBody strictly decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
