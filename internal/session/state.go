// Package session tracks live interview sessions.
//
// The [Manager] owns every active session: creation, per-turn concurrency,
// the event stream consumed by SSE/websocket subscribers, and idle eviction.
// One session processes at most one turn at a time; a newly submitted turn
// supersedes the in-flight one (newest wins), and a superseded turn can no
// longer commit state or emit events.
package session

import (
	"time"

	"github.com/Maratmain/ai-hr/internal/scoring"
)

// Timings holds per-stage latencies of one turn, in milliseconds. Stages not
// exercised by this deployment (speech recognition, speech synthesis) stay
// zero but remain part of the wire format.
type Timings struct {
	ASRMs   int64 `json:"asr_ms"`
	DMMs    int64 `json:"dm_ms"`
	LLMMs   int64 `json:"llm_ms"`
	TTSMs   int64 `json:"tts_ms"`
	TotalMs int64 `json:"total_ms"`
}

// ScoringUpdate is the per-block score change carried by a turn record.
type ScoringUpdate struct {
	Block string  `json:"block"`
	Delta float64 `json:"delta"`
	Score float64 `json:"score"`
}

// TurnRecord is the persistent trace of one completed turn.
type TurnRecord struct {
	TurnSeq         int           `json:"turn_seq"`
	SessionID       string        `json:"session_id"`
	NodeID          string        `json:"node_id"`
	Transcript      string        `json:"transcript"`
	BackchannelText string        `json:"backchannel_text"`
	ReplyText       string        `json:"reply_text"`
	NextNodeID      string        `json:"next_node_id"`
	ScoringUpdate   ScoringUpdate `json:"scoring_update"`
	RedFlags        []string      `json:"red_flags"`
	Source          string        `json:"source"`
	Timings         Timings       `json:"timings"`
}

// State is a snapshot of one interview session. The Manager hands out copies;
// mutating a snapshot has no effect on the live session.
type State struct {
	ID              string             `json:"id"`
	ScenarioID      string             `json:"scenario_id"`
	RoleID          string             `json:"role_id"`
	CVID            string             `json:"cv_id,omitempty"`
	CurrentNodeID   string             `json:"current_node_id"`
	TurnSeq         int                `json:"turn_seq"`
	Answers         []scoring.QAnswer  `json:"answers"`
	BlockScores     map[string]float64 `json:"block_scores"`
	Overall         float64            `json:"overall"`
	RedFlags        []string           `json:"red_flags"`
	HadCriticalFail bool               `json:"had_critical_fail"`
	History         []TurnRecord       `json:"history"`
	StartedAt       time.Time          `json:"started_at"`
	LastActivity    time.Time          `json:"last_activity"`
	Ended           bool               `json:"ended"`
}

// Terminal reports whether the interview can no longer advance: either the
// session was explicitly ended or there is no current node left to ask.
func (s *State) Terminal() bool {
	return s.Ended || s.CurrentNodeID == ""
}

// clone returns a deep-enough copy for handing out as a snapshot.
func (s *State) clone() State {
	out := *s
	out.Answers = append([]scoring.QAnswer(nil), s.Answers...)
	out.RedFlags = append([]string(nil), s.RedFlags...)
	out.History = append([]TurnRecord(nil), s.History...)
	out.BlockScores = make(map[string]float64, len(s.BlockScores))
	for k, v := range s.BlockScores {
		out.BlockScores[k] = v
	}
	return out
}

// EventType discriminates the payload of an [Event].
type EventType string

const (
	// EventBackchannelReady carries the immediate short acknowledgement.
	EventBackchannelReady EventType = "backchannel_ready"

	// EventTurnComplete carries the substantive reply and score update.
	EventTurnComplete EventType = "turn_complete"

	// EventSessionEnded closes the stream.
	EventSessionEnded EventType = "session_ended"
)

// Event is one message on a session's event stream. Within a turn the
// backchannel event always precedes the completion event.
type Event struct {
	Type    EventType `json:"type"`
	TurnSeq int       `json:"turn_seq,omitempty"`

	// Text is the backchannel utterance for EventBackchannelReady.
	Text string `json:"text,omitempty"`

	// Turn is set for EventTurnComplete.
	Turn *TurnRecord `json:"turn,omitempty"`

	// Reason is set for EventSessionEnded ("ended", "idle_timeout").
	Reason string `json:"reason,omitempty"`
}
