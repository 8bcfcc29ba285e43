// Package dm generates the substantive interviewer reply for one turn.
//
// The engine drives a pluggable LLM backend (pkg/provider/llm) with a strict
// JSON contract: the model must return a reply, a next-node decision, and a
// scoring update for the current question block. When the backend supports
// schema grammars the contract is enforced server-side; otherwise the engine
// post-processes the text, extracting the largest balanced JSON object before
// giving up. When nothing usable comes back, it synthesizes the same object
// from the keyword scorer, the scenario selector, and a per-role reply
// template, so the caller always receives a valid result.
package dm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Maratmain/ai-hr/internal/profile"
	"github.com/Maratmain/ai-hr/internal/scenario"
	"github.com/Maratmain/ai-hr/internal/scoring"
	"github.com/Maratmain/ai-hr/pkg/provider/llm"
	"github.com/Maratmain/ai-hr/pkg/resume"
)

// Source identifies how a turn result was produced.
type Source string

const (
	// SourceLLM marks results parsed from a model response.
	SourceLLM Source = "llm"
	// SourceHeuristic marks results synthesized from the keyword scorer.
	SourceHeuristic Source = "heuristic"
)

// Defaults applied when the corresponding option is not set.
const (
	DefaultMaxTokens   = 96
	DefaultTemperature = 0.7

	// retryMinRemaining is the minimum context deadline headroom required
	// before the single retry on a transient backend error is attempted.
	retryMinRemaining = time.Second
)

// ScoringUpdate is the per-block score change produced by one turn.
type ScoringUpdate struct {
	// Block is the question block being updated. Always equals the current
	// node's category.
	Block string `json:"block"`

	// Delta is Score minus the block's previous score.
	Delta float64 `json:"delta"`

	// Score is the new absolute score for the answer, in [0,1].
	Score float64 `json:"score"`
}

// ReplyOut is the structured result of one turn: what to say, where to go,
// and how to adjust the score.
type ReplyOut struct {
	Reply         string        `json:"reply"`
	NextNodeID    string        `json:"next_node_id"`
	ScoringUpdate ScoringUpdate `json:"scoring_update"`
	RedFlags      []string      `json:"red_flags"`
}

// Result pairs a ReplyOut with its provenance.
type Result struct {
	ReplyOut

	// Source reports whether the result came from the model or was
	// synthesized heuristically.
	Source Source
}

// Request carries everything the engine needs to produce a turn result.
type Request struct {
	// RoleID is the role profile identifier, used for prompt framing and
	// template selection (e.g., "python_backend").
	RoleID string

	// Scenario is the interview scenario the session runs on.
	Scenario *scenario.Scenario

	// Node is the current scenario node whose question was just answered.
	Node *scenario.Node

	// Transcript is the candidate's finalized utterance.
	Transcript string

	// Scores holds the current per-block scores of the session.
	Scores map[string]float64

	// Profile is the role profile with thresholds and block weights.
	Profile *profile.RoleProfile

	// CVContext optionally carries resume fragments retrieved for this turn.
	CVContext []resume.SearchResult

	// HadCriticalFail reports whether a critical block already failed earlier
	// in the session. It steers the equivalence tie-break.
	HadCriticalFail bool
}

// Engine turns candidate answers into interviewer replies.
// It is safe for concurrent use.
type Engine struct {
	provider      llm.Provider
	logger        *slog.Logger
	maxTokens     int
	temperature   float64
	schemaEnforce bool
}

// config holds optional configuration collected from functional options.
type config struct {
	logger        *slog.Logger
	maxTokens     int
	temperature   float64
	schemaEnforce bool
}

// Option is a functional option for Engine.
type Option func(*config)

// WithLogger sets the logger used for fallback diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithMaxTokens caps the model output length. The cap keeps replies short
// enough to fit the turn latency budget.
func WithMaxTokens(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *config) { c.temperature = t }
}

// WithSchemaEnforce controls whether the JSON schema is attached to requests
// for backends that support grammar-constrained output. Enabled by default.
func WithSchemaEnforce(on bool) Option {
	return func(c *config) { c.schemaEnforce = on }
}

// New constructs an Engine over the given LLM provider.
func New(provider llm.Provider, opts ...Option) *Engine {
	cfg := &config{
		maxTokens:     DefaultMaxTokens,
		temperature:   DefaultTemperature,
		schemaEnforce: true,
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return &Engine{
		provider:      provider,
		logger:        cfg.logger,
		maxTokens:     cfg.maxTokens,
		temperature:   cfg.temperature,
		schemaEnforce: cfg.schemaEnforce,
	}
}

// GenerateReply produces the turn result for req.
//
// The model call is bounded by ctx; when the deadline passes the in-flight
// request is aborted and a deadline error is returned so the caller can apply
// its own fallback. Transient backend failures are retried once, and only
// when at least one second of deadline remains. Any unusable model output
// (unparsable text, wrong block, unknown node) degrades to the heuristic
// result instead of an error.
func (e *Engine) GenerateReply(ctx context.Context, req Request) (*Result, error) {
	if req.Node == nil || req.Scenario == nil {
		return nil, fmt.Errorf("dm: request needs a scenario and a current node")
	}

	completion := llm.CompletionRequest{
		SystemPrompt: buildSystemPrompt(req),
		Messages: []llm.Message{
			{Role: "user", Content: buildUserPrompt(req)},
		},
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
	}
	if e.schemaEnforce && e.provider.Capabilities().SupportsJSONSchema {
		completion.ResponseSchema = ReplySchema()
		completion.ResponseSchemaName = "turn_reply"
	}

	resp, err := e.complete(ctx, completion)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("dm: generate reply: %w", ctxErr)
		}
		return nil, fmt.Errorf("dm: generate reply: %w", err)
	}

	out, ok := e.parse(resp.Content, req)
	if !ok {
		e.logger.Warn("model output unusable, synthesizing heuristic reply",
			"node", req.Node.ID,
			"role", req.RoleID)
		h := e.Heuristic(req)
		return &h, nil
	}
	return &Result{ReplyOut: *out, Source: SourceLLM}, nil
}

// complete performs the model call with at most one retry on transient
// failures (HTTP 5xx, dropped streams), and only when enough deadline
// headroom remains for the retry to plausibly finish.
func (e *Engine) complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := e.provider.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}
	if !isTransient(err) {
		return nil, err
	}
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < retryMinRemaining {
		return nil, err
	}
	e.logger.Debug("retrying model call after transient error", "error", err)
	return e.provider.Complete(ctx, req)
}

// isTransient reports whether err looks like a server-side or stream failure
// worth one retry. Context cancellation is never transient.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "status 5"):
		return true
	case strings.Contains(msg, "unexpected EOF"):
		return true
	case strings.Contains(msg, "connection reset"):
		return true
	case strings.Contains(msg, "stream closed"):
		return true
	}
	return false
}

// parse extracts and validates a ReplyOut from raw model text. The second
// return value is false when the text yields nothing usable.
func (e *Engine) parse(raw string, req Request) (*ReplyOut, bool) {
	var out ReplyOut
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		sub := largestJSONObject(raw)
		if sub == "" {
			return nil, false
		}
		if err := json.Unmarshal([]byte(sub), &out); err != nil {
			return nil, false
		}
	}
	if !e.validate(&out, req) {
		return nil, false
	}
	return &out, true
}

// validate enforces the output contract: a non-empty reply, a scoring update
// for the current block with a score in [0,1], and a next node that is either
// terminal, one of the node's edges, or an existing node of the scenario.
func (e *Engine) validate(out *ReplyOut, req Request) bool {
	if strings.TrimSpace(out.Reply) == "" {
		return false
	}
	if out.ScoringUpdate.Block != req.Node.Category {
		return false
	}
	if out.ScoringUpdate.Score < 0 || out.ScoringUpdate.Score > 1 {
		return false
	}
	if out.NextNodeID != "" && req.Scenario.Node(out.NextNodeID) == nil {
		return false
	}
	if out.RedFlags == nil {
		out.RedFlags = []string{}
	}
	return true
}

// Heuristic synthesizes a turn result without the model: keyword scoring,
// the scenario selector for the transition, and a per-role reply template.
// The orchestrator also calls this directly when the model misses its
// deadline entirely.
func (e *Engine) Heuristic(req Request) Result {
	res := scoring.ScoreAnswer(req.Transcript, req.Node.SuccessCriteria)
	next := scenario.NextNode(req.Scenario, req.Node, res.Score, req.Profile, req.HadCriticalFail)
	prev := req.Scores[req.Node.Category]

	flags := scoring.RedFlags(req.Transcript, res.Confidence)
	if flags == nil {
		flags = []string{}
	}

	return Result{
		ReplyOut: ReplyOut{
			Reply:      TemplateReply(req.RoleID, req.Transcript, res.Score),
			NextNodeID: next,
			ScoringUpdate: ScoringUpdate{
				Block: req.Node.Category,
				Delta: res.Score - prev,
				Score: res.Score,
			},
			RedFlags: flags,
		},
		Source: SourceHeuristic,
	}
}
