// Package turn runs the per-turn pipeline: one finalized candidate utterance
// in, one committed turn record out.
//
// A turn fans out into concurrent forks, each with its own deadline carved
// from the turn budget: the backchannel pick (immediate acknowledgement), the
// CV retrieval lookup, and the LLM reply. A heuristic result is always
// computed as the floor; whatever the LLM path fails to deliver in time is
// replaced by it, so the caller always gets a reply within the SLA. State
// mutation happens exactly once, at commit, under the session lock, and never
// after the turn has been superseded.
package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Maratmain/ai-hr/internal/backchannel"
	"github.com/Maratmain/ai-hr/internal/dm"
	"github.com/Maratmain/ai-hr/internal/profile"
	"github.com/Maratmain/ai-hr/internal/retrieval"
	"github.com/Maratmain/ai-hr/internal/scenario"
	"github.com/Maratmain/ai-hr/internal/scoring"
	"github.com/Maratmain/ai-hr/internal/session"
	"github.com/Maratmain/ai-hr/pkg/resume"
)

// ErrTerminal is returned when a turn is submitted to a finished interview.
var ErrTerminal = errors.New("interview has already finished")

// Default stage budgets.
const (
	DefaultBackchannelDeadline = 500 * time.Millisecond
	DefaultTurnDeadline        = 5 * time.Second
	DefaultSafetyMargin        = 300 * time.Millisecond

	// cvWaitCap bounds how long the reply fork waits for CV context before
	// proceeding without it.
	cvWaitCap = 800 * time.Millisecond
)

// Recorder receives per-stage timings and completed turns. Implemented by the
// observe package; a nil Recorder disables recording.
type Recorder interface {
	RecordStage(stage string, d time.Duration, ok bool)
	RecordTurn(rec session.TurnRecord)
}

// Stage names passed to [Recorder.RecordStage].
const (
	StageBackchannel = "backchannel"
	StageRetrieval   = "retrieval"
	StageLLM         = "llm"
	StageTurn        = "turn"
)

// Orchestrator drives turns for all sessions. Safe for concurrent use.
type Orchestrator struct {
	sessions  *session.Manager
	scenarios *scenario.Store
	profiles  *profile.Store
	engine    *dm.Engine
	backch    *backchannel.Engine
	retriever *retrieval.Adapter
	recorder  Recorder
	logger    *slog.Logger

	backchannelDeadline time.Duration
	turnDeadline        time.Duration
	safetyMargin        time.Duration
}

// config holds optional configuration collected from functional options.
type config struct {
	retriever           *retrieval.Adapter
	recorder            Recorder
	logger              *slog.Logger
	backchannelDeadline time.Duration
	turnDeadline        time.Duration
	safetyMargin        time.Duration
}

// Option is a functional option for Orchestrator.
type Option func(*config)

// WithRetriever enables the CV context fork.
func WithRetriever(r *retrieval.Adapter) Option {
	return func(c *config) { c.retriever = r }
}

// WithRecorder wires stage timings and turn records into metrics.
func WithRecorder(r Recorder) Option {
	return func(c *config) { c.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithDeadlines overrides the stage budgets: the backchannel deadline, the
// total turn deadline, and the safety margin subtracted from the turn
// deadline for the LLM call. Non-positive values keep the defaults.
func WithDeadlines(backchannelD, turnD, safety time.Duration) Option {
	return func(c *config) {
		if backchannelD > 0 {
			c.backchannelDeadline = backchannelD
		}
		if turnD > 0 {
			c.turnDeadline = turnD
		}
		if safety > 0 {
			c.safetyMargin = safety
		}
	}
}

// New constructs an Orchestrator over the given stores and engines.
func New(sessions *session.Manager, scenarios *scenario.Store, profiles *profile.Store, engine *dm.Engine, backch *backchannel.Engine, opts ...Option) *Orchestrator {
	cfg := &config{
		backchannelDeadline: DefaultBackchannelDeadline,
		turnDeadline:        DefaultTurnDeadline,
		safetyMargin:        DefaultSafetyMargin,
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return &Orchestrator{
		sessions:            sessions,
		scenarios:           scenarios,
		profiles:            profiles,
		engine:              engine,
		backch:              backch,
		retriever:           cfg.retriever,
		recorder:            cfg.recorder,
		logger:              cfg.logger,
		backchannelDeadline: cfg.backchannelDeadline,
		turnDeadline:        cfg.turnDeadline,
		safetyMargin:        cfg.safetyMargin,
	}
}

// Run processes one finalized transcript for the session and returns the
// committed turn record.
//
// The turn is cancelled, and no state is committed, when the session ends or
// a newer transcript arrives while this one is still processing; Run then
// returns [session.ErrSuperseded].
func (o *Orchestrator) Run(ctx context.Context, sessionID, transcript string) (*session.TurnRecord, error) {
	h, err := o.sessions.StartTurn(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("turn: %w", err)
	}
	t0 := time.Now()

	snap := h.State()
	if snap.Terminal() {
		return nil, fmt.Errorf("turn: session %s: %w", sessionID, ErrTerminal)
	}

	sc := o.scenarios.Get(snap.ScenarioID)
	node := sc.Node(snap.CurrentNodeID)
	if node == nil {
		return nil, fmt.Errorf("turn: session %s: node %q missing from scenario %q", sessionID, snap.CurrentNodeID, sc.ID)
	}
	prof := o.profiles.Get(snap.RoleID)

	// The heuristic floor: cheap, always available, drives the backchannel
	// tone and replaces the LLM result when that path misses its deadline.
	floorScore := scoring.ScoreAnswer(transcript, node.SuccessCriteria)

	req := dm.Request{
		RoleID:          snap.RoleID,
		Scenario:        sc,
		Node:            node,
		Transcript:      transcript,
		Scores:          snap.BlockScores,
		Profile:         prof,
		HadCriticalFail: snap.HadCriticalFail,
	}

	cvCh := make(chan []resume.SearchResult, 1)
	var (
		result      *dm.Result
		llmDuration time.Duration
		bcText      string
	)

	g, _ := errgroup.WithContext(h.Ctx)

	// Backchannel fork. Failure (rate limit, superseded, deadline) is silent.
	g.Go(func() error {
		bcStart := time.Now()
		utterance, ok := o.backch.Pick(sessionID, snap.RoleID, floorScore.Score, bcStart)
		if ok && time.Since(t0) < o.backchannelDeadline {
			h.PublishBackchannel(utterance)
			bcText = utterance
		}
		o.recordStage(StageBackchannel, time.Since(bcStart), ok)
		return nil
	})

	// Context fetch fork. The adapter applies its own timeout and returns
	// empty on any failure.
	g.Go(func() error {
		defer close(cvCh)
		if o.retriever == nil || snap.CVID == "" {
			return nil
		}
		start := time.Now()
		results := o.retriever.Search(h.Ctx, snap.CVID, node.Question+" "+transcript)
		o.recordStage(StageRetrieval, time.Since(start), len(results) > 0)
		if len(results) > 0 {
			cvCh <- results
		}
		return nil
	})

	// Substantive fork: wait briefly for CV context, then call the model.
	g.Go(func() error {
		waitCap := time.NewTimer(cvWaitCap)
		defer waitCap.Stop()
		select {
		case cv := <-cvCh:
			req.CVContext = cv
		case <-waitCap.C:
		case <-h.Ctx.Done():
			return nil
		}

		llmCtx, cancel := context.WithDeadline(h.Ctx, t0.Add(o.turnDeadline-o.safetyMargin))
		defer cancel()

		start := time.Now()
		r, err := o.engine.GenerateReply(llmCtx, req)
		llmDuration = time.Since(start)
		o.recordStage(StageLLM, llmDuration, err == nil)
		if err != nil {
			o.logger.Warn("reply generation failed, using heuristic floor",
				"session_id", sessionID,
				"node", node.ID,
				"error", err)
			return nil
		}
		result = r
		return nil
	})

	_ = g.Wait()

	if err := h.Ctx.Err(); err != nil {
		return nil, fmt.Errorf("turn: session %s: %w", sessionID, session.ErrSuperseded)
	}

	if result == nil {
		floor := o.engine.Heuristic(req)
		result = &floor
	}

	// Detected flags ride on the record and the state alike, whichever path
	// produced the reply.
	result.RedFlags = mergeFlags(result.RedFlags, scoring.RedFlags(transcript, floorScore.Confidence))

	record := buildRecord(node.ID, transcript, bcText, result, t0, llmDuration)

	err = h.Commit(record, func(st *session.State) {
		applyResult(st, node, prof, result)
	})
	if err != nil {
		return nil, fmt.Errorf("turn: session %s: %w", sessionID, err)
	}

	record.SessionID = sessionID
	record.TurnSeq = h.Seq
	o.recordStage(StageTurn, time.Since(t0), true)
	if o.recorder != nil {
		o.recorder.RecordTurn(record)
	}
	return &record, nil
}

// buildRecord assembles the turn record from the resolved result.
func buildRecord(nodeID, transcript, bcText string, result *dm.Result, t0 time.Time, llmDuration time.Duration) session.TurnRecord {
	total := time.Since(t0)
	return session.TurnRecord{
		NodeID:          nodeID,
		Transcript:      transcript,
		BackchannelText: bcText,
		ReplyText:       result.Reply,
		NextNodeID:      result.NextNodeID,
		ScoringUpdate: session.ScoringUpdate{
			Block: result.ScoringUpdate.Block,
			Delta: result.ScoringUpdate.Delta,
			Score: result.ScoringUpdate.Score,
		},
		RedFlags: result.RedFlags,
		Source:   string(result.Source),
		Timings: session.Timings{
			LLMMs:   llmDuration.Milliseconds(),
			DMMs:    (total - llmDuration).Milliseconds(),
			TotalMs: total.Milliseconds(),
		},
	}
}

// applyResult mutates the session state under its lock: records the answer,
// recomputes scores, advances the node, and tracks red flags and critical
// failures. CPU-only, no suspension while the lock is held.
func applyResult(st *session.State, node *scenario.Node, prof *profile.RoleProfile, result *dm.Result) {
	upd := result.ScoringUpdate
	st.Answers = append(st.Answers, scoring.QAnswer{
		QuestionID: node.ID,
		Block:      node.Category,
		Score:      upd.Score,
		Weight:     node.Weight,
	})
	st.BlockScores = scoring.ScoreBlocks(st.Answers)
	st.Overall = scoring.ScoreOverall(st.BlockScores, prof.BlockWeights)
	st.CurrentNodeID = result.NextNodeID

	st.RedFlags = mergeFlags(st.RedFlags, result.RedFlags)

	if prof.IsCritical(node.Category) && upd.Score < prof.Thresholds.CriticalFail {
		st.HadCriticalFail = true
		// A failed critical block ends the interview.
		st.CurrentNodeID = ""
	}
}

// mergeFlags appends the flags missing from dst, preserving order.
func mergeFlags(dst, add []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, f := range dst {
		seen[f] = true
	}
	for _, f := range add {
		if !seen[f] {
			dst = append(dst, f)
			seen[f] = true
		}
	}
	return dst
}

// recordStage forwards a stage timing when a recorder is configured.
func (o *Orchestrator) recordStage(stage string, d time.Duration, ok bool) {
	if o.recorder != nil {
		o.recorder.RecordStage(stage, d, ok)
	}
}
