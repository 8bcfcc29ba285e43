package observe

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/Maratmain/ai-hr/internal/session"
)

// Stage names used by the turn pipeline.
const (
	StageBackchannel = "backchannel"
	StageRetrieval   = "retrieval"
	StageLLM         = "llm"
	StageTurn        = "turn"
)

// DefaultRecorderCapacity bounds how many samples per kind the recorder keeps.
const DefaultRecorderCapacity = 4096

// stageSample is one recorded stage execution.
type stageSample struct {
	stage string
	at    time.Time
	d     time.Duration
	ok    bool
}

// turnSample is one committed turn.
type turnSample struct {
	at     time.Time
	source string
}

// Recorder keeps a bounded in-memory window of stage latencies and committed
// turns, and mirrors every observation into the OTel instruments. It backs
// the metrics summary endpoint; Prometheus scraping goes through the OTel
// Prometheus bridge instead.
//
// Safe for concurrent use.
type Recorder struct {
	metrics *Metrics

	// budgets holds the per-stage latency budget. Samples over budget count
	// as SLA violations.
	budgets map[string]time.Duration

	mu         sync.Mutex
	stages     []stageSample
	stagesNext int
	turns      []turnSample
	turnsNext  int
}

// RecorderOption customises a [Recorder].
type RecorderOption func(*Recorder)

// WithCapacity overrides the ring capacity for both sample kinds.
func WithCapacity(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.stages = make([]stageSample, 0, n)
			r.turns = make([]turnSample, 0, n)
		}
	}
}

// WithBudget sets the latency budget for one stage.
func WithBudget(stage string, d time.Duration) RecorderOption {
	return func(r *Recorder) { r.budgets[stage] = d }
}

// NewRecorder creates a Recorder over the given instruments. The default
// budgets match the turn pipeline: 500ms backchannel, 800ms retrieval,
// 5s for the model call and the whole turn.
func NewRecorder(m *Metrics, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		metrics: m,
		budgets: map[string]time.Duration{
			StageBackchannel: 500 * time.Millisecond,
			StageRetrieval:   800 * time.Millisecond,
			StageLLM:         5 * time.Second,
			StageTurn:        5 * time.Second,
		},
		stages: make([]stageSample, 0, DefaultRecorderCapacity),
		turns:  make([]turnSample, 0, DefaultRecorderCapacity),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RecordStage stores one stage latency sample and mirrors it into the OTel
// histogram for the stage. Unknown stages are kept in the window but have no
// histogram and no budget.
func (r *Recorder) RecordStage(stage string, d time.Duration, ok bool) {
	now := time.Now()
	ctx := context.Background()

	if r.metrics != nil {
		if h := r.histogramFor(stage); h != nil {
			h.Record(ctx, d.Seconds())
		}
		if budget, has := r.budgets[stage]; has && d > budget {
			r.metrics.RecordSLAViolation(ctx, stage)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s := stageSample{stage: stage, at: now, d: d, ok: ok}
	if len(r.stages) < cap(r.stages) {
		r.stages = append(r.stages, s)
	} else {
		r.stages[r.stagesNext] = s
		r.stagesNext = (r.stagesNext + 1) % cap(r.stages)
	}
}

// RecordTurn stores one committed turn and increments the turns counter.
func (r *Recorder) RecordTurn(rec session.TurnRecord) {
	if r.metrics != nil {
		r.metrics.RecordTurnResult(context.Background(), rec.Source)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s := turnSample{at: time.Now(), source: rec.Source}
	if len(r.turns) < cap(r.turns) {
		r.turns = append(r.turns, s)
	} else {
		r.turns[r.turnsNext] = s
		r.turnsNext = (r.turnsNext + 1) % cap(r.turns)
	}
}

// histogramFor maps a stage name to its latency histogram, nil for stages
// without a dedicated instrument.
func (r *Recorder) histogramFor(stage string) metric.Float64Histogram {
	switch stage {
	case StageBackchannel:
		return r.metrics.BackchannelDuration
	case StageRetrieval:
		return r.metrics.RetrievalDuration
	case StageLLM:
		return r.metrics.LLMDuration
	case StageTurn:
		return r.metrics.TurnDuration
	default:
		return nil
	}
}

// StageSummary aggregates the window's samples for one stage.
type StageSummary struct {
	Count    int     `json:"count"`
	Failures int     `json:"failures"`
	P50Ms    float64 `json:"p50_ms"`
	P95Ms    float64 `json:"p95_ms"`
	P99Ms    float64 `json:"p99_ms"`
}

// Summary is the aggregated view of recent pipeline activity.
type Summary struct {
	// WindowMs is the aggregation window requested, in milliseconds.
	WindowMs int64 `json:"window_ms"`

	// Turns is the number of committed turns in the window.
	Turns int `json:"turns"`

	// TurnsBySource splits Turns by result source ("llm", "heuristic").
	TurnsBySource map[string]int `json:"turns_by_source"`

	// Stages holds latency percentiles per recorded stage.
	Stages map[string]StageSummary `json:"stages"`

	// SLACompliance is the share of turn-stage samples within budget, in
	// [0, 1]. 1 when the window holds no turn samples.
	SLACompliance float64 `json:"sla_compliance"`
}

// Summarize aggregates every sample recorded within the trailing window.
// A non-positive window covers everything still held in the rings.
func (r *Recorder) Summarize(window time.Duration) Summary {
	cutoff := time.Time{}
	if window > 0 {
		cutoff = time.Now().Add(-window)
	}

	r.mu.Lock()
	stages := make([]stageSample, 0, len(r.stages))
	for _, s := range r.stages {
		if s.at.After(cutoff) {
			stages = append(stages, s)
		}
	}
	turns := make([]turnSample, 0, len(r.turns))
	for _, s := range r.turns {
		if s.at.After(cutoff) {
			turns = append(turns, s)
		}
	}
	turnBudget := r.budgets[StageTurn]
	r.mu.Unlock()

	out := Summary{
		WindowMs:      window.Milliseconds(),
		Turns:         len(turns),
		TurnsBySource: make(map[string]int),
		Stages:        make(map[string]StageSummary),
		SLACompliance: 1,
	}
	for _, s := range turns {
		out.TurnsBySource[s.source]++
	}

	byStage := make(map[string][]time.Duration)
	failures := make(map[string]int)
	for _, s := range stages {
		byStage[s.stage] = append(byStage[s.stage], s.d)
		if !s.ok {
			failures[s.stage]++
		}
	}
	for stage, ds := range byStage {
		sort.Slice(ds, func(i, j int) bool { return ds[i] < ds[j] })
		out.Stages[stage] = StageSummary{
			Count:    len(ds),
			Failures: failures[stage],
			P50Ms:    percentileMs(ds, 0.50),
			P95Ms:    percentileMs(ds, 0.95),
			P99Ms:    percentileMs(ds, 0.99),
		}
	}

	if turnDs, ok := byStage[StageTurn]; ok && len(turnDs) > 0 && turnBudget > 0 {
		within := 0
		for _, d := range turnDs {
			if d <= turnBudget {
				within++
			}
		}
		out.SLACompliance = float64(within) / float64(len(turnDs))
	}
	return out
}

// percentileMs returns the q-th percentile of the sorted durations in
// milliseconds, using the nearest-rank method.
func percentileMs(sorted []time.Duration, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(q*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return float64(sorted[rank].Nanoseconds()) / 1e6
}
