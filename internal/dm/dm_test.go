package dm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Maratmain/ai-hr/internal/profile"
	"github.com/Maratmain/ai-hr/internal/scenario"
	"github.com/Maratmain/ai-hr/pkg/provider/llm"
	llmmock "github.com/Maratmain/ai-hr/pkg/provider/llm/mock"
)

func testScenario(t *testing.T) *scenario.Scenario {
	t.Helper()
	sc := &scenario.Scenario{
		ID:            "python_backend",
		SchemaVersion: scenario.CurrentSchemaVersion,
		StartID:       "python_l1_intro",
		Nodes: []scenario.Node{
			{
				ID:              "python_l1_intro",
				Category:        "python_backend",
				Question:        "Расскажите о вашем опыте с Python.",
				Weight:          1.0,
				SuccessCriteria: []string{"python", "опыт", "проекты"},
				NextIfPass:      "python_l3_advanced",
				NextIfFail:      "python_l2_basics",
			},
			{
				ID:              "python_l2_basics",
				Category:        "python_backend",
				Question:        "Какие базовые конструкции языка вы знаете?",
				Weight:          0.5,
				SuccessCriteria: []string{"типы", "функции"},
			},
			{
				ID:              "python_l3_advanced",
				Category:        "python_backend",
				Question:        "Как устроен GIL?",
				Weight:          1.0,
				SuccessCriteria: []string{"gil", "потоки"},
			},
		},
	}
	if err := sc.Validate(); err != nil {
		t.Fatalf("fixture scenario invalid: %v", err)
	}
	return sc
}

func testProfile() *profile.RoleProfile {
	return &profile.RoleProfile{
		ID:           "python_backend",
		BlockWeights: map[string]float64{"python_backend": 1},
		Thresholds: profile.Thresholds{
			Pass:         0.6,
			Drill:        0.7,
			Equivalent:   0.6,
			CriticalFail: 0.3,
		},
	}
}

func testRequest(t *testing.T, transcript string) Request {
	t.Helper()
	sc := testScenario(t)
	return Request{
		RoleID:     "python_backend",
		Scenario:   sc,
		Node:       sc.Node("python_l1_intro"),
		Transcript: transcript,
		Scores:     map[string]float64{},
		Profile:    testProfile(),
	}
}

const validModelJSON = `{
	"reply": "Хорошо, переходим к более сложным вопросам.",
	"next_node_id": "python_l3_advanced",
	"scoring_update": {"block": "python_backend", "delta": 0.8, "score": 0.8},
	"red_flags": []
}`

func TestGenerateReply_ValidJSON(t *testing.T) {
	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: validModelJSON},
	}
	e := New(p)

	got, err := e.GenerateReply(context.Background(), testRequest(t, "Работал с Python 5 лет"))
	if err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	if got.Source != SourceLLM {
		t.Errorf("source: got %q, want llm", got.Source)
	}
	if got.NextNodeID != "python_l3_advanced" {
		t.Errorf("next node: got %q", got.NextNodeID)
	}
	if got.ScoringUpdate.Score != 0.8 {
		t.Errorf("score: got %v", got.ScoringUpdate.Score)
	}
}

func TestGenerateReply_ExtractsWrappedJSON(t *testing.T) {
	wrapped := "Вот результат оценки:\n```json\n" + validModelJSON + "\n```\nНадеюсь, это поможет."
	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: wrapped},
	}
	e := New(p)

	got, err := e.GenerateReply(context.Background(), testRequest(t, "ответ"))
	if err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	if got.Source != SourceLLM {
		t.Fatalf("source: got %q, want llm", got.Source)
	}
	if got.NextNodeID != "python_l3_advanced" {
		t.Errorf("next node: got %q", got.NextNodeID)
	}
}

func TestGenerateReply_GarbageFallsBackToHeuristic(t *testing.T) {
	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "извините, я не могу вернуть JSON"},
	}
	e := New(p)

	transcript := "Работал с Python 5 лет, опыт больших проектов, проекты были сложные и интересные"
	got, err := e.GenerateReply(context.Background(), testRequest(t, transcript))
	if err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	if got.Source != SourceHeuristic {
		t.Fatalf("source: got %q, want heuristic", got.Source)
	}
	if got.ScoringUpdate.Block != "python_backend" {
		t.Errorf("block: got %q", got.ScoringUpdate.Block)
	}
	// Full criteria coverage on a long answer advances on the pass edge.
	if got.NextNodeID != "python_l3_advanced" {
		t.Errorf("next node: got %q, want python_l3_advanced", got.NextNodeID)
	}
	if got.Reply == "" {
		t.Error("heuristic reply must not be empty")
	}
	// A substantive answer with full criteria coverage raises no flags.
	if got.RedFlags == nil || len(got.RedFlags) != 0 {
		t.Errorf("heuristic red flags: got %v, want empty", got.RedFlags)
	}
}

func TestHeuristic_EmptyTranscriptFlagsEmptyAnswer(t *testing.T) {
	e := New(&llmmock.Provider{})

	got := e.Heuristic(testRequest(t, ""))
	if got.ScoringUpdate.Score != 0 {
		t.Errorf("score: got %v, want 0", got.ScoringUpdate.Score)
	}
	if len(got.RedFlags) != 1 || got.RedFlags[0] != "empty_answer" {
		t.Errorf("red flags: got %v, want [empty_answer]", got.RedFlags)
	}
}

func TestHeuristic_UncertaintyFlagsLowConfidence(t *testing.T) {
	e := New(&llmmock.Provider{})

	got := e.Heuristic(testRequest(t, "честно говоря, я не уверен, как это устроено внутри"))
	found := false
	for _, f := range got.RedFlags {
		if f == "low_confidence" {
			found = true
		}
	}
	if !found {
		t.Errorf("red flags: got %v, want low_confidence", got.RedFlags)
	}
}

func TestGenerateReply_WrongBlockRejected(t *testing.T) {
	bad := strings.Replace(validModelJSON, `"block": "python_backend"`, `"block": "devops"`, 1)
	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: bad},
	}
	e := New(p)

	got, err := e.GenerateReply(context.Background(), testRequest(t, "короткий ответ"))
	if err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	if got.Source != SourceHeuristic {
		t.Errorf("mismatched block must degrade to heuristic, got source %q", got.Source)
	}
}

func TestGenerateReply_UnknownNodeRejected(t *testing.T) {
	bad := strings.Replace(validModelJSON, "python_l3_advanced", "made_up_node", 1)
	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: bad},
	}
	e := New(p)

	got, err := e.GenerateReply(context.Background(), testRequest(t, "ответ"))
	if err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	if got.Source != SourceHeuristic {
		t.Errorf("unknown next node must degrade to heuristic, got source %q", got.Source)
	}
}

func TestGenerateReply_EmptyNextNodeIsTerminal(t *testing.T) {
	terminal := strings.Replace(validModelJSON, `"next_node_id": "python_l3_advanced"`, `"next_node_id": ""`, 1)
	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: terminal},
	}
	e := New(p)

	got, err := e.GenerateReply(context.Background(), testRequest(t, "ответ"))
	if err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	if got.Source != SourceLLM {
		t.Fatalf("source: got %q, want llm", got.Source)
	}
	if got.NextNodeID != "" {
		t.Errorf("next node: got %q, want empty (terminal)", got.NextNodeID)
	}
}

func TestGenerateReply_RetriesOnceOnServerError(t *testing.T) {
	calls := 0
	p := &llmmock.Provider{}
	p.CompleteFunc = func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("llamacpp: unexpected status 502: bad gateway")
		}
		return &llm.CompletionResponse{Content: validModelJSON}, nil
	}
	e := New(p)

	got, err := e.GenerateReply(context.Background(), testRequest(t, "ответ"))
	if err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected exactly one retry, got %d calls", calls)
	}
	if got.Source != SourceLLM {
		t.Errorf("source: got %q, want llm", got.Source)
	}
}

func TestGenerateReply_NoRetryWhenDeadlineShort(t *testing.T) {
	calls := 0
	p := &llmmock.Provider{}
	p.CompleteFunc = func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		calls++
		return nil, errors.New("llamacpp: unexpected status 503: overloaded")
	}
	e := New(p)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := e.GenerateReply(ctx, testRequest(t, "ответ"))
	if err == nil {
		t.Fatal("expected error when the backend keeps failing")
	}
	if calls != 1 {
		t.Errorf("retry with <1s deadline remaining must be skipped, got %d calls", calls)
	}
}

func TestGenerateReply_NoRetryOnNonTransientError(t *testing.T) {
	calls := 0
	p := &llmmock.Provider{}
	p.CompleteFunc = func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		calls++
		return nil, errors.New("openai: unexpected status 401: invalid api key")
	}
	e := New(p)

	_, err := e.GenerateReply(context.Background(), testRequest(t, "ответ"))
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("auth errors must not be retried, got %d calls", calls)
	}
}

func TestGenerateReply_DeadlineExceeded(t *testing.T) {
	p := &llmmock.Provider{
		CompleteDelay:    time.Second,
		CompleteResponse: &llm.CompletionResponse{Content: validModelJSON},
	}
	e := New(p)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := e.GenerateReply(ctx, testRequest(t, "ответ"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestGenerateReply_SchemaAttachment(t *testing.T) {
	tests := []struct {
		name       string
		supports   bool
		enforce    bool
		wantSchema bool
	}{
		{"grammar backend with enforcement", true, true, true},
		{"grammar backend, enforcement off", true, false, false},
		{"plain backend", false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &llmmock.Provider{
				CompleteResponse:  &llm.CompletionResponse{Content: validModelJSON},
				ModelCapabilities: llm.ModelCapabilities{SupportsJSONSchema: tt.supports},
			}
			e := New(p, WithSchemaEnforce(tt.enforce))

			if _, err := e.GenerateReply(context.Background(), testRequest(t, "ответ")); err != nil {
				t.Fatalf("GenerateReply: %v", err)
			}
			if len(p.CompleteCalls) != 1 {
				t.Fatalf("expected 1 call, got %d", len(p.CompleteCalls))
			}
			got := p.CompleteCalls[0].Req.ResponseSchema != nil
			if got != tt.wantSchema {
				t.Errorf("schema attached = %v, want %v", got, tt.wantSchema)
			}
		})
	}
}

func TestGenerateReply_TokenCap(t *testing.T) {
	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: validModelJSON},
	}
	e := New(p)

	if _, err := e.GenerateReply(context.Background(), testRequest(t, "ответ")); err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	if got := p.CompleteCalls[0].Req.MaxTokens; got != DefaultMaxTokens {
		t.Errorf("max tokens: got %d, want %d", got, DefaultMaxTokens)
	}
}

func TestHeuristic_FailPath(t *testing.T) {
	e := New(&llmmock.Provider{})
	req := testRequest(t, "ну я не знаю")

	got := e.Heuristic(req)
	if got.Source != SourceHeuristic {
		t.Fatalf("source: got %q", got.Source)
	}
	if got.NextNodeID != "python_l2_basics" {
		t.Errorf("weak answer must take the fail edge, got %q", got.NextNodeID)
	}
	if got.ScoringUpdate.Score >= 0.7 {
		t.Errorf("weak answer scored %v", got.ScoringUpdate.Score)
	}
}
