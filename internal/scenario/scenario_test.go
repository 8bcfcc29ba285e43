package scenario_test

import (
	"strings"
	"testing"

	"github.com/Maratmain/ai-hr/internal/scenario"
)

func validScenario() *scenario.Scenario {
	return &scenario.Scenario{
		ID:            "python_backend",
		SchemaVersion: scenario.CurrentSchemaVersion,
		Policy:        scenario.Policy{DrillThreshold: 0.7},
		StartID:       "python_l1_intro",
		Nodes: []scenario.Node{
			{
				ID:              "python_l1_intro",
				Category:        "python_backend",
				Order:           1,
				Question:        "Расскажите о вашем опыте с Python.",
				Weight:          1.0,
				SuccessCriteria: []string{"python", "опыт", "проекты"},
				NextIfPass:      "python_l3_advanced",
				NextIfFail:      "python_l2_basics",
			},
			{
				ID:              "python_l2_basics",
				Category:        "python_backend",
				Order:           2,
				Question:        "Что такое GIL?",
				Weight:          0.8,
				SuccessCriteria: []string{"gil", "потоки"},
			},
			{
				ID:              "python_l3_advanced",
				Category:        "python_backend",
				Order:           3,
				Question:        "Как устроен asyncio?",
				Weight:          1.0,
				SuccessCriteria: []string{"event loop", "корутины"},
			},
		},
	}
}

func TestValidate_OK(t *testing.T) {
	t.Parallel()
	sc := validScenario()
	if err := sc.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.Node("python_l2_basics") == nil {
		t.Error("Node lookup should resolve after Validate")
	}
	if sc.Node("missing") != nil {
		t.Error("Node lookup for unknown id should return nil")
	}
}

func TestValidate_DuplicateNodeID(t *testing.T) {
	t.Parallel()
	sc := validScenario()
	sc.Nodes = append(sc.Nodes, sc.Nodes[1])
	err := sc.Validate()
	if err == nil {
		t.Fatal("expected error for duplicate node id, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error should mention duplicate, got: %v", err)
	}
}

func TestValidate_UnresolvedTransition(t *testing.T) {
	t.Parallel()
	sc := validScenario()
	sc.Nodes[0].NextIfPass = "nowhere"
	err := sc.Validate()
	if err == nil {
		t.Fatal("expected error for unresolved transition, got nil")
	}
	if !strings.Contains(err.Error(), "nowhere") {
		t.Errorf("error should name the bad target, got: %v", err)
	}
}

func TestValidate_SelfTransition(t *testing.T) {
	t.Parallel()
	sc := validScenario()
	sc.Nodes[0].NextIfFail = sc.Nodes[0].ID
	err := sc.Validate()
	if err == nil {
		t.Fatal("expected error for self transition, got nil")
	}
}

func TestValidate_NoTerminalPath(t *testing.T) {
	t.Parallel()
	sc := &scenario.Scenario{
		ID:      "loop",
		StartID: "a",
		Nodes: []scenario.Node{
			{ID: "a", Category: "c", Question: "?", Weight: 1, SuccessCriteria: []string{"x"}, NextIfPass: "b", NextIfFail: "b"},
			{ID: "b", Category: "c", Question: "?", Weight: 1, SuccessCriteria: []string{"x"}, NextIfPass: "a", NextIfFail: "a"},
		},
	}
	err := sc.Validate()
	if err == nil {
		t.Fatal("expected error for unreachable terminal, got nil")
	}
	if !strings.Contains(err.Error(), "terminal") {
		t.Errorf("error should mention terminal reachability, got: %v", err)
	}
}

func TestValidate_WeightOutOfRange(t *testing.T) {
	t.Parallel()
	sc := validScenario()
	sc.Nodes[0].Weight = 1.5
	if err := sc.Validate(); err == nil {
		t.Fatal("expected error for weight out of range, got nil")
	}
}

func TestValidate_EmptyCriteria(t *testing.T) {
	t.Parallel()
	sc := validScenario()
	sc.Nodes[2].SuccessCriteria = nil
	if err := sc.Validate(); err == nil {
		t.Fatal("expected error for empty success criteria, got nil")
	}
}

func TestDrillThreshold_Default(t *testing.T) {
	t.Parallel()
	sc := validScenario()
	sc.Policy.DrillThreshold = 0
	if got := sc.DrillThreshold(); got != scenario.DefaultDrillThreshold {
		t.Errorf("DrillThreshold() = %v, want default %v", got, scenario.DefaultDrillThreshold)
	}
}

func TestGenerate_ProducesValidChain(t *testing.T) {
	t.Parallel()
	sc := scenario.Generate("golang")
	if err := sc.Validate(); err != nil {
		t.Fatalf("generated scenario invalid: %v", err)
	}
	if sc.StartID != "golang_l1_intro" {
		t.Errorf("StartID = %q, want golang_l1_intro", sc.StartID)
	}
	start := sc.Node(sc.StartID)
	if start == nil {
		t.Fatal("start node missing")
	}
	if start.NextIfPass != "golang_l3_advanced" || start.NextIfFail != "golang_l2_basics" {
		t.Errorf("intro transitions = (%q, %q), want (golang_l3_advanced, golang_l2_basics)",
			start.NextIfPass, start.NextIfFail)
	}
	for _, n := range sc.Nodes {
		if n.Category != "golang" {
			t.Errorf("node %q category = %q, want golang", n.ID, n.Category)
		}
	}
}
