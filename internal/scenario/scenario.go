// Package scenario defines the branching interview scenario model and the
// store that loads, validates, and persists scenarios.
//
// A Scenario is a directed graph of question [Node] values connected by
// pass/fail/equivalence edges. Scenarios are immutable once loaded; the
// [Store] replaces them atomically so concurrent readers always observe a
// consistent snapshot.
package scenario

import (
	"errors"
	"fmt"
)

// CurrentSchemaVersion is the scenario file schema version this build accepts.
const CurrentSchemaVersion = "0.1"

// DefaultDrillThreshold is the policy fallback used when a scenario does not
// declare its own drill threshold.
const DefaultDrillThreshold = 0.7

// Policy carries per-scenario scoring policy knobs.
type Policy struct {
	// DrillThreshold is the score at or above which the interview advances to
	// the deeper question instead of the remedial one. Range [0, 1].
	DrillThreshold float64 `json:"drill_threshold"`
}

// Node is a single interview question with its assessment criteria and
// outgoing transitions. Transitions are stored as node ids, not pointers, so
// the in-memory graph stays acyclic in ownership terms.
type Node struct {
	// ID is unique within the owning scenario.
	ID string `json:"id"`

	// Category is the competence block this question assesses
	// (e.g. "python_backend", "AntiFraud_Rules").
	Category string `json:"category"`

	// Order is the display position of the question (1-based).
	Order int `json:"order"`

	// Question is the text the interviewer asks.
	Question string `json:"question"`

	// Weight is the question's importance within its block. Range [0, 1].
	Weight float64 `json:"weight"`

	// SuccessCriteria are the keywords or short phrases an answer is scored
	// against. Must be non-empty.
	SuccessCriteria []string `json:"success_criteria"`

	// Followups are optional clarifying questions, in preference order.
	Followups []string `json:"followups,omitempty"`

	// NextIfPass is the node to move to when the answer meets the drill
	// threshold. Empty means the interview ends on a pass.
	NextIfPass string `json:"next_if_pass,omitempty"`

	// NextIfFail is the node to move to when the answer falls short.
	// Empty means the interview ends on a fail.
	NextIfFail string `json:"next_if_fail,omitempty"`

	// NextIfEquivalent is an optional alternative edge taken when the
	// candidate compensates for this block with a related strong one.
	NextIfEquivalent string `json:"next_if_equivalent,omitempty"`
}

// Scenario is a complete interview graph. Instances are immutable after
// [Scenario.Validate]; the store hands out shared pointers.
type Scenario struct {
	ID            string `json:"id"`
	SchemaVersion string `json:"schema_version"`
	Policy        Policy `json:"policy"`
	StartID       string `json:"start_id"`
	Nodes         []Node `json:"nodes"`

	// byID is built during validation for O(1) node lookup.
	byID map[string]*Node
}

// Node returns the node with the given id, or nil when the scenario has no
// such node. The scenario must have passed [Scenario.Validate] first.
func (s *Scenario) Node(id string) *Node {
	return s.byID[id]
}

// DrillThreshold returns the scenario's drill threshold, falling back to
// [DefaultDrillThreshold] when the policy leaves it unset.
func (s *Scenario) DrillThreshold() float64 {
	if s.Policy.DrillThreshold <= 0 {
		return DefaultDrillThreshold
	}
	return s.Policy.DrillThreshold
}

// Validate checks the scenario's structural invariants and builds the node
// index. It returns a joined error listing every violation found:
//
//   - schema version accepted;
//   - node ids unique and non-empty;
//   - all transition targets resolve to nodes in this scenario;
//   - no node transitions directly to itself;
//   - start_id resolves and at least one path from it reaches a terminal;
//   - weights within [0, 1];
//   - success criteria non-empty.
func (s *Scenario) Validate() error {
	var errs []error

	if s.ID == "" {
		errs = append(errs, errors.New("scenario id is required"))
	}
	if s.SchemaVersion != "" && s.SchemaVersion != CurrentSchemaVersion {
		errs = append(errs, fmt.Errorf("schema_version %q is not supported (want %q)", s.SchemaVersion, CurrentSchemaVersion))
	}
	if s.Policy.DrillThreshold < 0 || s.Policy.DrillThreshold > 1 {
		errs = append(errs, fmt.Errorf("policy.drill_threshold %.2f is out of range [0, 1]", s.Policy.DrillThreshold))
	}
	if len(s.Nodes) == 0 {
		errs = append(errs, errors.New("scenario has no nodes"))
		return errors.Join(errs...)
	}

	byID := make(map[string]*Node, len(s.Nodes))
	for i := range s.Nodes {
		n := &s.Nodes[i]
		prefix := fmt.Sprintf("nodes[%d]", i)
		if n.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
			continue
		}
		if _, dup := byID[n.ID]; dup {
			errs = append(errs, fmt.Errorf("%s.id %q is a duplicate", prefix, n.ID))
			continue
		}
		byID[n.ID] = n

		if n.Question == "" {
			errs = append(errs, fmt.Errorf("node %q: question is required", n.ID))
		}
		if n.Weight < 0 || n.Weight > 1 {
			errs = append(errs, fmt.Errorf("node %q: weight %.2f is out of range [0, 1]", n.ID, n.Weight))
		}
		if len(n.SuccessCriteria) == 0 {
			errs = append(errs, fmt.Errorf("node %q: success_criteria must not be empty", n.ID))
		}
	}

	// Transition resolution. Runs over the id set built above so a duplicate
	// id earlier does not cascade into spurious "unresolved" errors.
	for i := range s.Nodes {
		n := &s.Nodes[i]
		if n.ID == "" {
			continue
		}
		for _, edge := range []struct {
			name   string
			target string
		}{
			{"next_if_pass", n.NextIfPass},
			{"next_if_fail", n.NextIfFail},
			{"next_if_equivalent", n.NextIfEquivalent},
		} {
			if edge.target == "" {
				continue
			}
			if edge.target == n.ID {
				errs = append(errs, fmt.Errorf("node %q: %s must not point at itself", n.ID, edge.name))
				continue
			}
			if _, ok := byID[edge.target]; !ok {
				errs = append(errs, fmt.Errorf("node %q: %s %q does not resolve", n.ID, edge.name, edge.target))
			}
		}
	}

	if s.StartID == "" {
		errs = append(errs, errors.New("start_id is required"))
	} else if _, ok := byID[s.StartID]; !ok {
		errs = append(errs, fmt.Errorf("start_id %q does not resolve", s.StartID))
	} else if !reachesTerminal(s.StartID, byID) {
		errs = append(errs, fmt.Errorf("no path from start_id %q reaches a terminal node", s.StartID))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.byID = byID
	return nil
}

// reachesTerminal reports whether some path from startID, following any edge
// type, reaches a node with at least one empty (terminal) edge.
func reachesTerminal(startID string, byID map[string]*Node) bool {
	seen := make(map[string]bool, len(byID))
	stack := []string{startID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true

		n, ok := byID[id]
		if !ok {
			continue
		}
		if n.NextIfPass == "" || n.NextIfFail == "" {
			return true
		}
		stack = append(stack, n.NextIfPass, n.NextIfFail)
		if n.NextIfEquivalent != "" {
			stack = append(stack, n.NextIfEquivalent)
		}
	}
	return false
}
