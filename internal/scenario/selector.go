package scenario

import "github.com/Maratmain/ai-hr/internal/profile"

// NextNode picks the id of the node that follows current, given the answer
// score and the role's thresholds. An empty return value means the interview
// is terminal.
//
// The drill threshold comes from the role profile when set, falling back to
// the scenario policy. The equivalence edge is only eligible for non-critical
// blocks; when both the pass and equivalence edges qualify, pass wins unless
// a critical-block fail was recorded earlier in the session.
func NextNode(sc *Scenario, current *Node, score float64, prof *profile.RoleProfile, hadCriticalFail bool) string {
	drill := prof.Thresholds.Drill
	if drill <= 0 {
		drill = sc.DrillThreshold()
	}

	passOK := score >= drill
	equivOK := current.NextIfEquivalent != "" &&
		!prof.IsCritical(current.Category) &&
		score >= prof.Thresholds.Equivalent

	switch {
	case passOK && equivOK:
		if hadCriticalFail {
			return current.NextIfEquivalent
		}
		return current.NextIfPass
	case equivOK:
		return current.NextIfEquivalent
	case passOK:
		return current.NextIfPass
	default:
		return current.NextIfFail
	}
}
