package version

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fleetgate/fleetgate/internal/domain"
)

// transitions is the version lifecycle table. States absent from a target
// set are unreachable from that source; RETIRED has no outgoing edges.
var transitions = map[LifecycleState][]LifecycleState{
	StateDraft:      {StateTesting},
	StateTesting:    {StateCandidate, StateDraft},
	StateCandidate:  {StateApproved, StateDraft},
	StateApproved:   {StateDeprecated},
	StateDeprecated: {StateRetired},
	StateRetired:    {},
}

// ValidateTransition checks a proposed lifecycle edge against the transition
// table. The TESTING→CANDIDATE edge additionally requires a passing
// evaluation; the returned error names the unmet precondition. Pure function:
// persistence and side effects belong to the caller.
func ValidateTransition(from, to LifecycleState, evalStatus EvalStatus) error {
	allowed, ok := transitions[from]
	if !ok {
		return fmt.Errorf("unknown lifecycle state %q: %w", from, domain.ErrInvalidTransition)
	}

	found := false
	for _, a := range allowed {
		if a == to {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("cannot transition version from %s to %s (allowed: %s): %w",
			from, to, formatAllowed(allowed), domain.ErrInvalidTransition)
	}

	if from == StateTesting && to == StateCandidate && evalStatus != EvalPass {
		return fmt.Errorf("transition %s to %s requires eval status PASS, got %s: %w",
			from, to, evalStatus, domain.ErrInvalidTransition)
	}

	return nil
}

// AllowedTargets returns the reachable states from the given state, sorted.
func AllowedTargets(from LifecycleState) []LifecycleState {
	allowed := transitions[from]
	out := make([]LifecycleState, len(allowed))
	copy(out, allowed)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsTerminal reports whether the state has no outgoing edges.
func IsTerminal(s LifecycleState) bool {
	return len(transitions[s]) == 0
}

func formatAllowed(allowed []LifecycleState) string {
	if len(allowed) == 0 {
		return "none, state is terminal"
	}
	names := make([]string, len(allowed))
	for i, a := range allowed {
		names[i] = string(a)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
