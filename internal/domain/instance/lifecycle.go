package instance

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fleetgate/fleetgate/internal/domain"
)

// transitions is the instance lifecycle table. RETIRED has no outgoing edges.
var transitions = map[State][]State{
	StateProvisioning: {StateActive, StateRetired},
	StateActive:       {StatePaused, StateReadonly, StateDraining, StateQuarantined, StateRetired},
	StatePaused:       {StateActive, StateRetired},
	StateReadonly:     {StateActive, StateRetired},
	StateDraining:     {StateRetired},
	StateQuarantined:  {StateActive, StateRetired},
	StateRetired:      {},
}

// ValidateTransition checks a proposed instance state edge against the
// transition table. Pure function; the QUARANTINED→ACTIVE approval
// requirement is resolved separately by the approval resolver — reactivation
// is never auto-approved regardless of autonomy tier.
func ValidateTransition(from, to State) error {
	allowed, ok := transitions[from]
	if !ok {
		return fmt.Errorf("unknown instance state %q: %w", from, domain.ErrInvalidTransition)
	}

	for _, a := range allowed {
		if a == to {
			return nil
		}
	}
	return fmt.Errorf("cannot transition instance from %s to %s (allowed: %s): %w",
		from, to, formatAllowed(allowed), domain.ErrInvalidTransition)
}

// IsTerminal reports whether the state has no outgoing edges.
func IsTerminal(s State) bool {
	return len(transitions[s]) == 0
}

func formatAllowed(allowed []State) string {
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
