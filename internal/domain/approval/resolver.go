package approval

import (
	"fmt"
	"time"

	"github.com/fleetgate/fleetgate/internal/domain/instance"
	"github.com/fleetgate/fleetgate/internal/domain/policy"
	"github.com/fleetgate/fleetgate/internal/domain/version"
)

// Requirement is the resolver's answer: whether human approval is mandatory
// before the action may proceed, and under which request type.
type Requirement struct {
	Required    bool        `json:"required"`
	Reason      string      `json:"reason,omitempty"`
	RequestType RequestType `json:"request_type,omitempty"`
}

// notRequired is the zero Requirement for actions that proceed autonomously.
var notRequired = Requirement{}

// ForVersionTransition resolves the approval requirement for a version
// lifecycle edge. CANDIDATE→APPROVED needs approval below tier 3;
// TESTING→CANDIDATE below tier 2 — the latter is in addition to the
// eval-PASS guard in the state machine, both must hold.
func ForVersionTransition(from, to version.LifecycleState, autonomyTier int) Requirement {
	switch {
	case from == version.StateCandidate && to == version.StateApproved:
		if autonomyTier < 3 {
			return Requirement{
				Required:    true,
				Reason:      fmt.Sprintf("promotion to APPROVED requires approval at autonomy tier %d", autonomyTier),
				RequestType: TypeVersionPromotion,
			}
		}
	case from == version.StateTesting && to == version.StateCandidate:
		if autonomyTier < 2 {
			return Requirement{
				Required:    true,
				Reason:      fmt.Sprintf("promotion to CANDIDATE requires approval at autonomy tier %d", autonomyTier),
				RequestType: TypeVersionPromotion,
			}
		}
	}
	return notRequired
}

// ForInstanceTransition resolves the approval requirement for an instance
// state edge. Reactivating a quarantined instance always requires approval;
// a highly autonomous instance quarantining itself is unusual enough to
// require one too.
func ForInstanceTransition(from, to instance.State, autonomyTier int) Requirement {
	switch {
	case from == instance.StateQuarantined && to == instance.StateActive:
		return Requirement{
			Required:    true,
			Reason:      "reactivating a quarantined instance always requires approval",
			RequestType: TypeInstanceReactivation,
		}
	case from == instance.StateActive && to == instance.StateQuarantined:
		if autonomyTier >= 4 {
			return Requirement{
				Required:    true,
				Reason:      fmt.Sprintf("voluntary quarantine at autonomy tier %d requires approval", autonomyTier),
				RequestType: TypeInstanceQuarantine,
			}
		}
	}
	return notRequired
}

// ForPolicyChange resolves the approval requirement for an autonomy tier
// change. Increases are gated; decreases never require approval.
func ForPolicyChange(currentTier, newTier int) Requirement {
	if newTier > currentTier {
		return Requirement{
			Required:    true,
			Reason:      fmt.Sprintf("raising autonomy tier from %d to %d requires approval", currentTier, newTier),
			RequestType: TypePolicyAutonomyIncrease,
		}
	}
	return notRequired
}

// ForToolExecution resolves the approval requirement for a risky tool call:
// critical risk below tier 3 and high risk below tier 2 escalate.
func ForToolExecution(riskLevel policy.RiskLevel, autonomyTier int) Requirement {
	if (riskLevel == policy.RiskCritical && autonomyTier < 3) ||
		(riskLevel == policy.RiskHigh && autonomyTier < 2) {
		return Requirement{
			Required:    true,
			Reason:      fmt.Sprintf("%s-risk tool execution requires approval at autonomy tier %d", riskLevel, autonomyTier),
			RequestType: TypeToolExecution,
		}
	}
	return notRequired
}

// DefaultTimeout is the window applied to unknown request types.
const DefaultTimeout = 24 * time.Hour

// timeouts maps each request type to its fixed decision window.
var timeouts = map[RequestType]time.Duration{
	TypeVersionPromotion:       48 * time.Hour,
	TypeInstanceReactivation:   12 * time.Hour,
	TypeInstanceQuarantine:     2 * time.Hour,
	TypeToolExecution:          1 * time.Hour,
	TypePolicyAutonomyIncrease: 72 * time.Hour,
}

// TimeoutFor returns the decision window for a request type.
func TimeoutFor(t RequestType) time.Duration {
	if d, ok := timeouts[t]; ok {
		return d
	}
	return DefaultTimeout
}

// IsTimedOut reports whether a request created at createdAt has outlived its
// decision window as of now. Expired PENDING records are not transitioned
// here; a sweep (see the approval service) cancels them.
func IsTimedOut(createdAt time.Time, t RequestType, now time.Time) bool {
	return now.Sub(createdAt) > TimeoutFor(t)
}
