package policy

import "fmt"

// Decision is the engine's verdict on a proposed tool invocation.
type Decision string

const (
	DecisionAllow         Decision = "ALLOW"
	DecisionDeny          Decision = "DENY"
	DecisionNeedsApproval Decision = "NEEDS_APPROVAL"
)

// Violation describes one policy constraint a request breached. Budget
// violations carry the projected value against the configured limit.
type Violation struct {
	Code      string  `json:"code"`
	Message   string  `json:"message"`
	Projected float64 `json:"projected,omitempty"`
	Limit     float64 `json:"limit,omitempty"`
}

// Violation codes.
const (
	ViolationToolNotAllowed   = "TOOL_NOT_ALLOWED"
	ViolationDailyTokenLimit  = "DAILY_TOKEN_LIMIT"
	ViolationMonthlyCostLimit = "MONTHLY_COST_LIMIT"
)

// Result is the structured outcome of one policy evaluation. DENY and
// NEEDS_APPROVAL are normal, expected outcomes, not errors.
type Result struct {
	Decision   Decision    `json:"decision"`
	Reason     string      `json:"reason"`
	RiskLevel  RiskLevel   `json:"risk_level"`
	Violations []Violation `json:"violations"`
}

// Engine evaluates tool requests against policy envelopes using a
// configurable risk table. Deterministic and side-effect free: safe to call
// speculatively before committing to execution, and trivially safe to call
// concurrently.
type Engine struct {
	risk RiskTable
}

// NewEngine creates an Engine with the given risk table.
func NewEngine(risk RiskTable) *Engine {
	return &Engine{risk: risk}
}

// Evaluate decides whether a tool invocation may proceed. Checks run in
// strict order and the first terminal condition wins:
//
//  1. Allow-list: an unlisted tool is DENY outright — budget and autonomy
//     checks are skipped; no budget headroom makes an unlisted tool reachable.
//  2. Daily token budget projection.
//  3. Monthly cost budget projection.
//  4. Risk classification of the tool ID.
//  5. Autonomy-tier gate over the computed risk level.
func (e *Engine) Evaluate(req ToolRequest, env *Envelope, usage Usage) Result {
	if !env.AllowsTool(req.ToolID) {
		return Result{
			Decision:  DecisionDeny,
			Reason:    fmt.Sprintf("tool %q is not in the allowed tools list", req.ToolID),
			RiskLevel: RiskHigh,
			Violations: []Violation{{
				Code:    ViolationToolNotAllowed,
				Message: fmt.Sprintf("tool %q is not allow-listed", req.ToolID),
			}},
		}
	}

	if env.CostLimits != nil && env.CostLimits.DailyTokens != nil {
		limit := float64(*env.CostLimits.DailyTokens)
		projected := float64(usage.DailyTokensUsed) + req.EstimatedCost
		if projected > limit {
			return Result{
				Decision:  DecisionDeny,
				Reason:    "daily token limit would be exceeded",
				RiskLevel: RiskMedium,
				Violations: []Violation{{
					Code:      ViolationDailyTokenLimit,
					Message:   fmt.Sprintf("projected daily tokens %.0f exceed limit %.0f", projected, limit),
					Projected: projected,
					Limit:     limit,
				}},
			}
		}
	}

	if env.CostLimits != nil && env.CostLimits.MonthlyCost != nil {
		limit := *env.CostLimits.MonthlyCost
		projected := usage.MonthlyCostUsed + req.EstimatedCost
		if projected > limit {
			return Result{
				Decision:  DecisionDeny,
				Reason:    "monthly cost limit would be exceeded",
				RiskLevel: RiskMedium,
				Violations: []Violation{{
					Code:      ViolationMonthlyCostLimit,
					Message:   fmt.Sprintf("projected monthly cost %.2f exceeds limit %.2f", projected, limit),
					Projected: projected,
					Limit:     limit,
				}},
			}
		}
	}

	risk := e.risk.Classify(req.ToolID)

	if TierRequiresApproval(env.AutonomyTier, risk) {
		return Result{
			Decision:  DecisionNeedsApproval,
			Reason:    fmt.Sprintf("risk level %s requires approval at autonomy tier %d", risk, env.AutonomyTier),
			RiskLevel: risk,
		}
	}

	return Result{
		Decision:  DecisionAllow,
		Reason:    "allowed by policy",
		RiskLevel: risk,
	}
}

// TierRequiresApproval implements the autonomy-tier decision table:
// tier 0 always requires approval, tier 1 for high and critical risk,
// tier 2 for critical only, tiers 3-5 never. Tiers outside 0-5 fail closed.
func TierRequiresApproval(tier int, risk RiskLevel) bool {
	switch tier {
	case 0:
		return true
	case 1:
		return risk == RiskHigh || risk == RiskCritical
	case 2:
		return risk == RiskCritical
	case 3, 4, 5:
		return false
	default:
		// Unknown tier: fail closed.
		return true
	}
}

// EvaluateBatch evaluates each request independently against the same
// envelope and usage snapshot.
func (e *Engine) EvaluateBatch(reqs []ToolRequest, env *Envelope, usage Usage) []Result {
	results := make([]Result, len(reqs))
	for i := range reqs {
		results[i] = e.Evaluate(reqs[i], env, usage)
	}
	return results
}

// AnyDenied reports whether any result in the batch is a DENY.
func AnyDenied(results []Result) bool {
	for i := range results {
		if results[i].Decision == DecisionDeny {
			return true
		}
	}
	return false
}

// AnyNeedsApproval reports whether any result in the batch is NEEDS_APPROVAL.
func AnyNeedsApproval(results []Result) bool {
	for i := range results {
		if results[i].Decision == DecisionNeedsApproval {
			return true
		}
	}
	return false
}

// AllViolations collects every violation across the batch, in order.
func AllViolations(results []Result) []Violation {
	var out []Violation
	for i := range results {
		out = append(out, results[i].Violations...)
	}
	return out
}
