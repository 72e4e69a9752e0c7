// Package policy defines the policy envelope domain model and the engine
// that decides whether a tool invocation may proceed autonomously, must be
// denied, or must be escalated for human approval.
package policy

import (
	"fmt"
	"time"

	"github.com/fleetgate/fleetgate/internal/domain"
)

// MinAutonomyTier and MaxAutonomyTier bound the valid tier range. Tiers
// outside this range fail closed (always require approval).
const (
	MinAutonomyTier = 0
	MaxAutonomyTier = 5
)

// CostLimits caps an envelope's spend. Nil fields mean unlimited.
type CostLimits struct {
	DailyTokens *int64   `json:"daily_tokens,omitempty" yaml:"daily_tokens,omitempty"`
	MonthlyCost *float64 `json:"monthly_cost,omitempty" yaml:"monthly_cost,omitempty"`
}

// Envelope bounds what an agent instance may do without escalation:
// an allow-list of tools, an autonomy tier, and cost limits. Read-only from
// the engine's perspective; administrators create and update envelopes.
type Envelope struct {
	ID                string         `json:"id"`
	TenantID          string         `json:"tenant_id,omitempty"`
	Name              string         `json:"name"`
	AutonomyTier      int            `json:"autonomy_tier"`
	AllowedTools      []string       `json:"allowed_tools"`
	AllowedDataScopes []string       `json:"allowed_data_scopes,omitempty"`
	CostLimits        *CostLimits    `json:"cost_limits,omitempty"`
	Guardrails        map[string]any `json:"guardrails,omitempty"`
	Version           int            `json:"version"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Validate checks that an Envelope has all required fields and valid values.
func (e *Envelope) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("name is required: %w", domain.ErrValidation)
	}
	if e.AutonomyTier < MinAutonomyTier || e.AutonomyTier > MaxAutonomyTier {
		return fmt.Errorf("autonomy_tier must be between %d and %d: %w",
			MinAutonomyTier, MaxAutonomyTier, domain.ErrValidation)
	}
	if e.CostLimits != nil {
		if e.CostLimits.DailyTokens != nil && *e.CostLimits.DailyTokens < 0 {
			return fmt.Errorf("cost_limits.daily_tokens must be non-negative: %w", domain.ErrValidation)
		}
		if e.CostLimits.MonthlyCost != nil && *e.CostLimits.MonthlyCost < 0 {
			return fmt.Errorf("cost_limits.monthly_cost must be non-negative: %w", domain.ErrValidation)
		}
	}
	return nil
}

// AllowsTool reports whether toolID is on the envelope's allow-list.
func (e *Envelope) AllowsTool(toolID string) bool {
	for _, t := range e.AllowedTools {
		if t == toolID {
			return true
		}
	}
	return false
}

// ToolRequest is a proposed tool invocation submitted to the engine.
// EstimatedCost is the caller's projection of the call's cost in the unit
// of the budget being checked (tokens for daily, currency for monthly).
type ToolRequest struct {
	ToolID        string         `json:"tool_id"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	EstimatedCost float64        `json:"estimated_cost"`
}

// Usage carries the externally supplied budget counters as of the evaluation
// call. The engine reads these; it never owns or increments them.
type Usage struct {
	DailyTokensUsed int64   `json:"daily_tokens_used"`
	MonthlyCostUsed float64 `json:"monthly_cost_used"`
}
