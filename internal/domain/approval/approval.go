// Package approval defines approval records and the pure resolver that
// decides when a proposed action must wait for a human decision.
package approval

import (
	"fmt"
	"time"

	"github.com/fleetgate/fleetgate/internal/domain"
)

// RequestType identifies the kind of action awaiting approval.
type RequestType string

const (
	TypeVersionPromotion       RequestType = "VERSION_PROMOTION"
	TypeInstanceReactivation   RequestType = "INSTANCE_REACTIVATION"
	TypeInstanceQuarantine     RequestType = "INSTANCE_QUARANTINE"
	TypeToolExecution          RequestType = "TOOL_EXECUTION"
	TypePolicyAutonomyIncrease RequestType = "POLICY_AUTONOMY_INCREASE"
)

// Status is the decision state of an approval record.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusDenied    Status = "DENIED"
	StatusCancelled Status = "CANCELLED"

	// StatusConsumed marks an APPROVED record whose gated action has
	// committed. A consumed grant never authorizes a second action.
	StatusConsumed Status = "CONSUMED"
)

// Record is one request for a human decision. It is decided or cancelled
// exactly once and is immutable afterwards, except that an APPROVED record
// moves to CONSUMED when the action it authorized commits.
type Record struct {
	ID             string      `json:"id"`
	TenantID       string      `json:"tenant_id,omitempty"`
	RequestType    RequestType `json:"request_type"`
	TargetID       string      `json:"target_id"`
	Status         Status      `json:"status"`
	Reason         string      `json:"reason,omitempty"`
	DecisionReason string      `json:"decision_reason,omitempty"`
	RequestedBy    string      `json:"requested_by"`
	DecidedBy      string      `json:"decided_by,omitempty"`
	Version        int         `json:"version"`
	CreatedAt      time.Time   `json:"created_at"`
	ExpiresAt      time.Time   `json:"expires_at"`
	DecidedAt      *time.Time  `json:"decided_at,omitempty"`
}

// Validate checks that a Record has all fields required at creation.
func (r *Record) Validate() error {
	switch r.RequestType {
	case TypeVersionPromotion, TypeInstanceReactivation, TypeInstanceQuarantine,
		TypeToolExecution, TypePolicyAutonomyIncrease:
	default:
		return fmt.Errorf("invalid request_type %q: %w", r.RequestType, domain.ErrValidation)
	}
	if r.TargetID == "" {
		return fmt.Errorf("target_id is required: %w", domain.ErrValidation)
	}
	return nil
}

// IsDecided reports whether the record has reached a terminal status.
func (r *Record) IsDecided() bool {
	return r.Status != StatusPending
}
