// Package event defines the ChangeEvent domain entity for the append-only
// governance change log.
package event

import (
	"encoding/json"
	"time"
)

// Type identifies the kind of change event.
type Type string

const (
	TypeTemplateCreated    Type = "template.created"
	TypeTemplateArchived   Type = "template.archived"
	TypeVersionCreated     Type = "version.created"
	TypeVersionTransition  Type = "version.transitioned"
	TypeInstanceCreated    Type = "instance.created"
	TypeInstanceTransition Type = "instance.transitioned"
	TypeInstanceHeartbeat  Type = "instance.heartbeat"
	TypeEnvelopeCreated    Type = "envelope.created"
	TypeEnvelopeUpdated    Type = "envelope.updated"
	TypePolicyDecision     Type = "policy.decision"
	TypeApprovalRequested  Type = "approval.requested"
	TypeApprovalDecided    Type = "approval.decided"
	TypeApprovalCancelled  Type = "approval.cancelled"
	TypeEvalStarted        Type = "eval.started"
	TypeEvalCompleted      Type = "eval.completed"
	TypeEvalCancelled      Type = "eval.cancelled"
)

// ChangeEvent is one immutable entry in a target's change history. TargetKind
// and TargetID locate the governed entity; Payload carries the type-specific
// body (transition from/to, decision reason, run scores).
type ChangeEvent struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenant_id"`
	TargetKind string          `json:"target_kind"`
	TargetID   string          `json:"target_id"`
	Type       Type            `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Actor      string          `json:"actor,omitempty"`
	RequestID  string          `json:"request_id,omitempty"`
	Version    int             `json:"version"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Target kinds accepted in ChangeEvent.TargetKind.
const (
	KindTemplate = "template"
	KindVersion  = "version"
	KindInstance = "instance"
	KindEnvelope = "envelope"
	KindApproval = "approval"
	KindEvalRun  = "eval_run"
)

// TransitionPayload is the body of version.transitioned and
// instance.transitioned events.
type TransitionPayload struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

// DecisionPayload is the body of policy.decision and approval.decided events.
type DecisionPayload struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
	ToolID   string `json:"tool_id,omitempty"`
	Risk     string `json:"risk,omitempty"`
}

// EvalPayload is the body of eval.completed events.
type EvalPayload struct {
	RunID        string  `json:"run_id"`
	SuiteID      string  `json:"suite_id"`
	PassRate     float64 `json:"pass_rate"`
	OverallScore float64 `json:"overall_score"`
	Passed       bool    `json:"passed"`
}
