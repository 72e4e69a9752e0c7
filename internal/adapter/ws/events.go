package ws

import (
	"context"
	"encoding/json"
)

// Event type constants for WebSocket messages.
const (
	EventVersionState    = "version.state"
	EventInstanceState   = "instance.state"
	EventApprovalPending = "approval.pending"
	EventApprovalDecided = "approval.decided"
	EventEvalCompleted   = "eval.completed"
)

// VersionStateEvent is broadcast when a version changes lifecycle state.
type VersionStateEvent struct {
	VersionID  string `json:"version_id"`
	TemplateID string `json:"template_id"`
	From       string `json:"from"`
	To         string `json:"to"`
}

// InstanceStateEvent is broadcast when an instance changes state.
type InstanceStateEvent struct {
	InstanceID string `json:"instance_id"`
	VersionID  string `json:"version_id"`
	From       string `json:"from"`
	To         string `json:"to"`
	Reason     string `json:"reason,omitempty"`
}

// ApprovalPendingEvent is broadcast when a new approval awaits a decision.
type ApprovalPendingEvent struct {
	ApprovalID  string `json:"approval_id"`
	RequestType string `json:"request_type"`
	TargetID    string `json:"target_id"`
	Reason      string `json:"reason,omitempty"`
}

// ApprovalDecidedEvent is broadcast when an approval is decided or cancelled.
type ApprovalDecidedEvent struct {
	ApprovalID string `json:"approval_id"`
	Status     string `json:"status"`
	DecidedBy  string `json:"decided_by,omitempty"`
}

// EvalCompletedEvent is broadcast when an evaluation run finishes.
type EvalCompletedEvent struct {
	RunID        string  `json:"run_id"`
	VersionID    string  `json:"version_id"`
	Status       string  `json:"status"`
	PassRate     float64 `json:"pass_rate"`
	OverallScore float64 `json:"overall_score"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
