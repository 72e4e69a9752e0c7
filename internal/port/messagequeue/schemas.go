package messagequeue

// VersionTransitionedPayload is the schema for versions.transitioned messages.
type VersionTransitionedPayload struct {
	VersionID  string `json:"version_id"`
	TemplateID string `json:"template_id"`
	TenantID   string `json:"tenant_id"`
	From       string `json:"from"`
	To         string `json:"to"`
	Actor      string `json:"actor,omitempty"`
}

// InstanceTransitionedPayload is the schema for instances.transitioned messages.
type InstanceTransitionedPayload struct {
	InstanceID string `json:"instance_id"`
	VersionID  string `json:"version_id"`
	TenantID   string `json:"tenant_id"`
	From       string `json:"from"`
	To         string `json:"to"`
	Reason     string `json:"reason,omitempty"`
}

// ApprovalRequestedPayload is the schema for approvals.requested messages.
type ApprovalRequestedPayload struct {
	ApprovalID  string `json:"approval_id"`
	TenantID    string `json:"tenant_id"`
	RequestType string `json:"request_type"`
	TargetID    string `json:"target_id"`
	Reason      string `json:"reason,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

// ApprovalDecidedPayload is the schema for approvals.decided messages.
type ApprovalDecidedPayload struct {
	ApprovalID  string `json:"approval_id"`
	TenantID    string `json:"tenant_id"`
	RequestType string `json:"request_type"`
	TargetID    string `json:"target_id"`
	Status      string `json:"status"`
	DecidedBy   string `json:"decided_by,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// EvalRunQueuedPayload is the schema for evals.queued messages.
type EvalRunQueuedPayload struct {
	RunID     string `json:"run_id"`
	SuiteID   string `json:"suite_id"`
	VersionID string `json:"version_id"`
	TenantID  string `json:"tenant_id"`
}

// EvalRunCompletedPayload is the schema for evals.completed messages.
type EvalRunCompletedPayload struct {
	RunID        string  `json:"run_id"`
	SuiteID      string  `json:"suite_id"`
	VersionID    string  `json:"version_id"`
	TenantID     string  `json:"tenant_id"`
	Status       string  `json:"status"`
	PassRate     float64 `json:"pass_rate"`
	OverallScore float64 `json:"overall_score"`
}

// PolicyDecisionPayload is the schema for policy.decisions messages.
type PolicyDecisionPayload struct {
	InstanceID string  `json:"instance_id"`
	EnvelopeID string  `json:"envelope_id"`
	TenantID   string  `json:"tenant_id"`
	ToolID     string  `json:"tool_id"`
	Decision   string  `json:"decision"`
	Risk       string  `json:"risk,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	CostUSD    float64 `json:"cost_usd,omitempty"`
}
