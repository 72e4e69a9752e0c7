// Package version defines the AgentVersion entity and its promotion
// lifecycle. A version binds an immutable genome to a template; its state
// advances through a fixed transition table from draft to retirement.
package version

import (
	"fmt"
	"time"

	"github.com/fleetgate/fleetgate/internal/domain"
	"github.com/fleetgate/fleetgate/internal/domain/genome"
)

// LifecycleState is the promotion stage of a version.
type LifecycleState string

const (
	StateDraft      LifecycleState = "DRAFT"
	StateTesting    LifecycleState = "TESTING"
	StateCandidate  LifecycleState = "CANDIDATE"
	StateApproved   LifecycleState = "APPROVED"
	StateDeprecated LifecycleState = "DEPRECATED"
	StateRetired    LifecycleState = "RETIRED"
)

// EvalStatus tracks the outcome of the latest evaluation run against a version.
type EvalStatus string

const (
	EvalNotRun  EvalStatus = "NOT_RUN"
	EvalRunning EvalStatus = "RUNNING"
	EvalPass    EvalStatus = "PASS"
	EvalFail    EvalStatus = "FAIL"
)

// AgentVersion is a sealed, genome-bearing release of an agent template.
// GenomeHash is computed over the canonical genome serialization at creation
// and must match on every read; a mismatch signals tampering. Versions are
// never physically deleted — RETIRED is terminal, not erasure.
type AgentVersion struct {
	ID              string         `json:"id"`
	TemplateID      string         `json:"template_id"`
	TenantID        string         `json:"tenant_id,omitempty"`
	VersionLabel    string         `json:"version_label"`
	Genome          genome.Genome  `json:"genome"`
	GenomeHash      string         `json:"genome_hash"`
	LifecycleState  LifecycleState `json:"lifecycle_state"`
	EvalStatus      EvalStatus     `json:"eval_status"`
	ParentVersionID *string        `json:"parent_version_id,omitempty"`
	Version         int            `json:"version"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// CreateRequest holds the fields needed to create a new version.
type CreateRequest struct {
	TemplateID      string        `json:"template_id"`
	VersionLabel    string        `json:"version_label"`
	Genome          genome.Genome `json:"genome"`
	ParentVersionID *string       `json:"parent_version_id,omitempty"`
}

// Validate checks that a CreateRequest has all required fields.
func (r *CreateRequest) Validate() error {
	if r.TemplateID == "" {
		return fmt.Errorf("template_id is required: %w", domain.ErrValidation)
	}
	if r.VersionLabel == "" {
		return fmt.Errorf("version_label is required: %w", domain.ErrValidation)
	}
	return r.Genome.Validate()
}
