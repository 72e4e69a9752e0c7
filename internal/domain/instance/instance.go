// Package instance defines the AgentInstance entity: one running deployment
// of an agent version into one environment, bounded by a policy envelope.
package instance

import (
	"fmt"
	"time"

	"github.com/fleetgate/fleetgate/internal/domain"
)

// State is the runtime lifecycle state of an instance.
type State string

const (
	StateProvisioning State = "PROVISIONING"
	StateActive       State = "ACTIVE"
	StatePaused       State = "PAUSED"
	StateReadonly     State = "READONLY"
	StateDraining     State = "DRAINING"
	StateQuarantined  State = "QUARANTINED"
	StateRetired      State = "RETIRED"
)

// AgentInstance is a running deployment of one version into one environment.
// It references its version and policy envelope; it owns neither.
type AgentInstance struct {
	ID                string     `json:"id"`
	VersionID         string     `json:"version_id"`
	TenantID          string     `json:"tenant_id,omitempty"`
	Environment       string     `json:"environment"`
	RuntimeTarget     string     `json:"runtime_target,omitempty"`
	IdentityPrincipal string     `json:"identity_principal"`
	PolicyEnvelopeID  string     `json:"policy_envelope_id"`
	State             State      `json:"state"`
	HeartbeatAt       *time.Time `json:"heartbeat_at,omitempty"`
	Version           int        `json:"version"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// CreateRequest holds the fields needed to provision a new instance.
type CreateRequest struct {
	VersionID         string `json:"version_id"`
	Environment       string `json:"environment"`
	RuntimeTarget     string `json:"runtime_target,omitempty"`
	IdentityPrincipal string `json:"identity_principal"`
	PolicyEnvelopeID  string `json:"policy_envelope_id"`
}

// Validate checks that a CreateRequest has all required fields.
func (r *CreateRequest) Validate() error {
	if r.VersionID == "" {
		return fmt.Errorf("version_id is required: %w", domain.ErrValidation)
	}
	if r.Environment == "" {
		return fmt.Errorf("environment is required: %w", domain.ErrValidation)
	}
	if r.PolicyEnvelopeID == "" {
		return fmt.Errorf("policy_envelope_id is required: %w", domain.ErrValidation)
	}
	return nil
}
