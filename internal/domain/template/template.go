// Package template defines agent templates, the tenant-scoped roots that
// versions hang off. A template names an agent family; every version of it
// carries a concrete genome.
package template

import (
	"fmt"
	"time"

	"github.com/fleetgate/fleetgate/internal/domain"
)

// AgentTemplate is the root identity of an agent family within a tenant.
type AgentTemplate struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenant_id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
	Archived    bool              `json:"archived"`
	Version     int               `json:"version"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// CreateRequest carries the fields for creating a template.
type CreateRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// Validate checks that a CreateRequest has all required fields.
func (r *CreateRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required: %w", domain.ErrValidation)
	}
	if len(r.Name) > 200 {
		return fmt.Errorf("name exceeds 200 characters: %w", domain.ErrValidation)
	}
	return nil
}
