// Package genome defines the immutable configuration payload of an agent
// version and its content-addressed integrity primitives. A genome is hashed
// once at version creation; any change to its content requires a new version.
package genome

import (
	"fmt"
	"time"

	"github.com/fleetgate/fleetgate/internal/domain"
)

// ModelConfig selects the LLM backing an agent version.
type ModelConfig struct {
	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// ToolManifestEntry declares one tool the agent may carry, with the schema
// version it was built against. Manifest order is semantically meaningful
// and is preserved by canonicalization.
type ToolManifestEntry struct {
	ToolID              string   `json:"tool_id"`
	SchemaVersion       string   `json:"schema_version"`
	RequiredPermissions []string `json:"required_permissions,omitempty"`
}

// Provenance records how and from what a genome was built.
type Provenance struct {
	BuiltAt         time.Time `json:"built_at"`
	BuiltBy         string    `json:"built_by"`
	CommitRef       *string   `json:"commit_ref,omitempty"`
	BuildPipeline   *string   `json:"build_pipeline,omitempty"`
	ParentVersionID *string   `json:"parent_version_id,omitempty"`
}

// Genome is the hashable configuration payload of an agent version.
// Extensions carries forward-compatible opaque data; it participates in
// canonicalization like any other mapping.
type Genome struct {
	ModelConfig      ModelConfig         `json:"model_config"`
	PromptBundleHash string              `json:"prompt_bundle_hash"`
	ToolManifest     []ToolManifestEntry `json:"tool_manifest"`
	Provenance       *Provenance         `json:"provenance,omitempty"`
	Extensions       map[string]any      `json:"extensions,omitempty"`
}

// Validate checks that a Genome carries the minimum required fields.
func (g *Genome) Validate() error {
	if g.ModelConfig.Provider == "" {
		return fmt.Errorf("model_config.provider is required: %w", domain.ErrValidation)
	}
	if g.ModelConfig.Model == "" {
		return fmt.Errorf("model_config.model is required: %w", domain.ErrValidation)
	}
	if g.PromptBundleHash == "" {
		return fmt.Errorf("prompt_bundle_hash is required: %w", domain.ErrValidation)
	}
	for i := range g.ToolManifest {
		if g.ToolManifest[i].ToolID == "" {
			return fmt.Errorf("tool_manifest[%d].tool_id is required: %w", i, domain.ErrValidation)
		}
	}
	return nil
}
