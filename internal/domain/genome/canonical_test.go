package genome

import (
	"strings"
	"testing"
	"time"
)

func sampleGenome() *Genome {
	temp := 0.7
	maxTok := 4096
	commit := "abc123"
	return &Genome{
		ModelConfig: ModelConfig{
			Provider:    "anthropic",
			Model:       "claude-sonnet",
			Temperature: &temp,
			MaxTokens:   &maxTok,
		},
		PromptBundleHash: "pb-9f8e",
		ToolManifest: []ToolManifestEntry{
			{ToolID: "search_web", SchemaVersion: "1", RequiredPermissions: []string{"net"}},
			{ToolID: "read_file", SchemaVersion: "2"},
		},
		Provenance: &Provenance{
			BuiltAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			BuiltBy:   "ci",
			CommitRef: &commit,
		},
		Extensions: map[string]any{
			"zeta":  "last",
			"alpha": "first",
			"nested": map[string]any{
				"b": 2,
				"a": 1,
			},
		},
	}
}

func TestCanonicalizeDeterministic(t *testing.T) {
	g := sampleGenome()

	first, err := Canonicalize(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for range 10 {
		again, err := Canonicalize(g)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if again != first {
			t.Fatalf("canonical form not stable:\n%s\nvs\n%s", first, again)
		}
	}
}

func TestCanonicalizeKeyOrderIndependent(t *testing.T) {
	a := sampleGenome()
	b := sampleGenome()
	// Rebuild b's extension map in reverse insertion order.
	b.Extensions = map[string]any{
		"nested": map[string]any{"a": 1, "b": 2},
		"alpha":  "first",
		"zeta":   "last",
	}

	ca, err := Canonicalize(a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cb, err := Canonicalize(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ca != cb {
		t.Fatalf("expected identical canonical forms, got:\n%s\nvs\n%s", ca, cb)
	}
}

func TestCanonicalizeSortsKeys(t *testing.T) {
	g := sampleGenome()
	c, err := Canonicalize(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Top-level keys of the genome object appear sorted.
	if !(strings.Index(c, `"extensions"`) < strings.Index(c, `"model_config"`) &&
		strings.Index(c, `"model_config"`) < strings.Index(c, `"prompt_bundle_hash"`) &&
		strings.Index(c, `"prompt_bundle_hash"`) < strings.Index(c, `"provenance"`) &&
		strings.Index(c, `"provenance"`) < strings.Index(c, `"tool_manifest"`)) {
		t.Fatalf("top-level keys not sorted: %s", c)
	}
}

func TestCanonicalizeOmitsAbsentValues(t *testing.T) {
	g := sampleGenome()
	g.ModelConfig.Temperature = nil
	g.Provenance = nil
	g.Extensions = map[string]any{"present": 1, "absent": nil}

	c, err := Canonicalize(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(c, "temperature") {
		t.Errorf("absent temperature should be omitted: %s", c)
	}
	if strings.Contains(c, "provenance") {
		t.Errorf("absent provenance should be omitted: %s", c)
	}
	if strings.Contains(c, "absent") || strings.Contains(c, "null") {
		t.Errorf("nil extension value should be omitted, not emitted as null: %s", c)
	}
}

func TestCanonicalizePreservesArrayOrder(t *testing.T) {
	g := sampleGenome()
	c, err := Canonicalize(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Index(c, "search_web") > strings.Index(c, "read_file") {
		t.Fatalf("tool manifest order must be preserved: %s", c)
	}
}
