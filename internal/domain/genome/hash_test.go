package genome

import (
	"regexp"
	"testing"
)

func TestComputeHashStable(t *testing.T) {
	g := sampleGenome()

	h1, err := ComputeHash(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h2, err := ComputeHash(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("hash not stable: %s vs %s", h1, h2)
	}
	if !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(h1) {
		t.Fatalf("expected lowercase hex sha-256 digest, got %q", h1)
	}
}

func TestVerifyIntact(t *testing.T) {
	g := sampleGenome()
	h, err := ComputeHash(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !Verify(g, h) {
		t.Fatal("expected intact genome to verify")
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	g := sampleGenome()
	h, err := ComputeHash(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Genome)
	}{
		{"model swapped", func(g *Genome) { g.ModelConfig.Model = "other-model" }},
		{"prompt bundle swapped", func(g *Genome) { g.PromptBundleHash = "pb-0000" }},
		{"tool added", func(g *Genome) {
			g.ToolManifest = append(g.ToolManifest, ToolManifestEntry{ToolID: "exec_shell", SchemaVersion: "1"})
		}},
		{"tool reordered", func(g *Genome) {
			g.ToolManifest[0], g.ToolManifest[1] = g.ToolManifest[1], g.ToolManifest[0]
		}},
		{"temperature changed", func(g *Genome) { v := 0.9; g.ModelConfig.Temperature = &v }},
		{"extension changed", func(g *Genome) { g.Extensions["alpha"] = "mutated" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mutated := sampleGenome()
			tt.mutate(mutated)
			if Verify(mutated, h) {
				t.Fatal("expected mutated genome to fail verification")
			}
		})
	}
}

func TestVerifyRejectsWrongDigest(t *testing.T) {
	g := sampleGenome()
	if Verify(g, "deadbeef") {
		t.Fatal("expected verification failure for bogus digest")
	}
}
