package policy

import (
	"strings"
	"testing"
)

func testEnvelope(tier int, tools []string, limits *CostLimits) *Envelope {
	return &Envelope{
		ID:           "env-1",
		Name:         "test",
		AutonomyTier: tier,
		AllowedTools: tools,
		CostLimits:   limits,
	}
}

func int64p(v int64) *int64       { return &v }
func float64p(v float64) *float64 { return &v }

func TestEvaluateAllowListPrecedence(t *testing.T) {
	engine := NewEngine(DefaultRiskTable())

	// Empty allow-list denies everything regardless of tier or budget headroom.
	for tier := 0; tier <= 5; tier++ {
		res := engine.Evaluate(ToolRequest{ToolID: "read_file"}, testEnvelope(tier, nil, nil), Usage{})
		if res.Decision != DecisionDeny {
			t.Fatalf("tier %d: expected DENY for unlisted tool, got %s", tier, res.Decision)
		}
		if res.RiskLevel != RiskHigh {
			t.Errorf("tier %d: unlisted tool should classify high, got %s", tier, res.RiskLevel)
		}
		if !strings.Contains(res.Reason, "not in the allowed tools list") {
			t.Errorf("tier %d: unexpected reason %q", tier, res.Reason)
		}
		if len(res.Violations) != 1 || res.Violations[0].Code != ViolationToolNotAllowed {
			t.Errorf("tier %d: expected a single TOOL_NOT_ALLOWED violation, got %+v", tier, res.Violations)
		}
	}
}

func TestEvaluateDailyTokenBudget(t *testing.T) {
	engine := NewEngine(DefaultRiskTable())
	env := testEnvelope(5, []string{"read_file"}, &CostLimits{DailyTokens: int64p(1000)})
	usage := Usage{DailyTokensUsed: 900}

	// 900 + 200 > 1000 → DENY.
	res := engine.Evaluate(ToolRequest{ToolID: "read_file", EstimatedCost: 200}, env, usage)
	if res.Decision != DecisionDeny {
		t.Fatalf("expected DENY, got %s (%s)", res.Decision, res.Reason)
	}
	if res.RiskLevel != RiskMedium {
		t.Errorf("budget deny should classify medium, got %s", res.RiskLevel)
	}
	if !strings.Contains(strings.ToLower(res.Reason), "daily token limit") {
		t.Errorf("unexpected reason %q", res.Reason)
	}
	if len(res.Violations) != 1 {
		t.Fatalf("expected one violation, got %+v", res.Violations)
	}
	v := res.Violations[0]
	if v.Code != ViolationDailyTokenLimit || v.Projected != 1100 || v.Limit != 1000 {
		t.Errorf("violation should carry projected-vs-limit numbers, got %+v", v)
	}

	// 900 + 50 <= 1000 → proceeds past budgets to risk classification.
	res = engine.Evaluate(ToolRequest{ToolID: "read_file", EstimatedCost: 50}, env, usage)
	if res.Decision != DecisionAllow {
		t.Fatalf("expected ALLOW, got %s (%s)", res.Decision, res.Reason)
	}
}

func TestEvaluateMonthlyCostBudget(t *testing.T) {
	engine := NewEngine(DefaultRiskTable())
	env := testEnvelope(5, []string{"read_file"}, &CostLimits{MonthlyCost: float64p(100)})

	res := engine.Evaluate(ToolRequest{ToolID: "read_file", EstimatedCost: 10}, env, Usage{MonthlyCostUsed: 95})
	if res.Decision != DecisionDeny {
		t.Fatalf("expected DENY, got %s", res.Decision)
	}
	if res.Violations[0].Code != ViolationMonthlyCostLimit {
		t.Errorf("expected MONTHLY_COST_LIMIT violation, got %+v", res.Violations)
	}

	res = engine.Evaluate(ToolRequest{ToolID: "read_file", EstimatedCost: 5}, env, Usage{MonthlyCostUsed: 95})
	if res.Decision != DecisionAllow {
		t.Fatalf("expected ALLOW at exactly the limit, got %s", res.Decision)
	}
}

func TestEvaluateAutonomyTierGate(t *testing.T) {
	engine := NewEngine(DefaultRiskTable())

	tests := []struct {
		name   string
		tier   int
		toolID string
		want   Decision
	}{
		{"tier 0 gates low risk", 0, "summarize_text", DecisionNeedsApproval},
		{"tier 1 allows low risk", 1, "summarize_text", DecisionAllow},
		{"tier 1 gates high risk", 1, "write_document", DecisionNeedsApproval},
		{"tier 1 gates critical risk", 1, "exec_shell", DecisionNeedsApproval},
		{"tier 2 allows high risk", 2, "write_document", DecisionAllow},
		{"tier 2 gates critical risk", 2, "payment_capture", DecisionNeedsApproval},
		{"tier 3 allows critical risk", 3, "payment_capture", DecisionAllow},
		{"tier 5 allows critical risk", 5, "drop_table_orders", DecisionAllow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testEnvelope(tt.tier, []string{tt.toolID}, nil)
			res := engine.Evaluate(ToolRequest{ToolID: tt.toolID}, env, Usage{})
			if res.Decision != tt.want {
				t.Fatalf("expected %s, got %s (risk=%s, reason=%s)", tt.want, res.Decision, res.RiskLevel, res.Reason)
			}
			if res.Decision == DecisionNeedsApproval && len(res.Violations) != 0 {
				t.Errorf("approval gate should carry no violations, got %+v", res.Violations)
			}
		})
	}
}

func TestTierRequiresApprovalMonotonic(t *testing.T) {
	// For fixed risk, the requirement is non-increasing as tier rises 0→5.
	for _, risk := range []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical} {
		prev := true
		for tier := 0; tier <= 5; tier++ {
			cur := TierRequiresApproval(tier, risk)
			if cur && !prev {
				t.Fatalf("risk %s: approval requirement increased from tier %d to %d", risk, tier-1, tier)
			}
			prev = cur
		}
	}

	// Critical risk: required at 0,1,2 and not at 3,4,5.
	for tier := 0; tier <= 5; tier++ {
		want := tier < 3
		if got := TierRequiresApproval(tier, RiskCritical); got != want {
			t.Errorf("critical at tier %d: got %v, want %v", tier, got, want)
		}
	}
}

func TestTierRequiresApprovalFailsClosed(t *testing.T) {
	for _, tier := range []int{-1, 6, 42} {
		if !TierRequiresApproval(tier, RiskLow) {
			t.Errorf("out-of-range tier %d should require approval", tier)
		}
	}
}

func TestEvaluateBatchHelpers(t *testing.T) {
	engine := NewEngine(DefaultRiskTable())
	env := testEnvelope(2, []string{"read_file", "exec_shell"}, &CostLimits{DailyTokens: int64p(100)})

	results := engine.EvaluateBatch([]ToolRequest{
		{ToolID: "read_file", EstimatedCost: 10},
		{ToolID: "exec_shell", EstimatedCost: 10},
		{ToolID: "unlisted_tool", EstimatedCost: 10},
		{ToolID: "read_file", EstimatedCost: 500},
	}, env, Usage{})

	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if results[0].Decision != DecisionAllow {
		t.Errorf("request 0: expected ALLOW, got %s", results[0].Decision)
	}
	if results[1].Decision != DecisionNeedsApproval {
		t.Errorf("request 1: expected NEEDS_APPROVAL, got %s", results[1].Decision)
	}
	if !AnyDenied(results) {
		t.Error("expected AnyDenied")
	}
	if !AnyNeedsApproval(results) {
		t.Error("expected AnyNeedsApproval")
	}
	violations := AllViolations(results)
	if len(violations) != 2 {
		t.Errorf("expected 2 violations across batch, got %+v", violations)
	}
}
