package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fleetgate/fleetgate/internal/adapter/ristretto"
	"github.com/fleetgate/fleetgate/internal/adapter/ws"
	"github.com/fleetgate/fleetgate/internal/domain/approval"
	"github.com/fleetgate/fleetgate/internal/domain/instance"
	"github.com/fleetgate/fleetgate/internal/domain/policy"
)

func newPolicyFixture(t *testing.T) (*PolicyService, *mockStore, *mockLedger, *mockQueue) {
	t.Helper()
	store := newMockStore()
	events := &mockEventStore{}
	queue := &mockQueue{}
	hub := ws.NewHub("", nil)
	ledger := newMockLedger()

	cache, err := ristretto.New(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(cache.Close)

	envelopes := NewEnvelopeService(store, events, queue, hub, cache, time.Minute)
	engine := policy.NewEngine(policy.DefaultRiskTable())
	svc := NewPolicyService(store, events, queue, hub, ledger, engine, envelopes, nil)
	return svc, store, ledger, queue
}

// seedActiveInstance provisions an ACTIVE instance behind an envelope.
func seedActiveInstance(t *testing.T, store *mockStore, env *policy.Envelope) *instance.AgentInstance {
	t.Helper()
	isvc := NewInstanceService(store, &mockEventStore{}, &mockQueue{}, ws.NewHub("", nil), nil)
	created, err := store.CreateEnvelope(context.Background(), env)
	if err != nil {
		t.Fatal(err)
	}
	env.ID = created.ID
	in := seedInstance(t, isvc, store, instance.StateActive, env.AutonomyTier)
	store.mu.Lock()
	store.instances[in.ID].PolicyEnvelopeID = created.ID
	store.mu.Unlock()
	in.PolicyEnvelopeID = created.ID
	return in
}

func TestAuthorizeAllowRecordsEstimatedUsage(t *testing.T) {
	svc, store, ledger, queue := newPolicyFixture(t)
	in := seedActiveInstance(t, store, &policy.Envelope{
		Name: "e", AutonomyTier: 3, AllowedTools: []string{"search"},
	})

	res, err := svc.Authorize(context.Background(), in.ID, policy.ToolRequest{
		ToolID: "search", EstimatedCost: 100,
	}, "agent")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if res.Decision != policy.DecisionAllow {
		t.Fatalf("decision = %q (%s), want ALLOW", res.Decision, res.Reason)
	}

	usage, _ := ledger.Usage(context.Background(), in.ID)
	if usage.DailyTokensUsed != 100 {
		t.Errorf("recorded tokens = %d, want 100", usage.DailyTokensUsed)
	}
	found := false
	for _, subj := range queue.subjects() {
		if subj == "policy.decisions" {
			found = true
		}
	}
	if !found {
		t.Error("expected a policy.decisions publication")
	}
}

func TestAuthorizeDeniesNonActiveInstance(t *testing.T) {
	svc, store, ledger, _ := newPolicyFixture(t)
	in := seedActiveInstance(t, store, &policy.Envelope{
		Name: "e", AutonomyTier: 3, AllowedTools: []string{"search"},
	})
	store.mu.Lock()
	store.instances[in.ID].State = instance.StatePaused
	store.mu.Unlock()

	res, err := svc.Authorize(context.Background(), in.ID, policy.ToolRequest{ToolID: "search"}, "agent")
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision != policy.DecisionDeny {
		t.Errorf("decision = %q, want DENY for paused instance", res.Decision)
	}
	usage, _ := ledger.Usage(context.Background(), in.ID)
	if usage.DailyTokensUsed != 0 {
		t.Error("denied call must not record usage")
	}
}

func TestAuthorizeDeniesUnlistedTool(t *testing.T) {
	svc, store, _, _ := newPolicyFixture(t)
	in := seedActiveInstance(t, store, &policy.Envelope{
		Name: "e", AutonomyTier: 5, AllowedTools: []string{"search"},
	})

	res, err := svc.Authorize(context.Background(), in.ID, policy.ToolRequest{ToolID: "delete_database"}, "agent")
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision != policy.DecisionDeny {
		t.Errorf("decision = %q, want DENY for unlisted tool", res.Decision)
	}
	// No escalation path for unlisted tools.
	if _, ferr := store.FindApproval(context.Background(),
		approval.TypeToolExecution, toolApprovalTarget(in.ID, "delete_database"), approval.StatusPending); ferr == nil {
		t.Error("unlisted tool must not create an approval request")
	}
}

func TestAuthorizeEscalationCreatesApproval(t *testing.T) {
	svc, store, _, _ := newPolicyFixture(t)
	// "deploy_production" classifies high risk; tier 1 escalates it.
	in := seedActiveInstance(t, store, &policy.Envelope{
		Name: "e", AutonomyTier: 1, AllowedTools: []string{"deploy_production"},
	})
	ctx := context.Background()

	res, err := svc.Authorize(ctx, in.ID, policy.ToolRequest{ToolID: "deploy_production"}, "agent")
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision != policy.DecisionNeedsApproval {
		t.Fatalf("decision = %q (%s), want NEEDS_APPROVAL", res.Decision, res.Reason)
	}

	target := toolApprovalTarget(in.ID, "deploy_production")
	pending, err := store.FindApproval(ctx, approval.TypeToolExecution, target, approval.StatusPending)
	if err != nil {
		t.Fatalf("expected a PENDING tool-execution record: %v", err)
	}

	// Approval on file upgrades the verdict to ALLOW.
	if err := store.DecideApproval(ctx, pending.ID, approval.StatusApproved, "operator", "one-off deploy", pending.Version); err != nil {
		t.Fatal(err)
	}
	res, err = svc.Authorize(ctx, in.ID, policy.ToolRequest{ToolID: "deploy_production"}, "agent")
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision != policy.DecisionAllow {
		t.Errorf("decision = %q, want ALLOW with approval on file", res.Decision)
	}
}

func TestAuthorizeBudgetDeny(t *testing.T) {
	svc, store, ledger, _ := newPolicyFixture(t)
	daily := int64(1000)
	in := seedActiveInstance(t, store, &policy.Envelope{
		Name: "e", AutonomyTier: 3, AllowedTools: []string{"search"},
		CostLimits: &policy.CostLimits{DailyTokens: &daily},
	})
	if err := ledger.RecordUsage(context.Background(), in.ID, 950, 0); err != nil {
		t.Fatal(err)
	}

	res, err := svc.Authorize(context.Background(), in.ID, policy.ToolRequest{
		ToolID: "search", EstimatedCost: 100,
	}, "agent")
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision != policy.DecisionDeny {
		t.Fatalf("decision = %q, want DENY over budget", res.Decision)
	}
	if len(res.Violations) == 0 || res.Violations[0].Code != policy.ViolationDailyTokenLimit {
		t.Errorf("violations = %+v, want DAILY_TOKEN_LIMIT", res.Violations)
	}
}

func TestAuthorizeConcurrentBudgetReservation(t *testing.T) {
	svc, store, ledger, _ := newPolicyFixture(t)
	daily := int64(1000)
	in := seedActiveInstance(t, store, &policy.Envelope{
		Name: "e", AutonomyTier: 3, AllowedTools: []string{"search"},
		CostLimits: &policy.CostLimits{DailyTokens: &daily},
	})
	if err := ledger.RecordUsage(context.Background(), in.ID, 900, 0); err != nil {
		t.Fatal(err)
	}

	// Two racing calls chase 100 tokens of headroom; only one reservation of
	// 60 can fit, so at most one comes back ALLOW and the ledger never
	// overshoots the limit.
	results := make(chan policy.Decision, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Authorize(context.Background(), in.ID, policy.ToolRequest{
				ToolID: "search", EstimatedCost: 60,
			}, "agent")
			if err != nil {
				t.Error(err)
				return
			}
			results <- res.Decision
		}()
	}
	wg.Wait()
	close(results)

	allows := 0
	for d := range results {
		if d == policy.DecisionAllow {
			allows++
		}
	}
	if allows != 1 {
		t.Errorf("allowed calls = %d, want exactly 1", allows)
	}
	usage, _ := ledger.Usage(context.Background(), in.ID)
	if usage.DailyTokensUsed > daily {
		t.Errorf("ledger tokens = %d, exceeds the %d daily limit", usage.DailyTokensUsed, daily)
	}
}

func TestRecordUsageValidation(t *testing.T) {
	svc, store, ledger, _ := newPolicyFixture(t)
	in := seedActiveInstance(t, store, &policy.Envelope{
		Name: "e", AutonomyTier: 3, AllowedTools: []string{"search"},
	})
	ctx := context.Background()

	if err := svc.RecordUsage(ctx, in.ID, -1, 0); err == nil {
		t.Error("expected validation error for negative tokens")
	}
	if err := svc.RecordUsage(ctx, in.ID, 500, 1.25); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	usage, _ := ledger.Usage(ctx, in.ID)
	if usage.DailyTokensUsed != 500 || usage.MonthlyCostUsed != 1.25 {
		t.Errorf("usage = %+v, want 500 tokens / 1.25 USD", usage)
	}
}
