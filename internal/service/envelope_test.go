package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fleetgate/fleetgate/internal/adapter/ristretto"
	"github.com/fleetgate/fleetgate/internal/adapter/ws"
	"github.com/fleetgate/fleetgate/internal/domain"
	"github.com/fleetgate/fleetgate/internal/domain/approval"
	"github.com/fleetgate/fleetgate/internal/domain/policy"
)

func newEnvelopeFixture(t *testing.T) (*EnvelopeService, *mockStore) {
	t.Helper()
	store := newMockStore()
	cache, err := ristretto.New(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(cache.Close)
	svc := NewEnvelopeService(store, &mockEventStore{}, &mockQueue{}, ws.NewHub("", nil), cache, time.Minute)
	return svc, store
}

func TestEnvelopeCreateValidates(t *testing.T) {
	svc, _ := newEnvelopeFixture(t)

	_, err := svc.Create(context.Background(), &policy.Envelope{AutonomyTier: 2}, "admin")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for missing name, got %v", err)
	}

	created, err := svc.Create(context.Background(), &policy.Envelope{
		Name: "baseline", AutonomyTier: 2, AllowedTools: []string{"search"},
	}, "admin")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" || created.Version != 1 {
		t.Errorf("unexpected created envelope: %+v", created)
	}
}

func TestEnvelopeTierDecreaseAppliesImmediately(t *testing.T) {
	svc, _ := newEnvelopeFixture(t)
	ctx := context.Background()

	created, _ := svc.Create(ctx, &policy.Envelope{
		Name: "baseline", AutonomyTier: 3, AllowedTools: []string{"search"},
	}, "admin")

	created.AutonomyTier = 1
	updated, err := svc.Update(ctx, created, created.Version, "admin")
	if err != nil {
		t.Fatalf("Update lowering tier: %v", err)
	}
	if updated.AutonomyTier != 1 {
		t.Errorf("tier = %d, want 1", updated.AutonomyTier)
	}
}

func TestEnvelopeTierIncreaseGated(t *testing.T) {
	svc, store := newEnvelopeFixture(t)
	ctx := context.Background()

	created, _ := svc.Create(ctx, &policy.Envelope{
		Name: "baseline", AutonomyTier: 1, AllowedTools: []string{"search"},
	}, "admin")

	created.AutonomyTier = 4
	_, err := svc.Update(ctx, created, created.Version, "admin")
	if !errors.Is(err, domain.ErrApprovalRequired) {
		t.Fatalf("expected ErrApprovalRequired raising tier, got %v", err)
	}

	pending, err := store.FindApproval(ctx, approval.TypePolicyAutonomyIncrease, created.ID+"->tier-4", approval.StatusPending)
	if err != nil {
		t.Fatalf("expected a PENDING autonomy-increase record: %v", err)
	}
	if err := store.DecideApproval(ctx, pending.ID, approval.StatusApproved, "lead", "trusted workload", pending.Version); err != nil {
		t.Fatal(err)
	}

	updated, err := svc.Update(ctx, created, created.Version, "admin")
	if err != nil {
		t.Fatalf("Update after approval: %v", err)
	}
	if updated.AutonomyTier != 4 {
		t.Errorf("tier = %d, want 4", updated.AutonomyTier)
	}
}

func TestEnvelopeGetCachedServesAfterStoreMiss(t *testing.T) {
	svc, _ := newEnvelopeFixture(t)
	ctx := context.Background()

	created, _ := svc.Create(ctx, &policy.Envelope{
		Name: "hot", AutonomyTier: 2, AllowedTools: []string{"search"},
	}, "admin")

	got, err := svc.GetCached(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetCached: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("got envelope %s, want %s", got.ID, created.ID)
	}

	// A stale update must conflict regardless of cache state.
	created.AutonomyTier = 0
	if _, err := svc.Update(ctx, created, 99, "admin"); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict for stale update, got %v", err)
	}
}
