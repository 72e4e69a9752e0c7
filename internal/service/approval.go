package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	fgotel "github.com/fleetgate/fleetgate/internal/adapter/otel"
	"github.com/fleetgate/fleetgate/internal/adapter/ws"
	"github.com/fleetgate/fleetgate/internal/domain"
	"github.com/fleetgate/fleetgate/internal/domain/approval"
	"github.com/fleetgate/fleetgate/internal/domain/event"
	"github.com/fleetgate/fleetgate/internal/middleware"
	"github.com/fleetgate/fleetgate/internal/port/broadcast"
	"github.com/fleetgate/fleetgate/internal/port/database"
	"github.com/fleetgate/fleetgate/internal/port/eventstore"
	"github.com/fleetgate/fleetgate/internal/port/messagequeue"
)

// ApprovalService handles approval decisions and the expiry sweep.
type ApprovalService struct {
	store   database.Store
	events  eventstore.Store
	queue   messagequeue.Queue
	hub     broadcast.Broadcaster
	metrics *fgotel.Metrics
}

// NewApprovalService creates a new ApprovalService. metrics may be nil.
func NewApprovalService(store database.Store, events eventstore.Store, queue messagequeue.Queue, hub broadcast.Broadcaster, metrics *fgotel.Metrics) *ApprovalService {
	return &ApprovalService{store: store, events: events, queue: queue, hub: hub, metrics: metrics}
}

// List returns approval records, optionally filtered by status.
func (s *ApprovalService) List(ctx context.Context, status approval.Status) ([]approval.Record, error) {
	return s.store.ListApprovals(ctx, status)
}

// Get returns an approval record by ID.
func (s *ApprovalService) Get(ctx context.Context, id string) (*approval.Record, error) {
	return s.store.GetApproval(ctx, id)
}

// Decide applies a human decision to a PENDING record. A record is decided
// exactly once: the store's status guard makes the first writer win and any
// later decision surfaces ErrConflict. Deciding an already-expired record
// fails the same way a concurrent decision does.
func (s *ApprovalService) Decide(ctx context.Context, id string, approve bool, decidedBy, reason string) (*approval.Record, error) {
	rec, err := s.store.GetApproval(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.IsDecided() {
		return nil, fmt.Errorf("approval %s is already %s: %w", id, rec.Status, domain.ErrConflict)
	}
	if time.Now().UTC().After(rec.ExpiresAt) {
		return nil, fmt.Errorf("approval %s expired at %s: %w", id, rec.ExpiresAt.Format(time.RFC3339), domain.ErrConflict)
	}

	status := approval.StatusDenied
	if approve {
		status = approval.StatusApproved
	}
	if err := s.store.DecideApproval(ctx, id, status, decidedBy, reason, rec.Version); err != nil {
		return nil, err
	}

	s.announceDecision(ctx, rec, status, decidedBy, reason, event.TypeApprovalDecided)
	return s.store.GetApproval(ctx, id)
}

// Cancel withdraws a PENDING record. Idempotent in effect: cancelling an
// already-decided record returns ErrConflict from the status guard.
func (s *ApprovalService) Cancel(ctx context.Context, id, actor, reason string) error {
	rec, err := s.store.GetApproval(ctx, id)
	if err != nil {
		return err
	}
	if rec.IsDecided() {
		return fmt.Errorf("approval %s is already %s: %w", id, rec.Status, domain.ErrConflict)
	}
	if err := s.store.DecideApproval(ctx, id, approval.StatusCancelled, actor, reason, rec.Version); err != nil {
		return err
	}
	s.announceDecision(ctx, rec, approval.StatusCancelled, actor, reason, event.TypeApprovalCancelled)
	return nil
}

// SweepExpired cancels PENDING records whose decision window has passed.
// Expiry never auto-approves or auto-denies; requesters must ask again.
// Returns the number of records cancelled. Races with concurrent human
// decisions are lost gracefully via the status guard.
func (s *ApprovalService) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.store.ListExpiredApprovals(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for i := range expired {
		rec := &expired[i]
		// The listing is cross-tenant; re-scope each cancellation.
		tctx := middleware.WithTenantID(ctx, rec.TenantID)
		err := s.store.DecideApproval(tctx, rec.ID, approval.StatusCancelled, "system", "approval window expired", rec.Version)
		if err != nil {
			slog.Warn("cancel expired approval", "approval_id", rec.ID, "error", err)
			continue
		}
		s.announceDecision(tctx, rec, approval.StatusCancelled, "system", "approval window expired", event.TypeApprovalCancelled)
		cancelled++
	}
	return cancelled, nil
}

// RunSweeper runs the expiry sweep on an interval until ctx is cancelled.
func (s *ApprovalService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepExpired(ctx)
			if err != nil {
				slog.Error("approval expiry sweep", "error", err)
			} else if n > 0 {
				slog.Info("approval expiry sweep cancelled records", "count", n)
			}
		}
	}
}

func (s *ApprovalService) announceDecision(ctx context.Context, rec *approval.Record, status approval.Status, decidedBy, reason string, typ event.Type) {
	appendEvent(ctx, s.events, typ, event.KindApproval, rec.ID, decidedBy,
		event.DecisionPayload{Decision: string(status), Reason: reason})
	publishJSON(ctx, s.queue, messagequeue.SubjectApprovalDecided, messagequeue.ApprovalDecidedPayload{
		ApprovalID:  rec.ID,
		TenantID:    rec.TenantID,
		RequestType: string(rec.RequestType),
		TargetID:    rec.TargetID,
		Status:      string(status),
		DecidedBy:   decidedBy,
		Reason:      reason,
	})
	s.hub.BroadcastEvent(ctx, ws.EventApprovalDecided, ws.ApprovalDecidedEvent{
		ApprovalID: rec.ID,
		Status:     string(status),
		DecidedBy:  decidedBy,
	})
	if s.metrics != nil {
		s.metrics.ApprovalsDecided.Add(ctx, 1)
	}
}
