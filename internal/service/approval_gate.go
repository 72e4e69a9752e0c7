package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	fgotel "github.com/fleetgate/fleetgate/internal/adapter/otel"
	"github.com/fleetgate/fleetgate/internal/adapter/ws"
	"github.com/fleetgate/fleetgate/internal/domain"
	"github.com/fleetgate/fleetgate/internal/domain/approval"
	"github.com/fleetgate/fleetgate/internal/middleware"
	"github.com/fleetgate/fleetgate/internal/port/broadcast"
	"github.com/fleetgate/fleetgate/internal/port/database"
	"github.com/fleetgate/fleetgate/internal/port/messagequeue"
)

// ensureApproved enforces the approval hard gate: an APPROVED record matching
// (request type, target) must exist for the action to proceed, and the grant
// is returned so the caller can consume it once the action commits. Otherwise
// a PENDING record is created (reusing an existing PENDING one rather than
// piling up duplicates) and ErrApprovalRequired is returned.
func ensureApproved(ctx context.Context, store database.Store, queue messagequeue.Queue, hub broadcast.Broadcaster, metrics *fgotel.Metrics, req approval.Requirement, targetID, actor string) (*approval.Record, error) {
	approved, err := store.FindApproval(ctx, req.RequestType, targetID, approval.StatusApproved)
	if err == nil && approved != nil {
		return approved, nil
	}
	if err != nil && !isNotFound(err) {
		return nil, err
	}

	pending, err := store.FindApproval(ctx, req.RequestType, targetID, approval.StatusPending)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if pending == nil {
		now := time.Now().UTC()
		rec := &approval.Record{
			ID:          uuid.NewString(),
			TenantID:    middleware.TenantIDFromContext(ctx),
			RequestType: req.RequestType,
			TargetID:    targetID,
			Status:      approval.StatusPending,
			Reason:      req.Reason,
			RequestedBy: actor,
			CreatedAt:   now,
			ExpiresAt:   now.Add(approval.TimeoutFor(req.RequestType)),
		}
		created, createErr := store.CreateApproval(ctx, rec)
		if createErr != nil {
			return nil, createErr
		}
		announceApprovalRequested(ctx, queue, hub, metrics, created)
	}

	return nil, fmt.Errorf("%s: %w", req.Reason, domain.ErrApprovalRequired)
}

// consumeApproval retires a grant after its gated action committed. Best
// effort: the action is already durable, so a failed consume is logged and
// the sweep of stale APPROVED records is left to operators.
func consumeApproval(ctx context.Context, store database.Store, grant *approval.Record) {
	if grant == nil {
		return
	}
	if err := store.ConsumeApproval(ctx, grant.ID, grant.Version); err != nil {
		slog.Warn("consume approval", "approval_id", grant.ID, "error", err)
	}
}

// transitionApprovalTarget keys a transition approval to its exact edge so a
// grant for one destination state never satisfies another.
func transitionApprovalTarget(id, to string) string {
	return id + "->" + to
}

// announceApprovalRequested fans a new PENDING approval out to the queue and
// connected operator consoles. Best effort; the record is already persisted.
func announceApprovalRequested(ctx context.Context, queue messagequeue.Queue, hub broadcast.Broadcaster, metrics *fgotel.Metrics, rec *approval.Record) {
	if metrics != nil {
		metrics.ApprovalsRequested.Add(ctx, 1)
	}
	publishJSON(ctx, queue, messagequeue.SubjectApprovalRequested, messagequeue.ApprovalRequestedPayload{
		ApprovalID:  rec.ID,
		TenantID:    rec.TenantID,
		RequestType: string(rec.RequestType),
		TargetID:    rec.TargetID,
		Reason:      rec.Reason,
		ExpiresAt:   rec.ExpiresAt.Format(time.RFC3339),
	})
	hub.BroadcastEvent(ctx, ws.EventApprovalPending, ws.ApprovalPendingEvent{
		ApprovalID:  rec.ID,
		RequestType: string(rec.RequestType),
		TargetID:    rec.TargetID,
		Reason:      rec.Reason,
	})
}
