package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	fgotel "github.com/fleetgate/fleetgate/internal/adapter/otel"
	"github.com/fleetgate/fleetgate/internal/adapter/ws"
	"github.com/fleetgate/fleetgate/internal/domain/approval"
	"github.com/fleetgate/fleetgate/internal/domain/event"
	"github.com/fleetgate/fleetgate/internal/domain/instance"
	"github.com/fleetgate/fleetgate/internal/middleware"
	"github.com/fleetgate/fleetgate/internal/port/broadcast"
	"github.com/fleetgate/fleetgate/internal/port/database"
	"github.com/fleetgate/fleetgate/internal/port/eventstore"
	"github.com/fleetgate/fleetgate/internal/port/messagequeue"
)

// InstanceService handles provisioning, state transitions, and liveness of
// deployed agent instances.
type InstanceService struct {
	store   database.Store
	events  eventstore.Store
	queue   messagequeue.Queue
	hub     broadcast.Broadcaster
	metrics *fgotel.Metrics
}

// NewInstanceService creates a new InstanceService. metrics may be nil.
func NewInstanceService(store database.Store, events eventstore.Store, queue messagequeue.Queue, hub broadcast.Broadcaster, metrics *fgotel.Metrics) *InstanceService {
	return &InstanceService{store: store, events: events, queue: queue, hub: hub, metrics: metrics}
}

// List returns instances of a version; an empty versionID lists all.
func (s *InstanceService) List(ctx context.Context, versionID string) ([]instance.AgentInstance, error) {
	return s.store.ListInstances(ctx, versionID)
}

// Get returns an instance by ID.
func (s *InstanceService) Get(ctx context.Context, id string) (*instance.AgentInstance, error) {
	return s.store.GetInstance(ctx, id)
}

// Create provisions a new instance in PROVISIONING. The referenced version
// and policy envelope must exist.
func (s *InstanceService) Create(ctx context.Context, req instance.CreateRequest, actor string) (*instance.AgentInstance, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.store.GetVersion(ctx, req.VersionID); err != nil {
		return nil, fmt.Errorf("version %s: %w", req.VersionID, err)
	}
	if _, err := s.store.GetEnvelope(ctx, req.PolicyEnvelopeID); err != nil {
		return nil, fmt.Errorf("policy envelope %s: %w", req.PolicyEnvelopeID, err)
	}

	in, err := s.store.CreateInstance(ctx, req)
	if err != nil {
		return nil, err
	}

	appendEvent(ctx, s.events, event.TypeInstanceCreated, event.KindInstance, in.ID, actor,
		map[string]string{"version_id": in.VersionID, "environment": in.Environment})
	return in, nil
}

// InstanceTransitionRequest asks for one instance state edge.
type InstanceTransitionRequest struct {
	To     instance.State `json:"to"`
	Actor  string         `json:"actor"`
	Reason string         `json:"reason,omitempty"`
}

// Transition applies one state edge to an instance. The autonomy tier for
// approval resolution comes from the instance's policy envelope; reactivating
// a quarantined instance always requires an APPROVED record regardless of
// tier.
func (s *InstanceService) Transition(ctx context.Context, id string, req InstanceTransitionRequest) (*instance.AgentInstance, error) {
	in, err := s.store.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	from := in.State

	if err := instance.ValidateTransition(from, req.To); err != nil {
		return nil, err
	}

	env, err := s.store.GetEnvelope(ctx, in.PolicyEnvelopeID)
	if err != nil {
		return nil, fmt.Errorf("policy envelope %s: %w", in.PolicyEnvelopeID, err)
	}

	ctx, span := fgotel.StartTransitionSpan(ctx, "instance", id, string(from), string(req.To))
	defer span.End()

	var grant *approval.Record
	requirement := approval.ForInstanceTransition(from, req.To, env.AutonomyTier)
	if requirement.Required {
		target := transitionApprovalTarget(id, string(req.To))
		grant, err = ensureApproved(ctx, s.store, s.queue, s.hub, s.metrics, requirement, target, req.Actor)
		if err != nil {
			return nil, err
		}
	}

	if err := s.store.UpdateInstanceState(ctx, id, req.To, in.Version); err != nil {
		return nil, err
	}
	consumeApproval(ctx, s.store, grant)

	appendEvent(ctx, s.events, event.TypeInstanceTransition, event.KindInstance, id, req.Actor,
		event.TransitionPayload{From: string(from), To: string(req.To), Reason: req.Reason})
	publishJSON(ctx, s.queue, messagequeue.SubjectInstanceTransitioned, messagequeue.InstanceTransitionedPayload{
		InstanceID: in.ID,
		VersionID:  in.VersionID,
		TenantID:   middleware.TenantIDFromContext(ctx),
		From:       string(from),
		To:         string(req.To),
		Reason:     req.Reason,
	})
	s.hub.BroadcastEvent(ctx, ws.EventInstanceState, ws.InstanceStateEvent{
		InstanceID: in.ID,
		VersionID:  in.VersionID,
		From:       string(from),
		To:         string(req.To),
		Reason:     req.Reason,
	})
	if s.metrics != nil {
		s.metrics.InstanceTransitions.Add(ctx, 1)
	}

	fresh, err := s.store.GetInstance(ctx, id)
	if err != nil {
		slog.Warn("re-read instance after transition failed", "instance_id", id, "error", err)
		return in, nil
	}
	return fresh, nil
}

// Heartbeat records instance liveness. Deliberately not evented and not
// version-guarded: heartbeats must never conflict with concurrent state
// transitions or flood the change log.
func (s *InstanceService) Heartbeat(ctx context.Context, id string) error {
	return s.store.RecordHeartbeat(ctx, id, time.Now().UTC())
}
