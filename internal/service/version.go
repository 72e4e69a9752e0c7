package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	fgotel "github.com/fleetgate/fleetgate/internal/adapter/otel"
	"github.com/fleetgate/fleetgate/internal/adapter/ws"
	"github.com/fleetgate/fleetgate/internal/domain"
	"github.com/fleetgate/fleetgate/internal/domain/approval"
	"github.com/fleetgate/fleetgate/internal/domain/event"
	"github.com/fleetgate/fleetgate/internal/domain/genome"
	"github.com/fleetgate/fleetgate/internal/domain/version"
	"github.com/fleetgate/fleetgate/internal/middleware"
	"github.com/fleetgate/fleetgate/internal/port/broadcast"
	"github.com/fleetgate/fleetgate/internal/port/database"
	"github.com/fleetgate/fleetgate/internal/port/eventstore"
	"github.com/fleetgate/fleetgate/internal/port/messagequeue"
)

// EvalTrigger starts an evaluation run for a version. Implemented by
// EvaluationService; optional so the version service stays testable alone.
type EvalTrigger interface {
	StartRunForVersion(ctx context.Context, versionID, actor string) error
}

// VersionService handles agent version creation and lifecycle transitions.
type VersionService struct {
	store       database.Store
	events      eventstore.Store
	queue       messagequeue.Queue
	hub         broadcast.Broadcaster
	metrics     *fgotel.Metrics
	evalTrigger EvalTrigger
}

// NewVersionService creates a new VersionService. metrics may be nil.
func NewVersionService(store database.Store, events eventstore.Store, queue messagequeue.Queue, hub broadcast.Broadcaster, metrics *fgotel.Metrics) *VersionService {
	return &VersionService{store: store, events: events, queue: queue, hub: hub, metrics: metrics}
}

// SetEvalTrigger wires the evaluation service used to kick off a run when a
// version enters TESTING.
func (s *VersionService) SetEvalTrigger(t EvalTrigger) {
	s.evalTrigger = t
}

// List returns all versions of a template.
func (s *VersionService) List(ctx context.Context, templateID string) ([]version.AgentVersion, error) {
	return s.store.ListVersions(ctx, templateID)
}

// Get returns a version by ID along with an integrity flag: tampered is true
// when the stored genome no longer matches its sealed hash. Tampering is
// reported, never an error that blocks the read.
func (s *VersionService) Get(ctx context.Context, id string) (v *version.AgentVersion, tampered bool, err error) {
	v, err = s.store.GetVersion(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return v, !genome.Verify(&v.Genome, v.GenomeHash), nil
}

// Create validates the genome, seals its content hash, and persists the new
// version in DRAFT.
func (s *VersionService) Create(ctx context.Context, req version.CreateRequest, actor string) (*version.AgentVersion, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := req.Genome.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.store.GetTemplate(ctx, req.TemplateID); err != nil {
		return nil, fmt.Errorf("template %s: %w", req.TemplateID, err)
	}

	hash, err := genome.ComputeHash(&req.Genome)
	if err != nil {
		return nil, fmt.Errorf("compute genome hash: %w", err)
	}

	v, err := s.store.CreateVersion(ctx, req, hash)
	if err != nil {
		return nil, err
	}

	s.appendEvent(ctx, event.TypeVersionCreated, v.ID, actor,
		map[string]string{"template_id": v.TemplateID, "version_label": v.VersionLabel, "genome_hash": v.GenomeHash})
	return v, nil
}

// TransitionRequest asks for one version lifecycle edge. AutonomyTier is the
// caller's autonomy level; tier 0 (the zero value) routes every guarded edge
// through approval.
type TransitionRequest struct {
	To           version.LifecycleState `json:"to"`
	Actor        string                 `json:"actor"`
	Reason       string                 `json:"reason,omitempty"`
	AutonomyTier int                    `json:"autonomy_tier,omitempty"`
}

// Transition applies one lifecycle edge to a version. Guarded edges require
// an APPROVED approval record for the version; otherwise a PENDING record is
// created and ErrApprovalRequired is returned. Exactly one of two concurrent
// transitions wins via the store's optimistic lock.
func (s *VersionService) Transition(ctx context.Context, id string, req TransitionRequest) (*version.AgentVersion, error) {
	v, err := s.store.GetVersion(ctx, id)
	if err != nil {
		return nil, err
	}
	from := v.LifecycleState

	if err := version.ValidateTransition(from, req.To, v.EvalStatus); err != nil {
		return nil, err
	}

	ctx, span := fgotel.StartTransitionSpan(ctx, "version", id, string(from), string(req.To))
	defer span.End()

	var grant *approval.Record
	requirement := approval.ForVersionTransition(from, req.To, req.AutonomyTier)
	if requirement.Required {
		target := transitionApprovalTarget(id, string(req.To))
		grant, err = ensureApproved(ctx, s.store, s.queue, s.hub, s.metrics, requirement, target, req.Actor)
		if err != nil {
			return nil, err
		}
	}

	if err := s.store.UpdateVersionState(ctx, id, req.To, v.Version); err != nil {
		return nil, err
	}
	consumeApproval(ctx, s.store, grant)

	s.appendTransitionEvent(ctx, id, req.Actor, event.TransitionPayload{
		From: string(from), To: string(req.To), Reason: req.Reason,
	})
	s.publishTransition(ctx, v, from, req.To, req.Actor)
	s.hub.BroadcastEvent(ctx, ws.EventVersionState, ws.VersionStateEvent{
		VersionID:  v.ID,
		TemplateID: v.TemplateID,
		From:       string(from),
		To:         string(req.To),
	})
	if s.metrics != nil {
		s.metrics.VersionTransitions.Add(ctx, 1)
	}

	if req.To == version.StateTesting && s.evalTrigger != nil {
		if err := s.evalTrigger.StartRunForVersion(ctx, id, req.Actor); err != nil {
			slog.Warn("auto-start eval run failed", "version_id", id, "error", err)
		}
	}

	return s.refresh(ctx, id, v)
}

func (s *VersionService) publishTransition(ctx context.Context, v *version.AgentVersion, from, to version.LifecycleState, actor string) {
	publishJSON(ctx, s.queue, messagequeue.SubjectVersionTransitioned, messagequeue.VersionTransitionedPayload{
		VersionID:  v.ID,
		TemplateID: v.TemplateID,
		TenantID:   middleware.TenantIDFromContext(ctx),
		From:       string(from),
		To:         string(to),
		Actor:      actor,
	})
}

func (s *VersionService) appendEvent(ctx context.Context, typ event.Type, versionID, actor string, payload any) {
	appendEvent(ctx, s.events, typ, event.KindVersion, versionID, actor, payload)
}

func (s *VersionService) appendTransitionEvent(ctx context.Context, versionID, actor string, p event.TransitionPayload) {
	s.appendEvent(ctx, event.TypeVersionTransition, versionID, actor, p)
}

// refresh re-reads the version after a successful transition, falling back to
// the in-memory copy if the read fails.
func (s *VersionService) refresh(ctx context.Context, id string, stale *version.AgentVersion) (*version.AgentVersion, error) {
	fresh, err := s.store.GetVersion(ctx, id)
	if err != nil {
		slog.Warn("re-read version after transition failed", "version_id", id, "error", err)
		return stale, nil
	}
	return fresh, nil
}

// --- shared helpers ---

// appendEvent records a change event. Append failures are logged, not
// surfaced; the primary write has already committed.
func appendEvent(ctx context.Context, store eventstore.Store, typ event.Type, kind, targetID, actor string, payload any) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			slog.Error("marshal event payload", "type", typ, "error", err)
			return
		}
		raw = data
	}
	ev := &event.ChangeEvent{
		ID:         uuid.NewString(),
		TenantID:   middleware.TenantIDFromContext(ctx),
		TargetKind: kind,
		TargetID:   targetID,
		Type:       typ,
		Payload:    raw,
		Actor:      actor,
		CreatedAt:  time.Now().UTC(),
	}
	if err := store.Append(ctx, ev); err != nil {
		slog.Error("append change event", "type", typ, "target_id", targetID, "error", err)
	}
}

// publishJSON marshals and publishes a payload, logging failures. Queue
// delivery is best effort; the database is the source of truth.
func publishJSON(ctx context.Context, queue messagequeue.Queue, subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal queue payload", "subject", subject, "error", err)
		return
	}
	if err := queue.Publish(ctx, subject, data); err != nil {
		slog.Warn("publish queue message", "subject", subject, "error", err)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
