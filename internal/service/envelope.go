package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/fleetgate/fleetgate/internal/domain/approval"
	"github.com/fleetgate/fleetgate/internal/domain/event"
	"github.com/fleetgate/fleetgate/internal/domain/policy"
	"github.com/fleetgate/fleetgate/internal/middleware"
	"github.com/fleetgate/fleetgate/internal/port/broadcast"
	"github.com/fleetgate/fleetgate/internal/port/cache"
	"github.com/fleetgate/fleetgate/internal/port/database"
	"github.com/fleetgate/fleetgate/internal/port/eventstore"
	"github.com/fleetgate/fleetgate/internal/port/messagequeue"
)

// EnvelopeService handles policy envelope CRUD. Raising an envelope's
// autonomy tier is approval-gated; lowering it never is.
type EnvelopeService struct {
	store  database.Store
	events eventstore.Store
	queue  messagequeue.Queue
	hub    broadcast.Broadcaster
	cache  cache.Cache
	ttl    time.Duration
}

// NewEnvelopeService creates a new EnvelopeService. The cache holds hot
// envelopes for the authorize path and is invalidated on update.
func NewEnvelopeService(store database.Store, events eventstore.Store, queue messagequeue.Queue, hub broadcast.Broadcaster, cache cache.Cache, ttl time.Duration) *EnvelopeService {
	return &EnvelopeService{store: store, events: events, queue: queue, hub: hub, cache: cache, ttl: ttl}
}

// List returns all policy envelopes for the tenant.
func (s *EnvelopeService) List(ctx context.Context) ([]policy.Envelope, error) {
	return s.store.ListEnvelopes(ctx)
}

// Get returns an envelope by ID.
func (s *EnvelopeService) Get(ctx context.Context, id string) (*policy.Envelope, error) {
	return s.store.GetEnvelope(ctx, id)
}

// GetCached returns an envelope, serving from the in-process cache when
// possible. Used on the hot authorize path; CRUD reads go straight to the
// store.
func (s *EnvelopeService) GetCached(ctx context.Context, id string) (*policy.Envelope, error) {
	key := envelopeCacheKey(middleware.TenantIDFromContext(ctx), id)
	if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var env policy.Envelope
		if err := json.Unmarshal(data, &env); err == nil {
			return &env, nil
		}
		slog.Warn("corrupt cached envelope, falling through", "envelope_id", id)
	}

	env, err := s.store.GetEnvelope(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(env); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			slog.Warn("cache envelope", "envelope_id", id, "error", err)
		}
	}
	return env, nil
}

// Create validates and persists a new envelope.
func (s *EnvelopeService) Create(ctx context.Context, env *policy.Envelope, actor string) (*policy.Envelope, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	created, err := s.store.CreateEnvelope(ctx, env)
	if err != nil {
		return nil, err
	}
	appendEvent(ctx, s.events, event.TypeEnvelopeCreated, event.KindEnvelope, created.ID, actor,
		map[string]any{"name": created.Name, "autonomy_tier": created.AutonomyTier})
	return created, nil
}

// Update replaces an envelope's policy fields under optimistic concurrency.
// An autonomy tier increase requires an APPROVED record for the envelope;
// decreases apply immediately.
func (s *EnvelopeService) Update(ctx context.Context, env *policy.Envelope, expectedVersion int, actor string) (*policy.Envelope, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}

	current, err := s.store.GetEnvelope(ctx, env.ID)
	if err != nil {
		return nil, err
	}

	var grant *approval.Record
	requirement := approval.ForPolicyChange(current.AutonomyTier, env.AutonomyTier)
	if requirement.Required {
		target := transitionApprovalTarget(env.ID, "tier-"+strconv.Itoa(env.AutonomyTier))
		grant, err = ensureApproved(ctx, s.store, s.queue, s.hub, nil, requirement, target, actor)
		if err != nil {
			return nil, err
		}
	}

	updated, err := s.store.UpdateEnvelope(ctx, env, expectedVersion)
	if err != nil {
		return nil, err
	}
	consumeApproval(ctx, s.store, grant)

	s.invalidate(ctx, updated.ID)
	appendEvent(ctx, s.events, event.TypeEnvelopeUpdated, event.KindEnvelope, updated.ID, actor,
		map[string]any{"autonomy_tier": updated.AutonomyTier, "previous_tier": current.AutonomyTier})
	return updated, nil
}

func (s *EnvelopeService) invalidate(ctx context.Context, id string) {
	key := envelopeCacheKey(middleware.TenantIDFromContext(ctx), id)
	if err := s.cache.Delete(ctx, key); err != nil {
		slog.Warn("invalidate cached envelope", "envelope_id", id, "error", err)
	}
}

func envelopeCacheKey(tenantID, envelopeID string) string {
	return "envelope:" + tenantID + ":" + envelopeID
}
