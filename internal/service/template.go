// Package service implements governance business logic on top of ports.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fleetgate/fleetgate/internal/domain/event"
	"github.com/fleetgate/fleetgate/internal/domain/template"
	"github.com/fleetgate/fleetgate/internal/middleware"
	"github.com/fleetgate/fleetgate/internal/port/database"
	"github.com/fleetgate/fleetgate/internal/port/eventstore"
)

// TemplateService handles agent template CRUD and archival.
type TemplateService struct {
	store  database.Store
	events eventstore.Store
}

// NewTemplateService creates a new TemplateService.
func NewTemplateService(store database.Store, events eventstore.Store) *TemplateService {
	return &TemplateService{store: store, events: events}
}

// List returns templates, optionally including archived ones.
func (s *TemplateService) List(ctx context.Context, includeArchived bool) ([]template.AgentTemplate, error) {
	return s.store.ListTemplates(ctx, includeArchived)
}

// Get returns a template by ID.
func (s *TemplateService) Get(ctx context.Context, id string) (*template.AgentTemplate, error) {
	return s.store.GetTemplate(ctx, id)
}

// Create creates a new template after validating the request.
func (s *TemplateService) Create(ctx context.Context, req template.CreateRequest, actor string) (*template.AgentTemplate, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	t, err := s.store.CreateTemplate(ctx, req)
	if err != nil {
		return nil, err
	}
	s.appendEvent(ctx, event.TypeTemplateCreated, t.ID, actor, map[string]string{"name": t.Name})
	return t, nil
}

// Archive marks a template archived. Versions under it remain readable.
func (s *TemplateService) Archive(ctx context.Context, id string, expectedVersion int, actor string) error {
	if err := s.store.ArchiveTemplate(ctx, id, expectedVersion); err != nil {
		return err
	}
	s.appendEvent(ctx, event.TypeTemplateArchived, id, actor, nil)
	return nil
}

// appendEvent records a template change. Append failures are logged, not
// surfaced; the primary write has already committed.
func (s *TemplateService) appendEvent(ctx context.Context, typ event.Type, templateID, actor string, payload any) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			slog.Error("marshal template event payload", "type", typ, "error", err)
			return
		}
		raw = data
	}
	ev := &event.ChangeEvent{
		ID:         uuid.NewString(),
		TenantID:   middleware.TenantIDFromContext(ctx),
		TargetKind: event.KindTemplate,
		TargetID:   templateID,
		Type:       typ,
		Payload:    raw,
		Actor:      actor,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.events.Append(ctx, ev); err != nil {
		slog.Error("append template event", "type", typ, "template_id", templateID, "error", err)
	}
}
