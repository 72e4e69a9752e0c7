package service

import (
	"context"
	"fmt"

	"github.com/fleetgate/fleetgate/internal/domain"
	"github.com/fleetgate/fleetgate/internal/domain/event"
	"github.com/fleetgate/fleetgate/internal/port/eventstore"
)

// maxHistoryPageSize caps one page of change history.
const maxHistoryPageSize = 200

// HistoryService reads the append-only change log.
type HistoryService struct {
	events eventstore.Store
}

// NewHistoryService creates a new HistoryService.
func NewHistoryService(events eventstore.Store) *HistoryService {
	return &HistoryService{events: events}
}

// ByTarget returns the full ordered history of one governed entity.
func (s *HistoryService) ByTarget(ctx context.Context, targetKind, targetID string) ([]event.ChangeEvent, error) {
	if err := validateTargetKind(targetKind); err != nil {
		return nil, err
	}
	return s.events.LoadByTarget(ctx, targetKind, targetID)
}

// Page returns one cursor-paginated, optionally filtered page of history.
func (s *HistoryService) Page(ctx context.Context, targetKind, targetID string, filter eventstore.HistoryFilter, cursor string, limit int) (*eventstore.HistoryPage, error) {
	if err := validateTargetKind(targetKind); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxHistoryPageSize {
		limit = maxHistoryPageSize
	}
	return s.events.LoadHistory(ctx, targetKind, targetID, filter, cursor, limit)
}

func validateTargetKind(kind string) error {
	switch kind {
	case event.KindTemplate, event.KindVersion, event.KindInstance,
		event.KindEnvelope, event.KindApproval, event.KindEvalRun:
		return nil
	}
	return fmt.Errorf("unknown target kind %q: %w", kind, domain.ErrValidation)
}
