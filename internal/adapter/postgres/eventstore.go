package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetgate/fleetgate/internal/domain/event"
	"github.com/fleetgate/fleetgate/internal/port/eventstore"
)

// EventStore implements eventstore.Store using PostgreSQL (append-only).
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append inserts a new event into the change_events table.
func (s *EventStore) Append(ctx context.Context, ev *event.ChangeEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO change_events (tenant_id, target_kind, target_id, event_type, payload, actor, request_id, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		tenantFromCtx(ctx), ev.TargetKind, ev.TargetID, string(ev.Type), ev.Payload, ev.Actor, ev.RequestID, ev.Version)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// changeEventColumns is the SELECT column list for change_events queries.
const changeEventColumns = `id, tenant_id, target_kind, target_id, event_type, payload, actor, request_id, version, created_at`

func scanChangeEvent(row scannable, ev *event.ChangeEvent) error {
	return row.Scan(
		&ev.ID, &ev.TenantID, &ev.TargetKind, &ev.TargetID,
		&ev.Type, &ev.Payload, &ev.Actor, &ev.RequestID, &ev.Version, &ev.CreatedAt,
	)
}

// LoadByTarget returns all events for the given target, ordered by version ascending.
func (s *EventStore) LoadByTarget(ctx context.Context, targetKind, targetID string) ([]event.ChangeEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+changeEventColumns+` FROM change_events
		 WHERE target_kind = $1 AND target_id = $2 AND tenant_id = $3 ORDER BY version ASC`,
		targetKind, targetID, tenantFromCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("load events for %s %s: %w", targetKind, targetID, err)
	}
	defer rows.Close()

	var events []event.ChangeEvent
	for rows.Next() {
		var ev event.ChangeEvent
		if err := scanChangeEvent(rows, &ev); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// LoadHistory returns a cursor-paginated page of a target's events with optional filtering.
func (s *EventStore) LoadHistory(ctx context.Context, targetKind, targetID string, filter eventstore.HistoryFilter, cursor string, limit int) (*eventstore.HistoryPage, error) {
	if limit <= 0 {
		limit = 50
	}

	// Build dynamic WHERE clause.
	args := []any{targetKind, targetID, tenantFromCtx(ctx)}
	conditions := []string{"target_kind = $1", "target_id = $2", "tenant_id = $3"}
	argIdx := 4

	if cursor != "" {
		conditions = append(conditions, fmt.Sprintf("id > $%d", argIdx))
		args = append(args, cursor)
		argIdx++
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		conditions = append(conditions, fmt.Sprintf("event_type = ANY($%d)", argIdx))
		args = append(args, types)
		argIdx++
	}
	if filter.After != nil {
		conditions = append(conditions, fmt.Sprintf("created_at > $%d", argIdx))
		args = append(args, *filter.After)
		argIdx++
	}
	if filter.Before != nil {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argIdx))
		args = append(args, *filter.Before)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	// Count total matching events.
	var total int
	countSQL := fmt.Sprintf(`SELECT COUNT(*) FROM change_events WHERE %s`, where)
	if err := s.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count history events: %w", err)
	}

	// Fetch limit+1 to detect hasMore.
	fetchSQL := fmt.Sprintf(
		`SELECT %s FROM change_events WHERE %s ORDER BY version ASC LIMIT $%d`,
		changeEventColumns, where, argIdx)
	args = append(args, limit+1)

	rows, err := s.pool.Query(ctx, fetchSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var events []event.ChangeEvent
	for rows.Next() {
		var ev event.ChangeEvent
		if err := scanChangeEvent(rows, &ev); err != nil {
			return nil, fmt.Errorf("scan history event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hasMore := len(events) > limit
	if hasMore {
		events = events[:limit]
	}

	var nextCursor string
	if hasMore && len(events) > 0 {
		nextCursor = events[len(events)-1].ID
	}

	return &eventstore.HistoryPage{
		Events:  events,
		Cursor:  nextCursor,
		HasMore: hasMore,
		Total:   total,
	}, nil
}
