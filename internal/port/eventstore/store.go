// Package eventstore defines the port interface for the append-only change log.
package eventstore

import (
	"context"
	"time"

	"github.com/fleetgate/fleetgate/internal/domain/event"
)

// HistoryFilter controls which events are returned by LoadHistory.
type HistoryFilter struct {
	Types  []event.Type `json:"types,omitempty"`
	After  *time.Time   `json:"after,omitempty"`
	Before *time.Time   `json:"before,omitempty"`
}

// HistoryPage is a cursor-paginated page of change events.
type HistoryPage struct {
	Events  []event.ChangeEvent `json:"events"`
	Cursor  string              `json:"cursor"`
	HasMore bool                `json:"has_more"`
	Total   int                 `json:"total"`
}

// Store is the port interface for appending and loading change events.
// Events are immutable once appended.
type Store interface {
	// Append persists a new change event.
	Append(ctx context.Context, ev *event.ChangeEvent) error

	// LoadByTarget returns all events for the given target, ordered by version.
	LoadByTarget(ctx context.Context, targetKind, targetID string) ([]event.ChangeEvent, error)

	// LoadHistory returns a cursor-paginated page of a target's events with
	// optional filtering.
	LoadHistory(ctx context.Context, targetKind, targetID string, filter HistoryFilter, cursor string, limit int) (*HistoryPage, error)
}
