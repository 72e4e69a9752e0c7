package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fleetgate/fleetgate/internal/domain/event"
	"github.com/fleetgate/fleetgate/internal/port/eventstore"
)

// GetHistory handles GET /api/v1/history/{kind}/{id}
// Query parameters: types (comma-separated), after, before (RFC 3339),
// cursor, limit.
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filter eventstore.HistoryFilter
	if raw := q.Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter.Types = append(filter.Types, event.Type(t))
			}
		}
	}
	if raw := q.Get("after"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "after must be RFC 3339")
			return
		}
		filter.After = &ts
	}
	if raw := q.Get("before"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "before must be RFC 3339")
			return
		}
		filter.Before = &ts
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	page, err := h.History.Page(r.Context(), urlParam(r, "kind"), urlParam(r, "id"), filter, q.Get("cursor"), limit)
	if err != nil {
		writeDomainError(w, err, "history not found")
		return
	}
	writeJSON(w, http.StatusOK, page)
}
