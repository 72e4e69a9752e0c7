package http

import (
	"net/http"

	"github.com/fleetgate/fleetgate/internal/domain/policy"
)

type authorizeRequest struct {
	policy.ToolRequest
	Actor string `json:"actor,omitempty"`
}

// AuthorizeTool handles POST /api/v1/instances/{id}/authorize
// The decision is always 200: ALLOW, DENY, and NEEDS_APPROVAL are all valid
// outcomes the caller must inspect.
func (h *Handlers) AuthorizeTool(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[authorizeRequest](w, r)
	if !ok {
		return
	}
	if req.ToolID == "" {
		writeError(w, http.StatusBadRequest, "tool_id is required")
		return
	}
	result, err := h.Policies.Authorize(r.Context(), urlParam(r, "id"), req.ToolRequest, actorOrDefault(r, req.Actor))
	if err != nil {
		writeDomainError(w, err, "instance not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type recordUsageRequest struct {
	Tokens  int64   `json:"tokens"`
	CostUSD float64 `json:"cost_usd"`
}

// RecordUsage handles POST /api/v1/instances/{id}/usage
// Callers post actual consumption after execution; authorization only
// reserves the estimate.
func (h *Handlers) RecordUsage(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[recordUsageRequest](w, r)
	if !ok {
		return
	}
	if err := h.Policies.RecordUsage(r.Context(), urlParam(r, "id"), req.Tokens, req.CostUSD); err != nil {
		writeDomainError(w, err, "instance not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetUsage handles GET /api/v1/instances/{id}/usage
func (h *Handlers) GetUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.Policies.Usage(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "instance not found")
		return
	}
	writeJSON(w, http.StatusOK, usage)
}
