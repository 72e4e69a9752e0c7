package http

import (
	"net/http"

	"github.com/fleetgate/fleetgate/internal/domain/approval"
)

// ListApprovals handles GET /api/v1/approvals
// An optional status query parameter filters by decision state; the default
// returns pending records, which is what approvers poll for.
func (h *Handlers) ListApprovals(w http.ResponseWriter, r *http.Request) {
	status := approval.Status(r.URL.Query().Get("status"))
	if status == "" {
		status = approval.StatusPending
	}
	records, err := h.Approvals.List(r.Context(), status)
	if err != nil {
		writeDomainError(w, err, "approvals not found")
		return
	}
	if records == nil {
		records = []approval.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// GetApproval handles GET /api/v1/approvals/{id}
func (h *Handlers) GetApproval(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Approvals.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "approval not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type decideApprovalRequest struct {
	Approve   bool   `json:"approve"`
	DecidedBy string `json:"decided_by"`
	Reason    string `json:"reason,omitempty"`
}

// DecideApproval handles POST /api/v1/approvals/{id}/decide
func (h *Handlers) DecideApproval(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[decideApprovalRequest](w, r)
	if !ok {
		return
	}
	if req.DecidedBy == "" {
		writeError(w, http.StatusBadRequest, "decided_by is required")
		return
	}
	rec, err := h.Approvals.Decide(r.Context(), urlParam(r, "id"), req.Approve, req.DecidedBy, req.Reason)
	if err != nil {
		writeDomainError(w, err, "approval not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type cancelApprovalRequest struct {
	Actor  string `json:"actor,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// CancelApproval handles POST /api/v1/approvals/{id}/cancel
func (h *Handlers) CancelApproval(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[cancelApprovalRequest](w, r)
	if !ok {
		return
	}
	if err := h.Approvals.Cancel(r.Context(), urlParam(r, "id"), actorOrDefault(r, req.Actor), req.Reason); err != nil {
		writeDomainError(w, err, "approval not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
