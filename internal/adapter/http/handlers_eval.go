package http

import (
	"net/http"

	"github.com/fleetgate/fleetgate/internal/domain/evaluation"
)

// ListSuites handles GET /api/v1/eval/suites
func (h *Handlers) ListSuites(w http.ResponseWriter, r *http.Request) {
	suites, err := h.Evals.ListSuites(r.Context())
	if err != nil {
		writeDomainError(w, err, "suites not found")
		return
	}
	if suites == nil {
		suites = []evaluation.Suite{}
	}
	writeJSON(w, http.StatusOK, suites)
}

// GetSuite handles GET /api/v1/eval/suites/{id}
func (h *Handlers) GetSuite(w http.ResponseWriter, r *http.Request) {
	suite, err := h.Evals.GetSuite(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "suite not found")
		return
	}
	writeJSON(w, http.StatusOK, suite)
}

// CreateSuite handles POST /api/v1/eval/suites
func (h *Handlers) CreateSuite(w http.ResponseWriter, r *http.Request) {
	suite, ok := readJSON[evaluation.Suite](w, r)
	if !ok {
		return
	}
	created, err := h.Evals.CreateSuite(r.Context(), &suite)
	if err != nil {
		writeDomainError(w, err, "suite creation failed")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListRuns handles GET /api/v1/versions/{id}/runs
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Evals.ListRuns(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "version not found")
		return
	}
	if runs == nil {
		runs = []evaluation.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun handles GET /api/v1/eval/runs/{id}
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Evals.GetRun(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

type startRunRequest struct {
	SuiteID   string `json:"suite_id,omitempty"`
	VersionID string `json:"version_id"`
	Actor     string `json:"actor,omitempty"`
}

// StartRun handles POST /api/v1/eval/runs
// An empty suite_id selects the tenant's default suite. The run executes in
// the background; the response carries the queued run for polling.
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[startRunRequest](w, r)
	if !ok {
		return
	}
	if req.VersionID == "" {
		writeError(w, http.StatusBadRequest, "version_id is required")
		return
	}
	run, err := h.Evals.StartRun(r.Context(), req.SuiteID, req.VersionID, actorOrDefault(r, req.Actor))
	if err != nil {
		writeDomainError(w, err, "version or suite not found")
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

type cancelRunRequest struct {
	Actor string `json:"actor,omitempty"`
}

// CancelRun handles POST /api/v1/eval/runs/{id}/cancel
func (h *Handlers) CancelRun(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[cancelRunRequest](w, r)
	if !ok {
		return
	}
	if err := h.Evals.CancelRun(r.Context(), urlParam(r, "id"), actorOrDefault(r, req.Actor)); err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
