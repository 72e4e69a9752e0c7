package http

import (
	"net/http"

	"github.com/fleetgate/fleetgate/internal/domain/version"
	"github.com/fleetgate/fleetgate/internal/service"
)

// ListVersions handles GET /api/v1/templates/{id}/versions
func (h *Handlers) ListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.Versions.List(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "template not found")
		return
	}
	if versions == nil {
		versions = []version.AgentVersion{}
	}
	writeJSON(w, http.StatusOK, versions)
}

// versionResponse carries a version together with the genome integrity flag
// computed on read. Reads are never blocked by tampering; the flag lets
// callers decide.
type versionResponse struct {
	Version  *version.AgentVersion `json:"version"`
	Tampered bool                  `json:"tampered"`
}

// GetVersion handles GET /api/v1/versions/{id}
func (h *Handlers) GetVersion(w http.ResponseWriter, r *http.Request) {
	v, tampered, err := h.Versions.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "version not found")
		return
	}
	writeJSON(w, http.StatusOK, versionResponse{Version: v, Tampered: tampered})
}

type createVersionRequest struct {
	version.CreateRequest
	Actor string `json:"actor,omitempty"`
}

// CreateVersion handles POST /api/v1/versions
func (h *Handlers) CreateVersion(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[createVersionRequest](w, r)
	if !ok {
		return
	}
	v, err := h.Versions.Create(r.Context(), req.CreateRequest, actorOrDefault(r, req.Actor))
	if err != nil {
		writeDomainError(w, err, "template not found")
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// TransitionVersion handles POST /api/v1/versions/{id}/transition
func (h *Handlers) TransitionVersion(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.TransitionRequest](w, r)
	if !ok {
		return
	}
	if req.To == "" {
		writeError(w, http.StatusBadRequest, "to is required")
		return
	}
	req.Actor = actorOrDefault(r, req.Actor)
	v, err := h.Versions.Transition(r.Context(), urlParam(r, "id"), req)
	if err != nil {
		writeDomainError(w, err, "version not found")
		return
	}
	writeJSON(w, http.StatusOK, v)
}
