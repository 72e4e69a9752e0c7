package http

import (
	"net/http"

	"github.com/fleetgate/fleetgate/internal/domain/instance"
	"github.com/fleetgate/fleetgate/internal/service"
)

// ListInstances handles GET /api/v1/instances
// An optional version_id query parameter narrows the listing to one version.
func (h *Handlers) ListInstances(w http.ResponseWriter, r *http.Request) {
	instances, err := h.Instances.List(r.Context(), r.URL.Query().Get("version_id"))
	if err != nil {
		writeDomainError(w, err, "instances not found")
		return
	}
	if instances == nil {
		instances = []instance.AgentInstance{}
	}
	writeJSON(w, http.StatusOK, instances)
}

// GetInstance handles GET /api/v1/instances/{id}
func (h *Handlers) GetInstance(w http.ResponseWriter, r *http.Request) {
	inst, err := h.Instances.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "instance not found")
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

type createInstanceRequest struct {
	instance.CreateRequest
	Actor string `json:"actor,omitempty"`
}

// CreateInstance handles POST /api/v1/instances
func (h *Handlers) CreateInstance(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[createInstanceRequest](w, r)
	if !ok {
		return
	}
	inst, err := h.Instances.Create(r.Context(), req.CreateRequest, actorOrDefault(r, req.Actor))
	if err != nil {
		writeDomainError(w, err, "referenced version or envelope not found")
		return
	}
	writeJSON(w, http.StatusCreated, inst)
}

// TransitionInstance handles POST /api/v1/instances/{id}/transition
func (h *Handlers) TransitionInstance(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.InstanceTransitionRequest](w, r)
	if !ok {
		return
	}
	if req.To == "" {
		writeError(w, http.StatusBadRequest, "to is required")
		return
	}
	req.Actor = actorOrDefault(r, req.Actor)
	inst, err := h.Instances.Transition(r.Context(), urlParam(r, "id"), req)
	if err != nil {
		writeDomainError(w, err, "instance not found")
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// Heartbeat handles POST /api/v1/instances/{id}/heartbeat
func (h *Handlers) Heartbeat(w http.ResponseWriter, r *http.Request) {
	if err := h.Instances.Heartbeat(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "instance not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
