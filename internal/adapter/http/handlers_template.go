package http

import (
	"net/http"

	"github.com/fleetgate/fleetgate/internal/domain/template"
)

// ListTemplates handles GET /api/v1/templates
func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("include_archived") == "true"
	templates, err := h.Templates.List(r.Context(), includeArchived)
	if err != nil {
		writeDomainError(w, err, "templates not found")
		return
	}
	if templates == nil {
		templates = []template.AgentTemplate{}
	}
	writeJSON(w, http.StatusOK, templates)
}

// GetTemplate handles GET /api/v1/templates/{id}
func (h *Handlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.Templates.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "template not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type createTemplateRequest struct {
	template.CreateRequest
	Actor string `json:"actor,omitempty"`
}

// CreateTemplate handles POST /api/v1/templates
func (h *Handlers) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[createTemplateRequest](w, r)
	if !ok {
		return
	}
	t, err := h.Templates.Create(r.Context(), req.CreateRequest, actorOrDefault(r, req.Actor))
	if err != nil {
		writeDomainError(w, err, "template creation failed")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

type archiveTemplateRequest struct {
	ExpectedVersion int    `json:"expected_version"`
	Actor           string `json:"actor,omitempty"`
}

// ArchiveTemplate handles POST /api/v1/templates/{id}/archive
func (h *Handlers) ArchiveTemplate(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[archiveTemplateRequest](w, r)
	if !ok {
		return
	}
	if err := h.Templates.Archive(r.Context(), urlParam(r, "id"), req.ExpectedVersion, actorOrDefault(r, req.Actor)); err != nil {
		writeDomainError(w, err, "template not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
