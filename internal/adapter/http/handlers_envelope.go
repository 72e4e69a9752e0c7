package http

import (
	"net/http"

	"github.com/fleetgate/fleetgate/internal/domain/policy"
)

// ListEnvelopes handles GET /api/v1/envelopes
func (h *Handlers) ListEnvelopes(w http.ResponseWriter, r *http.Request) {
	envelopes, err := h.Envelopes.List(r.Context())
	if err != nil {
		writeDomainError(w, err, "envelopes not found")
		return
	}
	if envelopes == nil {
		envelopes = []policy.Envelope{}
	}
	writeJSON(w, http.StatusOK, envelopes)
}

// GetEnvelope handles GET /api/v1/envelopes/{id}
func (h *Handlers) GetEnvelope(w http.ResponseWriter, r *http.Request) {
	env, err := h.Envelopes.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "envelope not found")
		return
	}
	writeJSON(w, http.StatusOK, env)
}

type createEnvelopeRequest struct {
	policy.Envelope
	Actor string `json:"actor,omitempty"`
}

// CreateEnvelope handles POST /api/v1/envelopes
func (h *Handlers) CreateEnvelope(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[createEnvelopeRequest](w, r)
	if !ok {
		return
	}
	env, err := h.Envelopes.Create(r.Context(), &req.Envelope, actorOrDefault(r, req.Actor))
	if err != nil {
		writeDomainError(w, err, "envelope creation failed")
		return
	}
	writeJSON(w, http.StatusCreated, env)
}

type updateEnvelopeRequest struct {
	policy.Envelope
	ExpectedVersion int    `json:"expected_version"`
	Actor           string `json:"actor,omitempty"`
}

// UpdateEnvelope handles PUT /api/v1/envelopes/{id}
// Raising the autonomy tier is gated behind an approval record.
func (h *Handlers) UpdateEnvelope(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[updateEnvelopeRequest](w, r)
	if !ok {
		return
	}
	req.Envelope.ID = urlParam(r, "id")
	env, err := h.Envelopes.Update(r.Context(), &req.Envelope, req.ExpectedVersion, actorOrDefault(r, req.Actor))
	if err != nil {
		writeDomainError(w, err, "envelope not found")
		return
	}
	writeJSON(w, http.StatusOK, env)
}
