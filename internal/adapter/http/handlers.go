package http

import (
	"net/http"

	"github.com/fleetgate/fleetgate/internal/adapter/ws"
	"github.com/fleetgate/fleetgate/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Templates *service.TemplateService
	Versions  *service.VersionService
	Instances *service.InstanceService
	Envelopes *service.EnvelopeService
	Policies  *service.PolicyService
	Approvals *service.ApprovalService
	Evals     *service.EvaluationService
	History   *service.HistoryService
	Hub       *ws.Hub
}

// Health handles GET /healthz
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
