package http

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/healthz", h.Health)

	if h.Hub != nil {
		r.Get("/ws", h.Hub.HandleWS)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Templates
		r.Get("/templates", h.ListTemplates)
		r.Post("/templates", h.CreateTemplate)
		r.Get("/templates/{id}", h.GetTemplate)
		r.Post("/templates/{id}/archive", h.ArchiveTemplate)
		r.Get("/templates/{id}/versions", h.ListVersions)

		// Versions
		r.Post("/versions", h.CreateVersion)
		r.Get("/versions/{id}", h.GetVersion)
		r.Post("/versions/{id}/transition", h.TransitionVersion)
		r.Get("/versions/{id}/runs", h.ListRuns)

		// Instances
		r.Get("/instances", h.ListInstances)
		r.Post("/instances", h.CreateInstance)
		r.Get("/instances/{id}", h.GetInstance)
		r.Post("/instances/{id}/transition", h.TransitionInstance)
		r.Post("/instances/{id}/heartbeat", h.Heartbeat)

		// Policy
		r.Post("/instances/{id}/authorize", h.AuthorizeTool)
		r.Get("/instances/{id}/usage", h.GetUsage)
		r.Post("/instances/{id}/usage", h.RecordUsage)

		// Policy envelopes
		r.Get("/envelopes", h.ListEnvelopes)
		r.Post("/envelopes", h.CreateEnvelope)
		r.Get("/envelopes/{id}", h.GetEnvelope)
		r.Put("/envelopes/{id}", h.UpdateEnvelope)

		// Evaluation
		r.Get("/eval/suites", h.ListSuites)
		r.Post("/eval/suites", h.CreateSuite)
		r.Get("/eval/suites/{id}", h.GetSuite)
		r.Post("/eval/runs", h.StartRun)
		r.Get("/eval/runs/{id}", h.GetRun)
		r.Post("/eval/runs/{id}/cancel", h.CancelRun)

		// Approvals
		r.Get("/approvals", h.ListApprovals)
		r.Get("/approvals/{id}", h.GetApproval)
		r.Post("/approvals/{id}/decide", h.DecideApproval)
		r.Post("/approvals/{id}/cancel", h.CancelApproval)

		// Change history
		r.Get("/history/{kind}/{id}", h.GetHistory)
	})
}
