package settlement

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes attaches the settlement endpoints. Role enforcement happens in
// the service layer; the router only requires an authenticated identity.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/deliveries", func(r chi.Router) {
		r.Get("/", h.ListDeliveries)
		r.Post("/", h.AddFarmerToLorry)
		r.Get("/{id}", h.GetDelivery)
		r.Patch("/{id}", h.UpdateDelivery)
		r.Delete("/{id}", h.DeleteDelivery)
		r.Put("/{id}/quality", h.SetQualityDeduction)
		r.Put("/{id}/pricing", h.SetPricing)
		r.Get("/{id}/report", h.GetReport)
	})
	// Lorry submit/process live here rather than in the lorries module:
	// they drive the delivery state machine.
	r.Post("/lorries/process", h.ProcessLorries)
	r.Post("/lorries/{id}/submit", h.SubmitLorry)
	r.Post("/lorries/{id}/process", h.ProcessLorry)
}
