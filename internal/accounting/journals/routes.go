package journals

import "github.com/go-chi/chi/v5"

// MountRoutes registers journal endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/journals", h.List)
	r.Post("/journals", h.Create)
	r.Get("/journals/{id}", h.Get)
	r.Put("/journals/{id}", h.Update)
	r.Post("/journals/{id}/lines", h.AppendLines)
	r.Post("/journals/{id}/post", h.Post)
	r.Post("/journals/{id}/discard", h.Discard)
	r.Post("/journals/{id}/reverse", h.Reverse)
}
