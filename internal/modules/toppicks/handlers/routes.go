package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the top picks routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/top-picks", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/refresh", h.HandleRefresh)
		r.Get("/{period}", h.HandleGetPeriod)
	})
}
