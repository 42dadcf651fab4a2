package devserver

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	// Public routes (no auth required)
	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(h.token))
		r.Use(h.Faults.Middleware)

		r.Route("/shops/{shop}", func(r chi.Router) {
			r.Get("/orders", h.Orders)
			r.Get("/tickets", h.Tickets)
			r.Patch("/tickets", h.PatchTickets)
		})

		r.Route("/orgs/{org}", func(r chi.Router) {
			r.Get("/registrations", h.Registrations)
			r.Get("/groups", h.Groups)
		})
	})

	return r
}
