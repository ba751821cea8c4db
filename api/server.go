/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer connecting URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the platform frontends

ROUTE GROUPS:
  /api/tenants/{tenantID}/users/{userID}/*   Balances and TOIL
  /api/calendar/*                            Working-day queries
  /api/leave/*                               Leave-request validation
  /api/admin/*                               Batch job triggers
  /api/healthz                               Liveness probe

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/leaved: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/healthz", h.Healthz)

		r.Route("/tenants/{tenantID}/users/{userID}", func(r chi.Router) {
			r.Get("/balance", h.GetBalance)
			r.Post("/carryover", h.SetCarryover)
			r.Post("/carryover/run", h.RunUserCarryover)

			r.Route("/toil", func(r chi.Router) {
				r.Post("/accruals", h.AccrueTOIL)
				r.Get("/accruals", h.ListTOILAccruals)
				r.Get("/balance", h.GetTOILBalance)
			})
		})

		r.Route("/calendar", func(r chi.Router) {
			r.Get("/working-days", h.WorkingDays)
		})

		r.Route("/leave", func(r chi.Router) {
			r.Post("/validate", h.ValidateLeave)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/carryover/run", h.RunCarryover)
			r.Post("/toil/expire", h.ExpireTOIL)
		})
	})

	return r
}
