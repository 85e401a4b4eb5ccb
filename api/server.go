/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/courses/*   Course catalog, pricing, groups, purchase
  /api/tiers/*     Price tier management
  /api/users/*     Balances, ledger history, deposits, grants
  /api/grants/*    Grant audit trail

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Course routes. "available" is registered before "{id}" so chi
		// does not treat it as a course ID.
		r.Route("/courses", func(r chi.Router) {
			r.Get("/", h.ListCourses)
			r.Post("/", h.CreateCourse)
			r.Get("/available", h.AvailableCourses)
			r.Get("/{id}", h.GetCourse)
			r.Get("/{id}/lessons", h.ListLessons)
			r.Post("/{id}/lessons", h.CreateLesson)
			r.Get("/{id}/prices", h.ListPrices)
			r.Post("/{id}/prices", h.CreatePrice)
			r.Get("/{id}/groups", h.ListGroups)
			r.Post("/{id}/groups", h.CreateGroup)
			r.Get("/{id}/groups/load", h.GroupLoads)
			r.Post("/{id}/pay", h.Purchase)
		})

		// Tier routes
		r.Route("/tiers", func(r chi.Router) {
			r.Get("/", h.ListTiers)
			r.Post("/", h.CreateTier)
		})

		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/ledger", h.GetLedger)
			r.Post("/{id}/deposits", h.Deposit)
			r.Get("/{id}/grants", h.ListGrants)
		})

		// Grant audit routes
		r.Route("/grants", func(r chi.Router) {
			r.Get("/{id}/reasons", h.ListReasons)
		})
	})

	return r
}
