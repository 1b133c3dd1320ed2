/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client IP from proxy headers
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for dashboards

ROUTE GROUPS:
  /api/vessels/*       Fleet reference data
  /api/suppliers/*     Supplier reference data
  /api/lots/*          Purchase lots
  /api/consumption/*   Consumption records
  /api/allocations     Ledger rows
  /api/allocation/*    Engine and recovery triggers
  /api/consistency     Verifier report
  /api/exceptions      Detector findings
  /api/summary/*       Monthly aggregates
  /api/scenarios/*     Demo scenarios

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
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Fleet reference data
		r.Route("/vessels", func(r chi.Router) {
			r.Get("/", h.ListVessels)
			r.Post("/", h.CreateVessel)
		})
		r.Route("/suppliers", func(r chi.Router) {
			r.Get("/", h.ListSuppliers)
			r.Post("/", h.CreateSupplier)
		})

		// Source records
		r.Route("/lots", func(r chi.Router) {
			r.Get("/", h.ListLots)
			r.Post("/", h.CreateLot)
			r.Get("/{id}", h.GetLot)
		})
		r.Route("/consumption", func(r chi.Router) {
			r.Get("/", h.ListConsumption)
			r.Post("/", h.CreateConsumption)
			r.Get("/unresolved", h.ListUnresolvedConsumption)
			r.Get("/{id}", h.GetConsumption)
		})

		// Ledger
		r.Get("/allocations", h.ListAllocations)
		r.Route("/allocation", func(r chi.Router) {
			r.Post("/run", h.RunAllocation)
			r.Post("/rebuild", h.RebuildLedger)
			r.Post("/repair", h.RepairLots)
		})

		// Audit
		r.Get("/consistency", h.VerifyConsistency)
		r.Get("/exceptions", h.DetectExceptions)
		r.Get("/summary/{month}", h.MonthlySummary)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
