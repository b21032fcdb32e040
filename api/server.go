/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind proxies
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Timeout:    Per-request deadline
  6. CORS:       Cross-origin requests for dashboards

ROUTE GROUPS:
  /api/stages/*         Stage snapshots, values, progress
  /api/progress/*       Progress reversal
  /api/scurve           Curve
  /api/scenarios/*      Demo scenarios
  /api/admin/*          Sweeps
  /healthz              Liveness

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures cross-cutting middleware.
type RouterOptions struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
	// Quiet disables request logging (tests).
	Quiet bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if !opts.Quiet {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Stage routes
		r.Route("/stages", func(r chi.Router) {
			r.Get("/", h.ListStages)
			r.Post("/import", h.ImportBudget)
			r.Put("/{id}", h.PutStage)
			r.Delete("/{id}", h.DeleteStage)
			r.Get("/{id}/monthly-values", h.GetMonthlyValues)
			r.Post("/{id}/recompute", h.RecomputeStage)
			r.Post("/{id}/progress", h.RecordProgress)
		})

		// Progress routes
		r.Route("/progress", func(r chi.Router) {
			r.Post("/{id}/reverse", h.ReverseProgress)
		})

		r.Get("/scurve", h.GetSCurve)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/sweep", h.TriggerSweep)
			r.Get("/sweeps", h.ListSweepRuns)
		})

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
