package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/visit-service/internal/api/http/handlers"
	"github.com/spec-kit/visit-service/internal/auth"
	"github.com/spec-kit/visit-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Visits         *handlers.VisitsHandler
	Documents      *handlers.DocumentsHandler
	Realtime       *handlers.RealtimeHandler
	AuthMiddleware fiber.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	health := app.Group("/health")
	health.Get("/live", cfg.Health.Live)
	health.Get("/ready", cfg.Health.Ready)
	health.Get("/metrics", cfg.Health.Metrics)

	authn := cfg.AuthMiddleware
	dispatchOnly := auth.RequireRole(domain.RoleAdmin, domain.RoleControlRoom)

	visits := app.Group("/visits", authn)
	visits.Post("/", cfg.Visits.CreateVisit)
	visits.Get("/", cfg.Visits.ListVisits)
	visits.Get("/:id", cfg.Visits.GetVisit)
	visits.Post("/:id/assign", cfg.Visits.Assign)
	visits.Post("/:id/transition", cfg.Visits.Transition)
	visits.Post("/:id/events", cfg.Visits.AppendEvent)
	visits.Get("/:id/timeline", cfg.Visits.Timeline)
	visits.Get("/:id/documents", cfg.Documents.ListForVisit)
	visits.Post("/:id/documents/:kind", cfg.Documents.Create)

	documents := app.Group("/documents/:kind/:id", authn)
	documents.Get("/", cfg.Documents.Get)
	documents.Patch("/", cfg.Documents.Edit)
	documents.Post("/sign", cfg.Documents.Sign)
	documents.Post("/distribute", cfg.Documents.Distribute)
	documents.Post("/advance", cfg.Documents.Advance)
	documents.Post("/regenerate-pdf", cfg.Documents.RegeneratePDF)

	app.Post("/internal/documents/:kind/:id/pdf", authn, dispatchOnly, cfg.Documents.AttachPDF)
	app.Get("/realtime/visits", authn, dispatchOnly, cfg.Realtime.Stream)
}
