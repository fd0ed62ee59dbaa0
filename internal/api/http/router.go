package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/civic-requests/internal/api/http/handlers"
	"github.com/spec-kit/civic-requests/internal/auth"
	"github.com/spec-kit/civic-requests/internal/domain"
	"github.com/spec-kit/civic-requests/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Citizens       *handlers.CitizensHandler
	Requests       *handlers.RequestsHandler
	Agents         *handlers.AgentsHandler
	Zones          *handlers.ZonesHandler
	Analytics      *handlers.AnalyticsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
	// EnforceAuth turns the staff and field guards on.
	EnforceAuth bool
}

// RegisterRoutes wires HTTP routes. Static segments are registered before
// parameterised ones so /requests/sla/at-risk and /agents/zones win.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	staff := auth.RequireStaff(cfg.EnforceAuth)
	supervisor := auth.RequireStaff(cfg.EnforceAuth, domain.StaffRoleSupervisor)
	field := auth.RequireFieldAccess(cfg.EnforceAuth)

	citizens := app.Group("/citizens", cfg.AuthMiddleware.Attach)
	citizens.Post("/", cfg.Citizens.Register)
	citizens.Get("/", staff, cfg.Citizens.List)
	citizens.Post("/login", cfg.Citizens.Login)
	citizens.Post("/:id/verify", cfg.Citizens.Verify)
	citizens.Get("/:id", cfg.Citizens.Get)

	requests := app.Group("/requests", cfg.AuthMiddleware.Attach)
	requests.Post("/", cfg.Requests.Create)
	requests.Get("/", cfg.Requests.List)
	requests.Get("/sla/at-risk", staff, cfg.Requests.AtRisk)
	requests.Get("/:id", cfg.Requests.Get)
	requests.Get("/:id/sla-status", cfg.Requests.SLAStatus)
	requests.Get("/:id/history", cfg.Requests.History)
	requests.Get("/:id/comments", cfg.Requests.Comments)
	requests.Post("/:id/comments", cfg.Requests.AddComment)
	requests.Patch("/:id/transition", staff, cfg.Requests.Transition)
	requests.Patch("/:id/milestone", field, cfg.Requests.Milestone)
	requests.Post("/:id/resolve", field, cfg.Requests.Resolve)
	requests.Post("/:id/rating", cfg.Requests.Rate)
	requests.Patch("/:id/priority", supervisor, cfg.Requests.Priority)
	requests.Post("/:id/escalate", staff, cfg.Requests.Escalate)

	agents := app.Group("/agents", cfg.AuthMiddleware.Attach)
	agents.Get("/zones", staff, cfg.Zones.List)
	agents.Post("/zones", supervisor, cfg.Zones.Create)
	agents.Get("/zones/:zone_id", staff, cfg.Zones.Get)
	agents.Put("/zones/:zone_id", supervisor, cfg.Zones.Update)
	agents.Delete("/zones/:zone_id", supervisor, cfg.Zones.Delete)
	agents.Post("/assign-request/:request_id", staff, cfg.Agents.Assign)
	agents.Post("/unassign-request/:request_id", staff, cfg.Agents.Unassign)
	agents.Get("/candidates/:request_id", staff, cfg.Agents.Candidates)
	agents.Post("/", supervisor, cfg.Agents.Create)
	agents.Get("/", staff, cfg.Agents.List)
	agents.Get("/:id", field, cfg.Agents.Get)
	agents.Patch("/:id", supervisor, cfg.Agents.Update)
	agents.Delete("/:id", supervisor, cfg.Agents.Delete)
	agents.Get("/:id/tasks", field, cfg.Agents.Tasks)

	analytics := app.Group("/analytics", cfg.AuthMiddleware.Attach, staff)
	analytics.Get("/kpis", cfg.Analytics.KPIs)
	analytics.Get("/stats", cfg.Analytics.Stats)
	analytics.Get("/heatmap", cfg.Analytics.Heatmap)
	analytics.Get("/agents", cfg.Analytics.Agents)
	analytics.Get("/timeline", cfg.Analytics.Timeline)
	analytics.Get("/zones", cfg.Analytics.Zones)
	analytics.Get("/cohorts", cfg.Analytics.Cohorts)
}
