package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-requests/internal/domain"
	"github.com/spec-kit/civic-requests/internal/service"
)

// AnalyticsHandler exposes reporting views.
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
}

// NewAnalyticsHandler constructs handler.
func NewAnalyticsHandler(analytics *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// KPIs GET /analytics/kpis.
func (h *AnalyticsHandler) KPIs(c *fiber.Ctx) error {
	kpis, err := h.analytics.KPIs(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": kpis})
}

// Stats GET /analytics/stats.
func (h *AnalyticsHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.analytics.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

// Heatmap GET /analytics/heatmap?category=&priority=.
func (h *AnalyticsHandler) Heatmap(c *fiber.Ctx) error {
	var filter service.HeatmapFilter
	if v := c.Query("category"); v != "" {
		category := domain.Category(v)
		filter.Category = &category
	}
	if v := c.Query("priority"); v != "" {
		priority := domain.Priority(v)
		filter.Priority = &priority
	}
	heat, err := h.analytics.Heatmap(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": heat})
}

// Agents GET /analytics/agents.
func (h *AnalyticsHandler) Agents(c *fiber.Ctx) error {
	rows, err := h.analytics.Agents(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rows})
}

// Timeline GET /analytics/timeline?days=7.
func (h *AnalyticsHandler) Timeline(c *fiber.Ctx) error {
	points, err := h.analytics.Timeline(c.UserContext(), c.QueryInt("days", 7))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": points})
}

// Zones GET /analytics/zones.
func (h *AnalyticsHandler) Zones(c *fiber.Ctx) error {
	rows, err := h.analytics.Zones(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rows})
}

// Cohorts GET /analytics/cohorts?weeks=8.
func (h *AnalyticsHandler) Cohorts(c *fiber.Ctx) error {
	cohorts, err := h.analytics.Cohorts(c.UserContext(), c.QueryInt("weeks", 8))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": cohorts})
}
