package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-requests/internal/api/dto"
	"github.com/spec-kit/civic-requests/internal/service"
)

// ZonesHandler manages service zones.
type ZonesHandler struct {
	zones *service.ZoneService
}

// NewZonesHandler constructs handler.
func NewZonesHandler(zones *service.ZoneService) *ZonesHandler {
	return &ZonesHandler{zones: zones}
}

// List GET /agents/zones.
func (h *ZonesHandler) List(c *fiber.Ctx) error {
	zones, err := h.zones.List(c.UserContext())
	if err != nil {
		return err
	}
	out := make([]dto.ZoneResponse, 0, len(zones))
	for _, zone := range zones {
		out = append(out, dto.NewZoneResponse(zone))
	}
	return c.JSON(fiber.Map{"data": out})
}

// Get GET /agents/zones/:zone_id.
func (h *ZonesHandler) Get(c *fiber.Ctx) error {
	zone, err := h.zones.Get(c.UserContext(), c.Params("zone_id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewZoneResponse(zone)})
}

// Create POST /agents/zones.
func (h *ZonesHandler) Create(c *fiber.Ctx) error {
	var body dto.ZoneRequest
	if err := parseBody(c, &body); err != nil {
		return err
	}
	zone, err := h.zones.Create(c.UserContext(), service.ZoneInput{ZoneID: body.ZoneID, Name: body.Name, Boundary: body.Boundary})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewZoneResponse(zone)})
}

// Update PUT /agents/zones/:zone_id.
func (h *ZonesHandler) Update(c *fiber.Ctx) error {
	var body dto.ZoneRequest
	if err := parseBody(c, &body); err != nil {
		return err
	}
	zone, err := h.zones.Update(c.UserContext(), c.Params("zone_id"), service.ZoneInput{Name: body.Name, Boundary: body.Boundary})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewZoneResponse(zone)})
}

// Delete DELETE /agents/zones/:zone_id.
func (h *ZonesHandler) Delete(c *fiber.Ctx) error {
	if err := h.zones.Delete(c.UserContext(), c.Params("zone_id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
