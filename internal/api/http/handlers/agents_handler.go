package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-requests/internal/api/dto"
	"github.com/spec-kit/civic-requests/internal/auth"
	"github.com/spec-kit/civic-requests/internal/domain"
	"github.com/spec-kit/civic-requests/internal/service"
)

// AgentsHandler manages field agents and request assignment.
type AgentsHandler struct {
	agents     *service.AgentService
	assignment *service.AssignmentService
}

// NewAgentsHandler constructs handler.
func NewAgentsHandler(agents *service.AgentService, assignment *service.AssignmentService) *AgentsHandler {
	return &AgentsHandler{agents: agents, assignment: assignment}
}

// Create POST /agents.
func (h *AgentsHandler) Create(c *fiber.Ctx) error {
	var body dto.CreateAgentRequest
	if err := parseBody(c, &body); err != nil {
		return err
	}
	agent, err := h.agents.Create(c.UserContext(), service.AgentInput{
		Code:       body.Code,
		Name:       body.Name,
		Department: body.Department,
		Skills:     body.Skills,
		Coverage:   body.Coverage,
		Schedule:   body.Schedule,
		Active:     body.Active,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewAgentResponse(agent)})
}

// List GET /agents.
func (h *AgentsHandler) List(c *fiber.Ctx) error {
	limit, offset, _, _ := pagination(c)
	agents, err := h.agents.List(c.UserContext(), service.AgentListFilter{
		Active:     parseBool(c.Query("active")),
		ZoneID:     optional(c.Query("zone_id")),
		Skill:      optional(c.Query("skill")),
		Department: optional(c.Query("department")),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAgentResponses(agents)})
}

// Get GET /agents/:id.
func (h *AgentsHandler) Get(c *fiber.Ctx) error {
	agent, err := h.agents.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAgentResponse(agent)})
}

// Update PATCH /agents/:id.
func (h *AgentsHandler) Update(c *fiber.Ctx) error {
	var body dto.UpdateAgentRequest
	if err := parseBody(c, &body); err != nil {
		return err
	}
	agent, err := h.agents.Update(c.UserContext(), c.Params("id"), service.AgentPatch{
		Name:       body.Name,
		Department: body.Department,
		Skills:     body.Skills,
		Coverage:   body.Coverage,
		Schedule:   body.Schedule,
		Active:     body.Active,
	}, body.Version)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAgentResponse(agent)})
}

// Delete DELETE /agents/:id.
func (h *AgentsHandler) Delete(c *fiber.Ctx) error {
	if err := h.agents.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Tasks GET /agents/:id/tasks. ?include_done=true adds finished work.
func (h *AgentsHandler) Tasks(c *fiber.Ctx) error {
	includeDone := false
	if v := parseBool(c.Query("include_done")); v != nil {
		includeDone = *v
	}
	tasks, err := h.agents.Tasks(c.UserContext(), c.Params("id"), includeDone)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRequestResponses(tasks)})
}

// Assign POST /agents/assign-request/:request_id. With ?agent_id= the chosen
// agent is used, otherwise the best candidate is picked.
func (h *AgentsHandler) Assign(c *fiber.Ctx) error {
	requestID := c.Params("request_id")
	actor := auth.ActorFromContext(c, staffFallback)
	var (
		req *domain.ServiceRequest
		err error
	)
	if agentID := optional(c.Query("agent_id")); agentID != nil {
		req, err = h.assignment.AssignTo(c.UserContext(), requestID, *agentID, actor)
	} else {
		req, err = h.assignment.AutoAssign(c.UserContext(), requestID, actor)
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRequestResponse(req)})
}

// Unassign POST /agents/unassign-request/:request_id. The body is optional.
func (h *AgentsHandler) Unassign(c *fiber.Ctx) error {
	var body dto.UnassignRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &body); err != nil {
			return err
		}
	}
	req, err := h.assignment.Unassign(c.UserContext(), c.Params("request_id"), body.Reason, auth.ActorFromContext(c, staffFallback))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRequestResponse(req)})
}

// Candidates GET /agents/candidates/:request_id lists eligible agents in
// ranking order.
func (h *AgentsHandler) Candidates(c *fiber.Ctx) error {
	agents, err := h.assignment.Candidates(c.UserContext(), c.Params("request_id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAgentResponses(agents)})
}
