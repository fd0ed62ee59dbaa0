package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-requests/internal/api/dto"
	"github.com/spec-kit/civic-requests/internal/auth"
	"github.com/spec-kit/civic-requests/internal/domain"
	"github.com/spec-kit/civic-requests/internal/service"
	"github.com/spec-kit/civic-requests/internal/workflow"
	apperrors "github.com/spec-kit/civic-requests/pkg/util/errorutil"
)

// RequestsHandler serves the service request endpoints.
type RequestsHandler struct {
	requests *service.RequestService
	sla      *service.SLAService
}

// NewRequestsHandler constructs handler.
func NewRequestsHandler(requests *service.RequestService, sla *service.SLAService) *RequestsHandler {
	return &RequestsHandler{requests: requests, sla: sla}
}

var anonymousActor = domain.Actor{Type: domain.SubjectTypeCitizen, ID: domain.AnonymousCitizen}

// Create POST /requests.
func (h *RequestsHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateRequestRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Category == "" {
		return apperrors.NewValidationError("category required", nil)
	}
	citizenID := req.CitizenID
	if principal, ok := auth.PrincipalFromContext(c); ok && principal.SubjectType == domain.SubjectTypeCitizen {
		citizenID = principal.SubjectID
	}
	created, err := h.requests.Create(c.UserContext(), service.CreateRequestInput{
		CitizenID:   citizenID,
		Category:    req.Category,
		SubCategory: req.SubCategory,
		Description: req.Description,
		Priority:    req.Priority,
		Location:    req.Location,
		Evidence:    req.Evidence,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewRequestResponse(created)})
}

// List GET /requests.
func (h *RequestsHandler) List(c *fiber.Ctx) error {
	filter, page, pageSize, err := parseRequestQuery(c)
	if err != nil {
		return err
	}
	if principal, ok := auth.PrincipalFromContext(c); ok && principal.SubjectType == domain.SubjectTypeCitizen {
		own := principal.SubjectID
		filter.CitizenID = &own
	}
	items, total, err := h.requests.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": dto.NewRequestResponses(items),
		"meta": dto.PageMeta{Total: total, Page: page, PageSize: pageSize},
	})
}

// Get GET /requests/:id.
func (h *RequestsHandler) Get(c *fiber.Ctx) error {
	req, err := h.requests.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if err := ensureOwner(c, req); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRequestResponse(req)})
}

// History GET /requests/:id/history.
func (h *RequestsHandler) History(c *fiber.Ctx) error {
	req, err := h.requests.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if err := ensureOwner(c, req); err != nil {
		return err
	}
	trail, err := h.requests.History(c.UserContext(), req.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHistoryResponses(trail)})
}

// AddComment POST /requests/:id/comments.
func (h *RequestsHandler) AddComment(c *fiber.Ctx) error {
	var body dto.CommentRequest
	if err := parseBody(c, &body); err != nil {
		return err
	}
	req, err := h.requests.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if err := ensureOwner(c, req); err != nil {
		return err
	}
	comment, err := h.requests.AddComment(c.UserContext(), req.ID, body.Text, auth.ActorFromContext(c, anonymousActor))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewCommentResponse(*comment)})
}

// Comments GET /requests/:id/comments.
func (h *RequestsHandler) Comments(c *fiber.Ctx) error {
	req, err := h.requests.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if err := ensureOwner(c, req); err != nil {
		return err
	}
	comments, err := h.requests.Comments(c.UserContext(), req.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewCommentResponses(comments)})
}

// SLAStatus GET /requests/:id/sla-status.
func (h *RequestsHandler) SLAStatus(c *fiber.Ctx) error {
	eval, err := h.sla.Evaluate(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": eval})
}

// AtRisk GET /requests/sla/at-risk. ?fresh=true bypasses the cached sweep.
func (h *RequestsHandler) AtRisk(c *fiber.Ctx) error {
	fresh := false
	if v := parseBool(c.Query("fresh")); v != nil {
		fresh = *v
	}
	report, err := h.sla.AtRisk(c.UserContext(), fresh)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

// Transition PATCH /requests/:id/transition.
func (h *RequestsHandler) Transition(c *fiber.Ctx) error {
	var body dto.TransitionRequest
	if err := parseBody(c, &body); err != nil {
		return err
	}
	if body.Status == "" {
		return apperrors.NewValidationError("status required", nil)
	}
	req, err := h.requests.Transition(c.UserContext(), c.Params("id"), body.Status, auth.ActorFromContext(c, staffFallback))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRequestResponse(req)})
}

// Milestone PATCH /requests/:id/milestone.
func (h *RequestsHandler) Milestone(c *fiber.Ctx) error {
	var body dto.MilestoneRequest
	if err := parseBody(c, &body); err != nil {
		return err
	}
	req, err := h.requests.RecordMilestone(c.UserContext(), c.Params("id"), workflow.MilestoneInput{
		Type:     body.Type,
		Notes:    body.Notes,
		Evidence: body.Evidence,
	}, auth.ActorFromContext(c, fieldFallback))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRequestResponse(req)})
}

// Resolve POST /requests/:id/resolve.
func (h *RequestsHandler) Resolve(c *fiber.Ctx) error {
	var body dto.ResolveRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &body); err != nil {
			return err
		}
	}
	req, err := h.requests.Resolve(c.UserContext(), c.Params("id"), body.Notes, body.Evidence, auth.ActorFromContext(c, fieldFallback))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRequestResponse(req)})
}

// Rate POST /requests/:id/rating.
func (h *RequestsHandler) Rate(c *fiber.Ctx) error {
	var body dto.RatingRequest
	if err := parseBody(c, &body); err != nil {
		return err
	}
	current, err := h.requests.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if err := ensureOwner(c, current); err != nil {
		return err
	}
	req, err := h.requests.SubmitRating(c.UserContext(), current.ID, workflow.RatingInput{
		Stars:         body.Stars,
		Comment:       body.Comment,
		Dispute:       body.Dispute,
		DisputeReason: body.DisputeReason,
	}, auth.ActorFromContext(c, anonymousActor))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRequestResponse(req)})
}

// Priority PATCH /requests/:id/priority.
func (h *RequestsHandler) Priority(c *fiber.Ctx) error {
	var body dto.PriorityRequest
	if err := parseBody(c, &body); err != nil {
		return err
	}
	req, err := h.requests.OverridePriority(c.UserContext(), c.Params("id"), body.Priority, body.Reason, auth.ActorFromContext(c, staffFallback))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRequestResponse(req)})
}

// Escalate POST /requests/:id/escalate.
func (h *RequestsHandler) Escalate(c *fiber.Ctx) error {
	var body dto.EscalateRequest
	if err := parseBody(c, &body); err != nil {
		return err
	}
	req, err := h.requests.Escalate(c.UserContext(), c.Params("id"), body.Reason, auth.ActorFromContext(c, staffFallback))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRequestResponse(req)})
}

var (
	staffFallback = domain.Actor{Type: domain.SubjectTypeStaff}
	fieldFallback = domain.Actor{Type: domain.SubjectTypeAgent}
)

// ensureOwner keeps citizens to their own requests. Staff, agents and
// anonymous callers are not restricted here; route guards handle them.
func ensureOwner(c *fiber.Ctx, req *domain.ServiceRequest) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.SubjectType != domain.SubjectTypeCitizen {
		return nil
	}
	if req.CitizenID != principal.SubjectID {
		return apperrors.NewForbidden("request belongs to another citizen")
	}
	return nil
}

func parseRequestQuery(c *fiber.Ctx) (service.RequestListFilter, int, int, error) {
	limit, offset, page, pageSize := pagination(c)
	filter := service.RequestListFilter{
		Statuses:   parseList[domain.RequestStatus](c.Query("status")),
		Categories: parseList[domain.Category](c.Query("category")),
		Priorities: parseList[domain.Priority](c.Query("priority")),
		ZoneID:     optional(c.Query("zone_id")),
		AgentID:    optional(c.Query("agent_id")),
		CitizenID:  optional(c.Query("citizen_id")),
		Limit:      limit,
		Offset:     offset,
	}
	var err error
	if filter.CreatedFrom, err = parseTime("created_from", c.Query("created_from")); err != nil {
		return filter, 0, 0, err
	}
	if filter.CreatedTo, err = parseTime("created_to", c.Query("created_to")); err != nil {
		return filter, 0, 0, err
	}
	return filter, page, pageSize, nil
}
