package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-requests/internal/api/dto"
	"github.com/spec-kit/civic-requests/internal/auth"
	"github.com/spec-kit/civic-requests/internal/domain"
	"github.com/spec-kit/civic-requests/internal/service"
	apperrors "github.com/spec-kit/civic-requests/pkg/util/errorutil"
)

// CitizensHandler handles resident registration and profile endpoints.
type CitizensHandler struct {
	citizens *service.CitizenService
}

// NewCitizensHandler constructs handler.
func NewCitizensHandler(citizens *service.CitizenService) *CitizensHandler {
	return &CitizensHandler{citizens: citizens}
}

// Register POST /citizens.
func (h *CitizensHandler) Register(c *fiber.Ctx) error {
	var body dto.CitizenRegisterRequest
	if err := parseBody(c, &body); err != nil {
		return err
	}
	session, err := h.citizens.Register(c.UserContext(), service.RegisterInput{
		FullName:         body.FullName,
		Email:            body.Email,
		Phone:            body.Phone,
		PreferredContact: body.PreferredContact,
		AddressZoneID:    body.AddressZoneID,
		Password:         body.Password,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": authResponse(session)})
}

// Login POST /citizens/login.
func (h *CitizensHandler) Login(c *fiber.Ctx) error {
	var body dto.CitizenLoginRequest
	if err := parseBody(c, &body); err != nil {
		return err
	}
	if body.Email == "" || body.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}
	session, err := h.citizens.Login(c.UserContext(), body.Email, body.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": authResponse(session)})
}

// Verify POST /citizens/:id/verify.
func (h *CitizensHandler) Verify(c *fiber.Ctx) error {
	if err := ensureSelf(c, c.Params("id")); err != nil {
		return err
	}
	var body dto.VerifyRequest
	if err := parseBody(c, &body); err != nil {
		return err
	}
	citizen, err := h.citizens.Verify(c.UserContext(), c.Params("id"), body.Code)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewCitizenResponse(citizen)})
}

// Get GET /citizens/:id.
func (h *CitizensHandler) Get(c *fiber.Ctx) error {
	if err := ensureSelf(c, c.Params("id")); err != nil {
		return err
	}
	citizen, err := h.citizens.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewCitizenResponse(citizen)})
}

// List GET /citizens.
func (h *CitizensHandler) List(c *fiber.Ctx) error {
	limit, offset, page, pageSize := pagination(c)
	citizens, total, err := h.citizens.List(c.UserContext(), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": dto.NewCitizenResponses(citizens),
		"meta": dto.PageMeta{Total: total, Page: page, PageSize: pageSize},
	})
}

func ensureSelf(c *fiber.Ctx, citizenID string) error {
	principal, ok := auth.PrincipalFromContext(c)
	if ok && principal.SubjectType == domain.SubjectTypeCitizen && principal.SubjectID != citizenID {
		return apperrors.NewForbidden("citizens can only access their own profile")
	}
	return nil
}

func authResponse(session *service.Session) dto.AuthResponse {
	return dto.AuthResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		Citizen:   dto.NewCitizenResponse(session.Citizen),
	}
}
