package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-requests/internal/domain"
	apperrors "github.com/spec-kit/civic-requests/pkg/util/errorutil"
)

// RequireStaff ensures the caller is staff with one of the allowed roles.
// With enforce unset it lets every caller through.
func RequireStaff(enforce bool, allowed ...domain.StaffRole) fiber.Handler {
	allowedSet := make(map[domain.StaffRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		if !enforce {
			return c.Next()
		}
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if principal.SubjectType != domain.SubjectTypeStaff || principal.Role == nil {
			return apperrors.NewForbidden("staff role required")
		}
		if len(allowedSet) == 0 || *principal.Role == domain.StaffRoleAdmin {
			return c.Next()
		}
		if _, exists := allowedSet[*principal.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// RequireFieldAccess admits staff and field agents.
func RequireFieldAccess(enforce bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !enforce {
			return c.Next()
		}
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if principal.SubjectType != domain.SubjectTypeStaff && principal.SubjectType != domain.SubjectTypeAgent {
			return apperrors.NewForbidden("staff or agent required")
		}
		return c.Next()
	}
}

// RequireAnyRole ensures caller is authenticated.
func RequireAnyRole() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}

// ParseRole validates a staff role name.
func ParseRole(value string) (domain.StaffRole, error) {
	role := domain.StaffRole(value)
	switch role {
	case domain.StaffRoleDispatcher, domain.StaffRoleSupervisor, domain.StaffRoleAdmin:
		return role, nil
	}
	return "", apperrors.NewValidationError("unknown staff role", map[string]any{"role": value})
}
