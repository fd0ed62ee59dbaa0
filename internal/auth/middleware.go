package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/civic-requests/internal/domain"
	"github.com/spec-kit/civic-requests/internal/repository"
	apperrors "github.com/spec-kit/civic-requests/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	SubjectType domain.SubjectType
	SubjectID   string
	Role        *domain.StaffRole
	Citizen     *domain.Citizen
}

// Actor converts the principal into an audit actor.
func (p *Principal) Actor() domain.Actor {
	return domain.Actor{Type: p.SubjectType, ID: p.SubjectID}
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens   *TokenManager
	citizens repository.CitizenRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, citizens repository.CitizenRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, citizens: citizens}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	if c.Get("Authorization") == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}
	return m.Attach(c)
}

// Attach loads the principal when a bearer token is present and passes
// anonymous callers through.
func (m *AuthMiddleware) Attach(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return c.Next()
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	principal := &Principal{SubjectType: claims.Subject, SubjectID: claims.SubjectID, Role: claims.Role}

	switch claims.Subject {
	case domain.SubjectTypeCitizen:
		citizen, err := m.citizens.GetByID(c.UserContext(), claims.SubjectID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewUnauthorized("citizen not found")
			}
			return apperrors.MapError(err)
		}
		principal.Citizen = citizen
	case domain.SubjectTypeStaff:
		if claims.Role == nil {
			return apperrors.NewUnauthorized("staff token without role")
		}
	case domain.SubjectTypeAgent:
	default:
		return apperrors.NewUnauthorized("unknown subject")
	}

	c.Locals(principalKey, principal)
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}

// ActorFromContext returns the caller as an audit actor, or fallback for
// anonymous calls.
func ActorFromContext(c *fiber.Ctx, fallback domain.Actor) domain.Actor {
	if principal, ok := PrincipalFromContext(c); ok {
		return principal.Actor()
	}
	return fallback
}
