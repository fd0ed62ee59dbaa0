package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-requests/internal/auth"
	"github.com/spec-kit/civic-requests/internal/config"
	"github.com/spec-kit/civic-requests/internal/domain"
	"github.com/spec-kit/civic-requests/internal/repository"
	apperrors "github.com/spec-kit/civic-requests/pkg/util/errorutil"
)

// CitizenService coordinates registration, login and contact verification.
type CitizenService struct {
	citizens   repository.CitizenRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
	logger     *zap.Logger
	now        func() time.Time
}

// CitizenDependencies encapsulates collaborators for the citizen service.
type CitizenDependencies struct {
	CitizenRepo repository.CitizenRepository
	Logger      *zap.Logger
	Clock       func() time.Time
}

// RegisterInput describes a new resident account.
type RegisterInput struct {
	FullName         string
	Email            string
	Phone            string
	PreferredContact string
	AddressZoneID    string
	Password         string
}

// Session is an issued access token.
type Session struct {
	Citizen   *domain.Citizen
	Token     string
	ExpiresAt time.Time
}

// NewCitizenService builds the service.
func NewCitizenService(cfg config.AuthConfig, deps CitizenDependencies) *CitizenService {
	return &CitizenService{
		citizens:   deps.CitizenRepo,
		tokenMgr:   auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		bcryptCost: cfg.BcryptCost,
		logger:     loggerOrNop(deps.Logger),
		now:        clockOrNow(deps.Clock),
	}
}

// TokenManager exposes the token manager for middleware wiring.
func (s *CitizenService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

// Register creates an unverified citizen and logs them in.
func (s *CitizenService) Register(ctx context.Context, input RegisterInput) (*Session, error) {
	name := strings.TrimSpace(input.FullName)
	if name == "" {
		return nil, apperrors.NewValidationError("full_name is required", nil)
	}
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	contact := strings.TrimSpace(input.PreferredContact)
	if contact == "" {
		contact = "email"
	}
	if contact != "email" && contact != "phone" {
		return nil, apperrors.NewValidationError("preferred_contact must be email or phone", map[string]any{"preferred_contact": contact})
	}
	if contact == "phone" && strings.TrimSpace(input.Phone) == "" {
		return nil, apperrors.NewValidationError("phone is required for phone contact", nil)
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	citizen := &domain.Citizen{
		ID:                uuid.NewString(),
		FullName:          name,
		Email:             email,
		Phone:             strings.TrimSpace(input.Phone),
		PreferredContact:  contact,
		AddressZoneID:     strings.TrimSpace(input.AddressZoneID),
		PasswordHash:      hash,
		VerificationState: domain.VerificationUnverified,
	}
	if err := s.citizens.Create(ctx, citizen); err != nil {
		return nil, err
	}
	s.logger.Info("citizen registered", zap.String("citizen_id", citizen.ID))
	return s.issue(citizen)
}

// Login authenticates a citizen by email and password.
func (s *CitizenService) Login(ctx context.Context, email, password string) (*Session, error) {
	citizen, err := s.citizens.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, err
	}
	if err := auth.ComparePassword(citizen.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}
	return s.issue(citizen)
}

// Verify confirms the citizen's contact. The code check is a stub that
// accepts any six digits.
func (s *CitizenService) Verify(ctx context.Context, id, code string) (*domain.Citizen, error) {
	if !isOTP(code) {
		return nil, apperrors.NewValidationError("verification code must be 6 digits", nil)
	}
	citizen, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if citizen.VerificationState == domain.VerificationVerified {
		return citizen, nil
	}
	now := s.now()
	citizen.VerificationState = domain.VerificationVerified
	citizen.VerifiedAt = &now
	if err := s.citizens.Update(ctx, citizen); err != nil {
		return nil, notFound(err, "citizen", "citizen_id", id)
	}
	return citizen, nil
}

// Get returns a citizen by id.
func (s *CitizenService) Get(ctx context.Context, id string) (*domain.Citizen, error) {
	citizen, err := s.citizens.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "citizen", "citizen_id", id)
	}
	return citizen, nil
}

// List returns a page of citizens in registration order.
func (s *CitizenService) List(ctx context.Context, limit, offset int) ([]*domain.Citizen, int, error) {
	return s.citizens.List(ctx, limit, offset)
}

func (s *CitizenService) issue(citizen *domain.Citizen) (*Session, error) {
	token, exp, err := s.tokenMgr.GenerateToken(citizen.ID, domain.SubjectTypeCitizen, nil)
	if err != nil {
		return nil, err
	}
	return &Session{Citizen: citizen, Token: token, ExpiresAt: exp}, nil
}

func normalizeEmail(value string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(value))
	if err != nil || addr.Name != "" {
		return "", apperrors.NewValidationError("invalid email", map[string]any{"email": value})
	}
	return strings.ToLower(addr.Address), nil
}

func isOTP(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
