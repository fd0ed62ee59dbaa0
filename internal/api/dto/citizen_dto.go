package dto

import (
	"time"

	"github.com/spec-kit/civic-requests/internal/domain"
)

// CitizenRegisterRequest payload for new residents.
type CitizenRegisterRequest struct {
	FullName         string `json:"full_name"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	PreferredContact string `json:"preferred_contact"`
	AddressZoneID    string `json:"address_zone_id"`
	Password         string `json:"password"`
}

// CitizenLoginRequest payload for login.
type CitizenLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// VerifyRequest carries the one-time code.
type VerifyRequest struct {
	Code string `json:"code"`
}

// CitizenResponse is the public view of a citizen.
type CitizenResponse struct {
	ID                string                   `json:"id"`
	FullName          string                   `json:"full_name"`
	Email             string                   `json:"email"`
	Phone             string                   `json:"phone,omitempty"`
	PreferredContact  string                   `json:"preferred_contact"`
	AddressZoneID     string                   `json:"address_zone_id,omitempty"`
	VerificationState domain.VerificationState `json:"verification_state"`
	VerifiedAt        *time.Time               `json:"verified_at,omitempty"`
	CreatedAt         time.Time                `json:"created_at"`
}

// NewCitizenResponse maps a citizen without credentials.
func NewCitizenResponse(citizen *domain.Citizen) CitizenResponse {
	return CitizenResponse{
		ID:                citizen.ID,
		FullName:          citizen.FullName,
		Email:             citizen.Email,
		Phone:             citizen.Phone,
		PreferredContact:  citizen.PreferredContact,
		AddressZoneID:     citizen.AddressZoneID,
		VerificationState: citizen.VerificationState,
		VerifiedAt:        citizen.VerifiedAt,
		CreatedAt:         citizen.CreatedAt,
	}
}

// NewCitizenResponses maps a slice of citizens.
func NewCitizenResponses(citizens []*domain.Citizen) []CitizenResponse {
	out := make([]CitizenResponse, 0, len(citizens))
	for _, citizen := range citizens {
		out = append(out, NewCitizenResponse(citizen))
	}
	return out
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	Citizen   CitizenResponse `json:"citizen"`
}
