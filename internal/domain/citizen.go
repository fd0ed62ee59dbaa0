package domain

import "time"

// VerificationState represents whether a citizen confirmed their contact.
type VerificationState string

const (
	VerificationUnverified VerificationState = "unverified"
	VerificationVerified   VerificationState = "verified"
)

// Citizen is the domain model for residents who submit requests.
type Citizen struct {
	ID                string
	FullName          string
	Email             string
	Phone             string
	PreferredContact  string
	AddressZoneID     string
	PasswordHash      string
	VerificationState VerificationState
	VerifiedAt        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
