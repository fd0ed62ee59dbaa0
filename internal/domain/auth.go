package domain

import "time"

// SubjectType differentiates citizen, staff and field agent tokens.
type SubjectType string

const (
	SubjectTypeCitizen SubjectType = "CITIZEN"
	SubjectTypeStaff   SubjectType = "STAFF"
	SubjectTypeAgent   SubjectType = "AGENT"
	SubjectTypeSystem  SubjectType = "SYSTEM"
)

// StaffRole enumerates municipal operator roles.
type StaffRole string

const (
	StaffRoleDispatcher StaffRole = "DISPATCHER"
	StaffRoleSupervisor StaffRole = "SUPERVISOR"
	StaffRoleAdmin      StaffRole = "ADMIN"
)

// Token represents issued authentication token metadata.
type Token struct {
	ID        string
	SubjectID string
	Subject   SubjectType
	Role      *StaffRole
	ExpiresAt time.Time
	IssuedAt  time.Time
}
