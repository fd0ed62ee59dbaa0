package events

import (
	"time"

	"github.com/spec-kit/civic-requests/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventRequestCreated         EventType = "request_created"
	EventRequestStatusChanged   EventType = "request_status_changed"
	EventRequestPriorityChanged EventType = "request_priority_changed"
	EventRequestAssigned        EventType = "request_assigned"
	EventRequestUnassigned      EventType = "request_unassigned"
	EventRequestMilestone       EventType = "request_milestone"
	EventRequestRated           EventType = "request_rated"
	EventRequestEscalated       EventType = "request_escalated"
	EventRequestCommented       EventType = "request_commented"
	EventSLABreached            EventType = "sla_breached"
)

// AllEventTypes lists every event type, used to attach bridges.
var AllEventTypes = []EventType{
	EventRequestCreated,
	EventRequestStatusChanged,
	EventRequestPriorityChanged,
	EventRequestAssigned,
	EventRequestUnassigned,
	EventRequestMilestone,
	EventRequestRated,
	EventRequestEscalated,
	EventRequestCommented,
	EventSLABreached,
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string       `json:"id"`
	Type      EventType    `json:"type"`
	RequestID string       `json:"request_id"`
	Actor     domain.Actor `json:"actor"`
	Timestamp time.Time    `json:"timestamp"`
	Payload   any          `json:"payload"`
}

// RequestCreatedPayload payload.
type RequestCreatedPayload struct {
	Category   domain.Category `json:"category"`
	Priority   domain.Priority `json:"priority"`
	ZoneID     string          `json:"zone_id,omitempty"`
	Escalated  bool            `json:"escalated"`
	HighImpact bool            `json:"high_impact"`
}

// StatusChangedPayload payload.
type StatusChangedPayload struct {
	OldStatus domain.RequestStatus `json:"old_status"`
	NewStatus domain.RequestStatus `json:"new_status"`
}

// PriorityChangedPayload payload.
type PriorityChangedPayload struct {
	OldPriority domain.Priority `json:"old_priority"`
	NewPriority domain.Priority `json:"new_priority"`
}

// AssignedPayload payload.
type AssignedPayload struct {
	AgentID         string  `json:"agent_id"`
	PreviousAgentID *string `json:"previous_agent_id,omitempty"`
	Manual          bool    `json:"manual"`
}

// MilestonePayload payload.
type MilestonePayload struct {
	MilestoneID string               `json:"milestone_id"`
	Type        domain.MilestoneType `json:"type"`
}

// RatedPayload payload.
type RatedPayload struct {
	Stars   int  `json:"stars"`
	Dispute bool `json:"dispute"`
}

// EscalatedPayload payload.
type EscalatedPayload struct {
	Reason string `json:"reason"`
}

// CommentedPayload payload.
type CommentedPayload struct {
	CommentID string `json:"comment_id"`
}

// SLABreachedPayload payload.
type SLABreachedPayload struct {
	PolicyID    string  `json:"policy_id"`
	AgeHours    float64 `json:"age_hours"`
	BreachHours float64 `json:"breach_hours"`
}
