package domain

import "time"

// RequestEventType captures what happened to a request.
type RequestEventType string

const (
	EventTypeCreated         RequestEventType = "created"
	EventTypeStatusChanged   RequestEventType = "status_changed"
	EventTypeMilestone       RequestEventType = "milestone"
	EventTypeAssigned        RequestEventType = "assigned"
	EventTypeUnassigned      RequestEventType = "unassigned"
	EventTypePriorityChanged RequestEventType = "priority_changed"
	EventTypeRated           RequestEventType = "rated"
	EventTypeEscalated       RequestEventType = "escalated"
	EventTypeCommented       RequestEventType = "commented"
)

// Actor identifies who caused a change.
type Actor struct {
	Type SubjectType `json:"type"`
	ID   string      `json:"id,omitempty"`
}

// SystemActor is used for engine-initiated changes.
func SystemActor(id string) Actor {
	return Actor{Type: SubjectTypeSystem, ID: id}
}

// RequestEvent is an immutable audit trail entry.
type RequestEvent struct {
	ID        string
	RequestID string
	Type      RequestEventType
	Actor     Actor
	Meta      map[string]any
	CreatedAt time.Time
}
