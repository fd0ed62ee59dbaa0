package dto

import (
	"time"

	"github.com/spec-kit/civic-requests/internal/domain"
)

// CreateRequestRequest is a citizen submission.
type CreateRequestRequest struct {
	CitizenID   string           `json:"citizen_id"`
	Category    domain.Category  `json:"category"`
	SubCategory string           `json:"sub_category"`
	Description string           `json:"description"`
	Priority    domain.Priority  `json:"priority"`
	Location    *domain.Location `json:"location"`
	Evidence    []string         `json:"evidence"`
}

// TransitionRequest payload.
type TransitionRequest struct {
	Status domain.RequestStatus `json:"status"`
}

// MilestoneRequest payload.
type MilestoneRequest struct {
	Type     domain.MilestoneType `json:"type"`
	Notes    string               `json:"notes"`
	Evidence []string             `json:"evidence"`
}

// ResolveRequest payload.
type ResolveRequest struct {
	Notes    string   `json:"notes"`
	Evidence []string `json:"evidence"`
}

// RatingRequest payload.
type RatingRequest struct {
	Stars         int    `json:"stars"`
	Comment       string `json:"comment"`
	Dispute       bool   `json:"dispute"`
	DisputeReason string `json:"dispute_reason"`
}

// PriorityRequest payload.
type PriorityRequest struct {
	Priority domain.Priority `json:"priority"`
	Reason   string          `json:"reason"`
}

// EscalateRequest payload.
type EscalateRequest struct {
	Reason string `json:"reason"`
}

// CommentRequest payload.
type CommentRequest struct {
	Text string `json:"text"`
}

// CommentResponse is one entry of a request's comment thread.
type CommentResponse struct {
	ID        string       `json:"id"`
	RequestID string       `json:"request_id"`
	Author    domain.Actor `json:"author"`
	Text      string       `json:"text"`
	CreatedAt time.Time    `json:"created_at"`
}

// NewCommentResponse maps a comment.
func NewCommentResponse(comment domain.RequestComment) CommentResponse {
	return CommentResponse{
		ID:        comment.ID,
		RequestID: comment.RequestID,
		Author:    comment.Author,
		Text:      comment.Text,
		CreatedAt: comment.CreatedAt,
	}
}

// NewCommentResponses maps a comment thread.
func NewCommentResponses(comments []domain.RequestComment) []CommentResponse {
	out := make([]CommentResponse, 0, len(comments))
	for _, comment := range comments {
		out = append(out, NewCommentResponse(comment))
	}
	return out
}

// RequestResponse is the full view of a service request.
type RequestResponse struct {
	ID              string                `json:"request_id"`
	CitizenID       string                `json:"citizen_id"`
	Category        domain.Category       `json:"category"`
	SubCategory     string                `json:"sub_category,omitempty"`
	Description     string                `json:"description,omitempty"`
	Priority        domain.Priority       `json:"priority"`
	Status          domain.RequestStatus  `json:"status"`
	Location        domain.Location       `json:"location"`
	ZoneID          string                `json:"zone_id,omitempty"`
	Evidence        []string              `json:"evidence"`
	AssignedAgentID *string               `json:"assigned_agent_id"`
	Timestamps      map[string]time.Time  `json:"timestamps"`
	Milestones      []domain.Milestone    `json:"milestones"`
	Triage          domain.TriageMetadata `json:"triage"`
	SLA             domain.SLASnapshot    `json:"sla"`
	Rating          *domain.Rating        `json:"rating"`
	Version         int64                 `json:"version"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// NewRequestResponse maps a request to its response.
func NewRequestResponse(req *domain.ServiceRequest) RequestResponse {
	evidence := req.Evidence
	if evidence == nil {
		evidence = []string{}
	}
	milestones := req.Milestones
	if milestones == nil {
		milestones = []domain.Milestone{}
	}
	return RequestResponse{
		ID:              req.ID,
		CitizenID:       req.CitizenID,
		Category:        req.Category,
		SubCategory:     req.SubCategory,
		Description:     req.Description,
		Priority:        req.Priority,
		Status:          req.Status,
		Location:        req.Location,
		ZoneID:          req.ZoneID,
		Evidence:        evidence,
		AssignedAgentID: req.AssignedAgentID,
		Timestamps:      req.Timestamps,
		Milestones:      milestones,
		Triage:          req.Triage,
		SLA:             req.SLA,
		Rating:          req.Rating,
		Version:         req.Version,
		UpdatedAt:       req.UpdatedAt,
	}
}

// NewRequestResponses maps a slice of requests.
func NewRequestResponses(reqs []*domain.ServiceRequest) []RequestResponse {
	out := make([]RequestResponse, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, NewRequestResponse(req))
	}
	return out
}

// HistoryEntryResponse is one audit trail entry.
type HistoryEntryResponse struct {
	ID        string                  `json:"id"`
	Type      domain.RequestEventType `json:"type"`
	Actor     domain.Actor            `json:"actor"`
	Meta      map[string]any          `json:"meta"`
	CreatedAt time.Time               `json:"created_at"`
}

// NewHistoryResponses maps the audit trail.
func NewHistoryResponses(entries []domain.RequestEvent) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, HistoryEntryResponse{
			ID:        entry.ID,
			Type:      entry.Type,
			Actor:     entry.Actor,
			Meta:      entry.Meta,
			CreatedAt: entry.CreatedAt,
		})
	}
	return out
}

// PageMeta accompanies paginated listings.
type PageMeta struct {
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}
