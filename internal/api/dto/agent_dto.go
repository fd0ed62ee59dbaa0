package dto

import (
	"time"

	"github.com/spec-kit/civic-requests/internal/domain"
)

// CreateAgentRequest payload.
type CreateAgentRequest struct {
	Code       string          `json:"code"`
	Name       string          `json:"name"`
	Department string          `json:"department"`
	Skills     []string        `json:"skills"`
	Coverage   domain.Coverage `json:"coverage"`
	Schedule   domain.Schedule `json:"schedule"`
	Active     *bool           `json:"active"`
}

// UpdateAgentRequest is a partial update. Version, when set, must match.
type UpdateAgentRequest struct {
	Name       *string          `json:"name"`
	Department *string          `json:"department"`
	Skills     *[]string        `json:"skills"`
	Coverage   *domain.Coverage `json:"coverage"`
	Schedule   *domain.Schedule `json:"schedule"`
	Active     *bool            `json:"active"`
	Version    int64            `json:"version"`
}

// UnassignRequest payload.
type UnassignRequest struct {
	Reason string `json:"reason"`
}

// AgentResponse is the public view of a field agent.
type AgentResponse struct {
	ID              string          `json:"id"`
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	Department      string          `json:"department,omitempty"`
	Skills          []string        `json:"skills"`
	Coverage        domain.Coverage `json:"coverage"`
	Schedule        domain.Schedule `json:"schedule"`
	CurrentWorkload int             `json:"current_workload"`
	Active          bool            `json:"active"`
	Version         int64           `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewAgentResponse maps an agent.
func NewAgentResponse(agent *domain.Agent) AgentResponse {
	skills := agent.Skills
	if skills == nil {
		skills = []string{}
	}
	return AgentResponse{
		ID:              agent.ID,
		Code:            agent.Code,
		Name:            agent.Name,
		Department:      agent.Department,
		Skills:          skills,
		Coverage:        agent.Coverage,
		Schedule:        agent.Schedule,
		CurrentWorkload: agent.CurrentWorkload,
		Active:          agent.Active,
		Version:         agent.Version,
		CreatedAt:       agent.CreatedAt,
		UpdatedAt:       agent.UpdatedAt,
	}
}

// NewAgentResponses maps a slice of agents.
func NewAgentResponses(agents []*domain.Agent) []AgentResponse {
	out := make([]AgentResponse, 0, len(agents))
	for _, agent := range agents {
		out = append(out, NewAgentResponse(agent))
	}
	return out
}

// ZoneRequest creates or replaces a zone.
type ZoneRequest struct {
	ZoneID   string         `json:"zone_id"`
	Name     string         `json:"name"`
	Boundary domain.Polygon `json:"boundary"`
}

// ZoneResponse is the public view of a zone.
type ZoneResponse struct {
	ZoneID    string         `json:"zone_id"`
	Name      string         `json:"name"`
	Boundary  domain.Polygon `json:"boundary"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewZoneResponse maps a zone.
func NewZoneResponse(zone *domain.Zone) ZoneResponse {
	return ZoneResponse{
		ZoneID:    zone.ZoneID,
		Name:      zone.Name,
		Boundary:  zone.Boundary,
		CreatedAt: zone.CreatedAt,
		UpdatedAt: zone.UpdatedAt,
	}
}
