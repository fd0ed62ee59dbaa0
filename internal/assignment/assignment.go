// Package assignment picks the field agent for a request. Selection is
// deterministic: the same roster and workloads always yield the same agent.
package assignment

import (
	"sort"
	"time"

	"github.com/spec-kit/civic-requests/internal/domain"
	"github.com/spec-kit/civic-requests/internal/geo"
	"github.com/spec-kit/civic-requests/internal/policy"
	apperrors "github.com/spec-kit/civic-requests/pkg/util/errorutil"
)

// Rejection reasons reported in NoMatch details.
const (
	RejectInactive = "inactive"
	RejectCoverage = "outside_coverage"
	RejectSkill    = "missing_skill"
	RejectSchedule = "off_shift"
)

// Selector filters and ranks agents.
type Selector struct {
	index    *geo.Index
	registry *policy.Registry
	location *time.Location
}

// NewSelector builds a selector. Shifts are read in loc; nil means UTC.
func NewSelector(index *geo.Index, registry *policy.Registry, loc *time.Location) *Selector {
	if loc == nil {
		loc = time.UTC
	}
	return &Selector{index: index, registry: registry, location: loc}
}

// Covers reports whether the agent's geo fence, or a boundary of one of its
// zones, contains the request location.
func (s *Selector) Covers(agent *domain.Agent, loc domain.Location) bool {
	p := geo.PointOf(loc)
	if !agent.Coverage.GeoFence.Empty() && geo.Contains(agent.Coverage.GeoFence, p) {
		return true
	}
	for _, zoneID := range agent.Coverage.ZoneIDs {
		if s.index.ZoneContains(zoneID, p) {
			return true
		}
	}
	return false
}

// HasSkillFor reports whether the agent carries a skill the category needs.
func (s *Selector) HasSkillFor(agent *domain.Agent, category domain.Category) bool {
	needed := s.registry.SkillsFor(category)
	if len(needed) == 0 {
		return true
	}
	for _, skill := range needed {
		if agent.HasSkill(skill) {
			return true
		}
	}
	return false
}

// Available reports whether the agent is on shift at now or on call.
func (s *Selector) Available(agent *domain.Agent, now time.Time) bool {
	return agent.Schedule.OnCall || OnShift(agent.Schedule, now, s.location)
}

// Eligible returns the first rejection reason for agent, or "".
func (s *Selector) Eligible(agent *domain.Agent, req *domain.ServiceRequest, now time.Time) string {
	switch {
	case !agent.Active:
		return RejectInactive
	case !s.Covers(agent, req.Location):
		return RejectCoverage
	case !s.HasSkillFor(agent, req.Category):
		return RejectSkill
	case !s.Available(agent, now):
		return RejectSchedule
	}
	return ""
}

// Rank filters agents and orders the survivors by workload then code.
func (s *Selector) Rank(req *domain.ServiceRequest, agents []*domain.Agent, now time.Time) ([]*domain.Agent, map[string]int) {
	rejected := map[string]int{}
	var survivors []*domain.Agent
	for _, agent := range agents {
		if reason := s.Eligible(agent, req, now); reason != "" {
			rejected[reason]++
			continue
		}
		survivors = append(survivors, agent)
	}
	sort.SliceStable(survivors, func(i, j int) bool {
		if survivors[i].CurrentWorkload != survivors[j].CurrentWorkload {
			return survivors[i].CurrentWorkload < survivors[j].CurrentWorkload
		}
		if survivors[i].Code != survivors[j].Code {
			return survivors[i].Code < survivors[j].Code
		}
		return survivors[i].ID < survivors[j].ID
	})
	return survivors, rejected
}

// Select returns the best agent for req or a NoMatch error describing why
// each candidate was rejected.
func (s *Selector) Select(req *domain.ServiceRequest, agents []*domain.Agent, now time.Time) (*domain.Agent, error) {
	ranked, rejected := s.Rank(req, agents, now)
	if len(ranked) == 0 {
		details := map[string]any{"candidates": len(agents)}
		for reason, count := range rejected {
			details[reason] = count
		}
		return nil, apperrors.NewNoMatch(req.ID, details)
	}
	return ranked[0], nil
}

// CheckManual validates a staff-chosen agent: only active and coverage are enforced.
func (s *Selector) CheckManual(agent *domain.Agent, req *domain.ServiceRequest) error {
	if !agent.Active {
		return apperrors.NewIneligibleAgent(agent.ID, "agent is inactive")
	}
	if !s.Covers(agent, req.Location) {
		return apperrors.NewIneligibleAgent(agent.ID, "agent does not cover the request location")
	}
	return nil
}
