package domain

import "time"

// Shift is a weekly working window. End before Start wraps past midnight.
type Shift struct {
	Day   string `json:"day" yaml:"day"`
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// Schedule describes when an agent can take work.
type Schedule struct {
	Shifts []Shift `json:"shifts"`
	OnCall bool    `json:"on_call"`
}

// Coverage describes where an agent works. Zone boundaries are authoritative;
// ZoneIDs indexes them.
type Coverage struct {
	ZoneIDs  []string `json:"zone_ids"`
	GeoFence Polygon  `json:"geo_fence,omitempty"`
}

// Agent models a field worker.
type Agent struct {
	ID              string
	Code            string
	Name            string
	Department      string
	Skills          []string
	Coverage        Coverage
	Schedule        Schedule
	CurrentWorkload int
	Active          bool
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasSkill reports whether the agent carries skill.
func (a *Agent) HasSkill(skill string) bool {
	for _, s := range a.Skills {
		if s == skill {
			return true
		}
	}
	return false
}

// CoversZone reports whether zoneID is in the agent's coverage list.
func (a *Agent) CoversZone(zoneID string) bool {
	for _, z := range a.Coverage.ZoneIDs {
		if z == zoneID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the agent.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	out := *a
	out.Skills = append([]string(nil), a.Skills...)
	out.Coverage.ZoneIDs = append([]string(nil), a.Coverage.ZoneIDs...)
	out.Coverage.GeoFence = a.Coverage.GeoFence.Clone()
	out.Schedule.Shifts = append([]Shift(nil), a.Schedule.Shifts...)
	return &out
}
