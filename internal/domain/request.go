package domain

import "time"

// RequestStatus enumerates lifecycle states for service requests.
type RequestStatus string

const (
	StatusNew        RequestStatus = "new"
	StatusTriaged    RequestStatus = "triaged"
	StatusAssigned   RequestStatus = "assigned"
	StatusInProgress RequestStatus = "in_progress"
	StatusResolved   RequestStatus = "resolved"
	StatusClosed     RequestStatus = "closed"
)

// AllStatuses lists statuses in lifecycle order.
var AllStatuses = []RequestStatus{
	StatusNew, StatusTriaged, StatusAssigned, StatusInProgress, StatusResolved, StatusClosed,
}

// OpenStatuses are the non-terminal statuses scanned by the SLA sweep.
var OpenStatuses = []RequestStatus{StatusNew, StatusTriaged, StatusAssigned, StatusInProgress}

// Valid reports whether s is a known status.
func (s RequestStatus) Valid() bool {
	for _, candidate := range AllStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Terminal reports whether the request has left the open set.
func (s RequestStatus) Terminal() bool {
	return s == StatusResolved || s == StatusClosed
}

// Active reports whether an agent is working the request.
func (s RequestStatus) Active() bool {
	return s == StatusAssigned || s == StatusInProgress
}

// Category enumerates request categories.
type Category string

const (
	CategoryPothole   Category = "pothole"
	CategoryWaterLeak Category = "water_leak"
	CategoryTrash     Category = "trash"
	CategoryLighting  Category = "lighting"
	CategorySewage    Category = "sewage"
	CategorySignage   Category = "signage"
	CategoryOther     Category = "other"
)

// AllCategories lists every supported category.
var AllCategories = []Category{
	CategoryPothole, CategoryWaterLeak, CategoryTrash, CategoryLighting,
	CategorySewage, CategorySignage, CategoryOther,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, candidate := range AllCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// Priority enumerates SLA urgency, ordered low to critical.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// AllPriorities lists priorities from least to most severe.
var AllPriorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p.Rank() >= 0
}

// Rank returns the severity index of p, or -1 when unknown.
func (p Priority) Rank() int {
	for i, candidate := range AllPriorities {
		if candidate == p {
			return i
		}
	}
	return -1
}

// Raise returns p raised by steps, capped at critical.
func (p Priority) Raise(steps int) Priority {
	rank := p.Rank()
	if rank < 0 {
		return p
	}
	rank += steps
	if rank >= len(AllPriorities) {
		rank = len(AllPriorities) - 1
	}
	if rank < 0 {
		rank = 0
	}
	return AllPriorities[rank]
}

// AtLeast returns the more severe of p and floor.
func (p Priority) AtLeast(floor Priority) Priority {
	if floor.Rank() > p.Rank() {
		return floor
	}
	return p
}

// Timestamp keys recorded once per reached status.
const (
	TimestampCreated    = "created_at"
	TimestampTriaged    = "triaged_at"
	TimestampAssigned   = "assigned_at"
	TimestampInProgress = "in_progress_at"
	TimestampResolved   = "resolved_at"
	TimestampClosed     = "closed_at"
)

// TimestampKey maps a status to the timestamp stamped when it is reached.
func TimestampKey(status RequestStatus) string {
	switch status {
	case StatusNew:
		return TimestampCreated
	case StatusTriaged:
		return TimestampTriaged
	case StatusAssigned:
		return TimestampAssigned
	case StatusInProgress:
		return TimestampInProgress
	case StatusResolved:
		return TimestampResolved
	case StatusClosed:
		return TimestampClosed
	}
	return ""
}

// AnonymousCitizen is the owner of requests submitted without an account.
const AnonymousCitizen = "anonymous"

// Location is a geographic point with an optional human hint.
type Location struct {
	Lon         float64 `json:"lon"`
	Lat         float64 `json:"lat"`
	AddressHint string  `json:"address_hint,omitempty"`
}

// MilestoneType enumerates field-work events.
type MilestoneType string

const (
	MilestoneArrived     MilestoneType = "arrived"
	MilestoneWorkStarted MilestoneType = "work_started"
	MilestoneResolved    MilestoneType = "resolved"
)

// Valid reports whether m is a known milestone type.
func (m MilestoneType) Valid() bool {
	return m == MilestoneArrived || m == MilestoneWorkStarted || m == MilestoneResolved
}

// Milestone is an append-only field-work record.
type Milestone struct {
	ID        string        `json:"id"`
	Type      MilestoneType `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Notes     string        `json:"notes,omitempty"`
	Evidence  []string      `json:"evidence,omitempty"`
}

// SensitiveHit describes a sensitive location near the request.
type SensitiveHit struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	DistanceKm float64 `json:"distance_km"`
}

// TriageMetadata is written once at creation.
type TriageMetadata struct {
	OriginalPriority  Priority       `json:"original_priority"`
	PriorityEscalated bool           `json:"priority_escalated"`
	EscalationReason  string         `json:"escalation_reason,omitempty"`
	HighImpactFlag    bool           `json:"high_impact_flag"`
	NearbySensitive   []SensitiveHit `json:"nearby_sensitive,omitempty"`
}

// SLASnapshot freezes the policy applied to a request.
type SLASnapshot struct {
	PolicyID    string  `json:"policy_id"`
	TargetHours float64 `json:"target_hours"`
	BreachHours float64 `json:"breach_hours"`
	AtRiskRatio float64 `json:"at_risk_ratio"`
}

// Rating is the citizen's feedback, set at most once.
type Rating struct {
	Stars         int       `json:"stars"`
	Comment       string    `json:"comment,omitempty"`
	Dispute       bool      `json:"dispute"`
	DisputeReason string    `json:"dispute_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ServiceRequest is the aggregate for citizen-reported issues.
type ServiceRequest struct {
	ID              string
	CitizenID       string
	Category        Category
	SubCategory     string
	Description     string
	Priority        Priority
	Status          RequestStatus
	Location        Location
	ZoneID          string
	Evidence        []string
	AssignedAgentID *string
	Timestamps      map[string]time.Time
	Milestones      []Milestone
	Triage          TriageMetadata
	SLA             SLASnapshot
	Rating          *Rating
	Version         int64
	UpdatedAt       time.Time
}

// Timestamp returns the instant recorded for key, if any.
func (r *ServiceRequest) Timestamp(key string) (time.Time, bool) {
	if r.Timestamps == nil {
		return time.Time{}, false
	}
	ts, ok := r.Timestamps[key]
	return ts, ok
}

// HasMilestone reports whether a milestone of type m has been recorded.
func (r *ServiceRequest) HasMilestone(m MilestoneType) bool {
	for _, milestone := range r.Milestones {
		if milestone.Type == m {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (r *ServiceRequest) Clone() *ServiceRequest {
	if r == nil {
		return nil
	}
	out := *r
	if r.AssignedAgentID != nil {
		id := *r.AssignedAgentID
		out.AssignedAgentID = &id
	}
	out.Evidence = append([]string(nil), r.Evidence...)
	if r.Timestamps != nil {
		out.Timestamps = make(map[string]time.Time, len(r.Timestamps))
		for k, v := range r.Timestamps {
			out.Timestamps[k] = v
		}
	}
	if r.Milestones != nil {
		out.Milestones = make([]Milestone, len(r.Milestones))
		for i, m := range r.Milestones {
			m.Evidence = append([]string(nil), m.Evidence...)
			out.Milestones[i] = m
		}
	}
	out.Triage.NearbySensitive = append([]SensitiveHit(nil), r.Triage.NearbySensitive...)
	if r.Rating != nil {
		rating := *r.Rating
		out.Rating = &rating
	}
	return &out
}
