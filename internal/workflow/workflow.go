// Package workflow holds the request lifecycle rules as pure functions over a
// request value. Callers own locking and persistence.
package workflow

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/civic-requests/internal/domain"
	apperrors "github.com/spec-kit/civic-requests/pkg/util/errorutil"
)

var allowedTransitions = map[domain.RequestStatus][]domain.RequestStatus{
	domain.StatusNew:        {domain.StatusTriaged},
	domain.StatusTriaged:    {domain.StatusAssigned},
	domain.StatusAssigned:   {domain.StatusInProgress},
	domain.StatusInProgress: {domain.StatusResolved},
	domain.StatusResolved:   {domain.StatusClosed},
	domain.StatusClosed:     {},
}

// milestonePrereq lists the milestone that must precede each type.
var milestonePrereq = map[domain.MilestoneType]domain.MilestoneType{
	domain.MilestoneWorkStarted: domain.MilestoneArrived,
	domain.MilestoneResolved:    domain.MilestoneWorkStarted,
}

// StatusChange records one applied transition.
type StatusChange struct {
	From domain.RequestStatus
	To   domain.RequestStatus
	At   time.Time
}

// AllowedNext returns the statuses reachable from current.
func AllowedNext(current domain.RequestStatus) []domain.RequestStatus {
	return append([]domain.RequestStatus(nil), allowedTransitions[current]...)
}

// IsValidTransition reports whether next is reachable from current in one step.
func IsValidTransition(current, next domain.RequestStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ApplyTransition moves req to target and stamps the status timestamp.
func ApplyTransition(req *domain.ServiceRequest, target domain.RequestStatus, now time.Time) (StatusChange, error) {
	if !target.Valid() {
		return StatusChange{}, apperrors.NewValidationError("unknown status", map[string]any{"status": target})
	}
	if !IsValidTransition(req.Status, target) {
		return StatusChange{}, apperrors.NewInvalidTransition(string(req.Status), string(target), statusNames(AllowedNext(req.Status)))
	}
	if target == domain.StatusAssigned && (req.AssignedAgentID == nil || *req.AssignedAgentID == "") {
		return StatusChange{}, apperrors.NewUnassigned(req.ID)
	}
	key := domain.TimestampKey(target)
	if _, exists := req.Timestamp(key); exists {
		return StatusChange{}, apperrors.NewConflict("timestamp already recorded", map[string]any{"request_id": req.ID, "timestamp": key})
	}
	if req.Timestamps == nil {
		req.Timestamps = make(map[string]time.Time)
	}
	change := StatusChange{From: req.Status, To: target, At: now}
	req.Timestamps[key] = now
	req.Status = target
	req.UpdatedAt = now
	return change, nil
}

// Retriage returns an assigned request to the triage queue and clears its
// agent. It is the only backward move in the lifecycle and is refused once
// field work has been recorded. The assigned stamp is cleared so the next
// assignment records its own; the audit trail keeps the earlier one.
func Retriage(req *domain.ServiceRequest, now time.Time) (StatusChange, error) {
	if req.Status != domain.StatusAssigned {
		return StatusChange{}, apperrors.NewInvalidTransition(string(req.Status), string(domain.StatusTriaged),
			statusNames(AllowedNext(req.Status)))
	}
	if len(req.Milestones) > 0 {
		return StatusChange{}, apperrors.NewConflict("field work already recorded; reassign instead",
			map[string]any{"request_id": req.ID, "milestones": len(req.Milestones)})
	}
	change := StatusChange{From: req.Status, To: domain.StatusTriaged, At: now}
	delete(req.Timestamps, domain.TimestampAssigned)
	req.AssignedAgentID = nil
	req.Status = domain.StatusTriaged
	req.UpdatedAt = now
	return change, nil
}

// MilestoneInput describes a field-work event to record.
type MilestoneInput struct {
	Type     domain.MilestoneType
	Notes    string
	Evidence []string
}

// AppendMilestone records a milestone and applies the transitions it implies:
// work_started moves an assigned request to in_progress, resolved moves it to
// resolved.
func AppendMilestone(req *domain.ServiceRequest, input MilestoneInput, now time.Time) (domain.Milestone, []StatusChange, error) {
	if !input.Type.Valid() {
		return domain.Milestone{}, nil, apperrors.NewValidationError("unknown milestone type", map[string]any{"type": input.Type})
	}
	if !req.Status.Active() {
		return domain.Milestone{}, nil, apperrors.NewInvalidTransition(string(req.Status), string(input.Type),
			statusNames([]domain.RequestStatus{domain.StatusAssigned, domain.StatusInProgress}))
	}
	if req.HasMilestone(input.Type) {
		return domain.Milestone{}, nil, apperrors.NewOutOfOrderMilestone(string(input.Type), "milestone already recorded")
	}
	if prereq, ok := milestonePrereq[input.Type]; ok && !req.HasMilestone(prereq) {
		return domain.Milestone{}, nil, apperrors.NewOutOfOrderMilestone(string(input.Type),
			string(input.Type)+" requires a prior "+string(prereq))
	}

	var changes []StatusChange
	advance := func(target domain.RequestStatus) error {
		if req.Status == target {
			return nil
		}
		change, err := ApplyTransition(req, target, now)
		if err != nil {
			return err
		}
		changes = append(changes, change)
		return nil
	}

	switch input.Type {
	case domain.MilestoneWorkStarted:
		if err := advance(domain.StatusInProgress); err != nil {
			return domain.Milestone{}, nil, err
		}
	case domain.MilestoneResolved:
		if err := advance(domain.StatusInProgress); err != nil {
			return domain.Milestone{}, nil, err
		}
		if err := advance(domain.StatusResolved); err != nil {
			return domain.Milestone{}, nil, err
		}
	}

	milestone := domain.Milestone{
		ID:        uuid.NewString(),
		Type:      input.Type,
		Timestamp: now,
		Notes:     strings.TrimSpace(input.Notes),
		Evidence:  append([]string(nil), input.Evidence...),
	}
	req.Milestones = append(req.Milestones, milestone)
	req.UpdatedAt = now
	return milestone, changes, nil
}

// RatingInput carries citizen feedback.
type RatingInput struct {
	Stars         int
	Comment       string
	Dispute       bool
	DisputeReason string
}

// ApplyRating sets the rating once on a resolved or closed request.
func ApplyRating(req *domain.ServiceRequest, input RatingInput, now time.Time) error {
	if input.Stars < 1 || input.Stars > 5 {
		return apperrors.NewValidationError("stars must be between 1 and 5", map[string]any{"stars": input.Stars})
	}
	if !req.Status.Terminal() {
		return apperrors.NewNotRatable(req.ID, string(req.Status))
	}
	if req.Rating != nil {
		return apperrors.NewAlreadyRated(req.ID)
	}
	req.Rating = &domain.Rating{
		Stars:         input.Stars,
		Comment:       strings.TrimSpace(input.Comment),
		Dispute:       input.Dispute,
		DisputeReason: strings.TrimSpace(input.DisputeReason),
		CreatedAt:     now,
	}
	req.UpdatedAt = now
	return nil
}

func statusNames(statuses []domain.RequestStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
