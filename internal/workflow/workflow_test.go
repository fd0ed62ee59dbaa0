package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/civic-requests/internal/domain"
	apperrors "github.com/spec-kit/civic-requests/pkg/util/errorutil"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newRequest(status domain.RequestStatus) *domain.ServiceRequest {
	req := &domain.ServiceRequest{
		ID:         "CST-2026-0001",
		Category:   domain.CategoryPothole,
		Priority:   domain.PriorityMedium,
		Status:     domain.StatusNew,
		Timestamps: map[string]time.Time{domain.TimestampCreated: t0},
	}
	agent := "agent-1"
	for _, s := range domain.AllStatuses[1:] {
		if req.Status == status {
			break
		}
		if s == domain.StatusAssigned {
			req.AssignedAgentID = &agent
		}
		_, err := ApplyTransition(req, s, t0)
		if err != nil {
			panic(err)
		}
	}
	return req
}

func TestTransitionTable(t *testing.T) {
	agent := "agent-1"
	for _, from := range domain.AllStatuses {
		for _, to := range domain.AllStatuses {
			req := newRequest(from)
			req.AssignedAgentID = &agent
			_, err := ApplyTransition(req, to, t0.Add(time.Hour))
			if IsValidTransition(from, to) {
				assert.NoError(t, err, "%s -> %s", from, to)
				assert.Equal(t, to, req.Status)
				continue
			}
			assert.ErrorIs(t, err, apperrors.ErrInvalidTransition, "%s -> %s", from, to)
			assert.Equal(t, from, req.Status)
		}
	}
}

func TestTransitionIsForwardOnly(t *testing.T) {
	for i, from := range domain.AllStatuses {
		for j, to := range domain.AllStatuses {
			if j <= i {
				assert.False(t, IsValidTransition(from, to), "%s -> %s", from, to)
			}
		}
	}
	assert.Empty(t, AllowedNext(domain.StatusClosed))
}

func TestTransitionStampsTimestampOnce(t *testing.T) {
	req := newRequest(domain.StatusNew)
	change, err := ApplyTransition(req, domain.StatusTriaged, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatusChange{From: domain.StatusNew, To: domain.StatusTriaged, At: t0.Add(time.Minute)}, change)
	assert.Equal(t, t0.Add(time.Minute), req.Timestamps[domain.TimestampTriaged])

	// A corrupted record with the timestamp already present is refused.
	req = newRequest(domain.StatusNew)
	req.Timestamps[domain.TimestampTriaged] = t0
	_, err = ApplyTransition(req, domain.StatusTriaged, t0.Add(time.Minute))
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestAssignedRequiresAgent(t *testing.T) {
	req := newRequest(domain.StatusTriaged)
	_, err := ApplyTransition(req, domain.StatusAssigned, t0)
	assert.ErrorIs(t, err, apperrors.ErrUnassigned)
	assert.Equal(t, domain.StatusTriaged, req.Status)
	_, stamped := req.Timestamp(domain.TimestampAssigned)
	assert.False(t, stamped)
}

func TestRetriage(t *testing.T) {
	req := newRequest(domain.StatusAssigned)
	later := t0.Add(time.Hour)
	change, err := Retriage(req, later)
	require.NoError(t, err)
	assert.Equal(t, StatusChange{From: domain.StatusAssigned, To: domain.StatusTriaged, At: later}, change)
	assert.Equal(t, domain.StatusTriaged, req.Status)
	assert.Nil(t, req.AssignedAgentID)
	_, stamped := req.Timestamp(domain.TimestampAssigned)
	assert.False(t, stamped)
	_, triaged := req.Timestamp(domain.TimestampTriaged)
	assert.True(t, triaged, "earlier stamps survive")

	agent := "agent-2"
	req.AssignedAgentID = &agent
	_, err = ApplyTransition(req, domain.StatusAssigned, later.Add(time.Minute))
	require.NoError(t, err, "a fresh assignment can be stamped again")

	for _, status := range []domain.RequestStatus{domain.StatusTriaged, domain.StatusInProgress, domain.StatusResolved} {
		_, err := Retriage(newRequest(status), later)
		assert.ErrorIs(t, err, apperrors.ErrInvalidTransition, status)
	}

	worked := newRequest(domain.StatusAssigned)
	_, _, err = AppendMilestone(worked, MilestoneInput{Type: domain.MilestoneArrived}, later)
	require.NoError(t, err)
	_, err = Retriage(worked, later)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, domain.StatusAssigned, worked.Status)
}

func TestMilestoneOrdering(t *testing.T) {
	req := newRequest(domain.StatusAssigned)

	_, _, err := AppendMilestone(req, MilestoneInput{Type: domain.MilestoneWorkStarted}, t0)
	assert.ErrorIs(t, err, apperrors.ErrOutOfOrderMilestone)

	_, _, err = AppendMilestone(req, MilestoneInput{Type: domain.MilestoneResolved}, t0)
	assert.ErrorIs(t, err, apperrors.ErrOutOfOrderMilestone)

	_, changes, err := AppendMilestone(req, MilestoneInput{Type: domain.MilestoneArrived, Notes: " on site "}, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Equal(t, "on site", req.Milestones[0].Notes)

	_, _, err = AppendMilestone(req, MilestoneInput{Type: domain.MilestoneArrived}, t0)
	assert.ErrorIs(t, err, apperrors.ErrOutOfOrderMilestone)

	_, _, err = AppendMilestone(req, MilestoneInput{Type: domain.MilestoneResolved}, t0)
	assert.ErrorIs(t, err, apperrors.ErrOutOfOrderMilestone)

	_, changes, err = AppendMilestone(req, MilestoneInput{Type: domain.MilestoneWorkStarted}, t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, domain.StatusInProgress, req.Status)
	assert.Equal(t, t0.Add(2*time.Hour), req.Timestamps[domain.TimestampInProgress])

	m, changes, err := AppendMilestone(req, MilestoneInput{Type: domain.MilestoneResolved, Evidence: []string{"https://img/1.jpg"}}, t0.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, domain.StatusResolved, changes[0].To)
	assert.Equal(t, domain.StatusResolved, req.Status)
	assert.Equal(t, []string{"https://img/1.jpg"}, m.Evidence)
	assert.NotEmpty(t, m.ID)
	assert.Len(t, req.Milestones, 3)
}

func TestMilestoneRequiresActiveStatus(t *testing.T) {
	for _, status := range []domain.RequestStatus{domain.StatusNew, domain.StatusTriaged, domain.StatusResolved, domain.StatusClosed} {
		req := newRequest(status)
		_, _, err := AppendMilestone(req, MilestoneInput{Type: domain.MilestoneArrived}, t0)
		assert.ErrorIs(t, err, apperrors.ErrInvalidTransition, string(status))
		assert.Empty(t, req.Milestones)
	}

	req := newRequest(domain.StatusAssigned)
	_, _, err := AppendMilestone(req, MilestoneInput{Type: domain.MilestoneType("lunch")}, t0)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestRatingOnce(t *testing.T) {
	req := newRequest(domain.StatusResolved)
	require.NoError(t, ApplyRating(req, RatingInput{Stars: 4, Comment: "quick fix"}, t0))
	assert.Equal(t, 4, req.Rating.Stars)

	err := ApplyRating(req, RatingInput{Stars: 5}, t0)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyRated)
	assert.Equal(t, 4, req.Rating.Stars)
}

func TestRatingRules(t *testing.T) {
	err := ApplyRating(newRequest(domain.StatusNew), RatingInput{Stars: 3}, t0)
	assert.ErrorIs(t, err, apperrors.ErrNotRatable)

	err = ApplyRating(newRequest(domain.StatusInProgress), RatingInput{Stars: 3}, t0)
	assert.ErrorIs(t, err, apperrors.ErrNotRatable)

	for _, stars := range []int{0, 6, -1} {
		err = ApplyRating(newRequest(domain.StatusClosed), RatingInput{Stars: stars}, t0)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	}

	closed := newRequest(domain.StatusClosed)
	require.NoError(t, ApplyRating(closed, RatingInput{Stars: 1, Dispute: true, DisputeReason: "not fixed"}, t0))
	assert.True(t, closed.Rating.Dispute)
}
