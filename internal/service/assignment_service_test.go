package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/civic-requests/internal/domain"
	"github.com/spec-kit/civic-requests/internal/workflow"
	apperrors "github.com/spec-kit/civic-requests/pkg/util/errorutil"
)

func TestAutoAssignPicksLeastLoaded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.addAgent(t, "AG-001", "Roads")
	second := f.addAgent(t, "AG-002", "roads")
	f.addAgent(t, "AG-003", "water")

	req := f.triaged(t, domain.CategoryPothole, center)
	candidates, err := f.assignmentSvc.Candidates(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, first.ID, candidates[0].ID, "ties break on code")

	req, err = f.assignmentSvc.AutoAssign(ctx, req.ID, staff)
	require.NoError(t, err)
	require.NotNil(t, req.AssignedAgentID)
	assert.Equal(t, first.ID, *req.AssignedAgentID)
	assert.Equal(t, domain.StatusAssigned, req.Status)

	next := f.triaged(t, domain.CategoryPothole, center)
	next, err = f.assignmentSvc.AutoAssign(ctx, next.ID, staff)
	require.NoError(t, err)
	assert.Equal(t, second.ID, *next.AssignedAgentID)

	assert.Equal(t, 1, f.workload(t, first.ID))
	assert.Equal(t, 1, f.workload(t, second.ID))
	assert.Equal(t,
		[]domain.RequestEventType{domain.EventTypeCreated, domain.EventTypeStatusChanged, domain.EventTypeAssigned, domain.EventTypeStatusChanged},
		f.historyTypes(t, req.ID))
}

func TestAutoAssignNoMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addAgent(t, "AG-001", "water")

	req := f.triaged(t, domain.CategoryPothole, center)
	_, err := f.assignmentSvc.AutoAssign(ctx, req.ID, staff)
	require.ErrorIs(t, err, apperrors.ErrNoMatch)

	stored, err := f.requestSvc.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTriaged, stored.Status)
	assert.Nil(t, stored.AssignedAgentID)
}

func TestAssignRequiresTriage(t *testing.T) {
	f := newFixture(t)
	agent := f.addAgent(t, "AG-001", "roads")
	req := f.submit(t, domain.CategoryPothole, domain.PriorityLow, center)

	_, err := f.assignmentSvc.AssignTo(context.Background(), req.ID, agent.ID, staff)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	assert.Equal(t, 0, f.workload(t, agent.ID))
}

func TestManualAssignChecksCoverage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agent := f.addAgent(t, "AG-001", "water")
	req := f.triaged(t, domain.CategoryPothole, center)

	req, err := f.assignmentSvc.AssignTo(ctx, req.ID, agent.ID, staff)
	require.NoError(t, err, "manual assignment skips the skill check")
	assert.Equal(t, agent.ID, *req.AssignedAgentID)

	north := f.triaged(t, domain.CategoryPothole, domain.Location{Lon: 35.21, Lat: 31.81})
	_, err = f.assignmentSvc.AssignTo(ctx, north.ID, agent.ID, staff)
	assert.ErrorIs(t, err, apperrors.ErrIneligibleAgent)

	_, err = f.assignmentSvc.AssignTo(ctx, north.ID, "missing", staff)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestReassignReleasesPreviousAgent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.addAgent(t, "AG-001", "roads")
	second := f.addAgent(t, "AG-002", "roads")
	req := f.triaged(t, domain.CategoryPothole, center)

	req, err := f.assignmentSvc.AssignTo(ctx, req.ID, first.ID, staff)
	require.NoError(t, err)
	same, err := f.assignmentSvc.AssignTo(ctx, req.ID, first.ID, staff)
	require.NoError(t, err)
	assert.Equal(t, req.Version, same.Version)
	assert.Equal(t, 1, f.workload(t, first.ID))

	req, err = f.assignmentSvc.AssignTo(ctx, req.ID, second.ID, staff)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAssigned, req.Status)
	assert.Equal(t, second.ID, *req.AssignedAgentID)
	assert.Equal(t, 0, f.workload(t, first.ID))
	assert.Equal(t, 1, f.workload(t, second.ID))
	assert.Contains(t, f.historyTypes(t, req.ID), domain.EventTypeUnassigned)
}

func TestUnassignReturnsRequestToTriage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agent := f.addAgent(t, "AG-001", "roads")
	req := f.triaged(t, domain.CategoryPothole, center)

	_, err := f.assignmentSvc.Unassign(ctx, req.ID, "no crew", staff)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition, "nothing to unassign yet")

	req, err = f.assignmentSvc.AssignTo(ctx, req.ID, agent.ID, staff)
	require.NoError(t, err)
	require.Equal(t, 1, f.workload(t, agent.ID))

	f.clock.Advance(time.Hour)
	req, err = f.assignmentSvc.Unassign(ctx, req.ID, " agent called in sick ", staff)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTriaged, req.Status)
	assert.Nil(t, req.AssignedAgentID)
	assert.Equal(t, 0, f.workload(t, agent.ID))
	_, stamped := req.Timestamp(domain.TimestampAssigned)
	assert.False(t, stamped)

	trail, err := f.requestSvc.History(ctx, req.ID)
	require.NoError(t, err)
	last := trail[len(trail)-2:]
	assert.Equal(t, domain.EventTypeUnassigned, last[0].Type)
	assert.Equal(t, "agent called in sick", last[0].Meta["reason"])
	assert.Equal(t, domain.EventTypeStatusChanged, last[1].Type)

	f.clock.Advance(time.Hour)
	req, err = f.assignmentSvc.AutoAssign(ctx, req.ID, staff)
	require.NoError(t, err, "the request can be assigned again")
	assert.Equal(t, domain.StatusAssigned, req.Status)
	assignedAt, ok := req.Timestamp(domain.TimestampAssigned)
	require.True(t, ok)
	assert.Equal(t, monday10.Add(2*time.Hour), assignedAt)
	assert.Equal(t, 1, f.workload(t, agent.ID))

	_, err = f.requestSvc.RecordMilestone(ctx, req.ID, workflow.MilestoneInput{Type: domain.MilestoneArrived}, agentAct)
	require.NoError(t, err)
	_, err = f.assignmentSvc.Unassign(ctx, req.ID, "", staff)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, 1, f.workload(t, agent.ID))

	_, err = f.assignmentSvc.Unassign(ctx, "CST-2026-9999", "", staff)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestWorkloadNeverNegative(t *testing.T) {
	f := newFixture(t)
	agent := f.addAgent(t, "AG-001", "roads")

	require.NoError(t, f.assignmentSvc.workloads.adjust(context.Background(), agent.ID, -1))
	assert.Equal(t, 0, f.workload(t, agent.ID))
}

func TestDeleteAgentWithWork(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agent := f.addAgent(t, "AG-001", "roads")
	req := f.triaged(t, domain.CategoryPothole, center)
	_, err := f.assignmentSvc.AutoAssign(ctx, req.ID, staff)
	require.NoError(t, err)

	err = f.agentSvc.Delete(ctx, agent.ID)
	assert.ErrorIs(t, err, apperrors.ErrReferentialIntegrity)

	tasks, err := f.agentSvc.Tasks(ctx, agent.ID, false)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, req.ID, tasks[0].ID)
}
