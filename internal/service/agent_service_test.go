package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/civic-requests/internal/domain"
	apperrors "github.com/spec-kit/civic-requests/pkg/util/errorutil"
)

func TestAgentCreateNormalizes(t *testing.T) {
	f := newFixture(t)
	agent, err := f.agentSvc.Create(context.Background(), AgentInput{
		Code:     " AG-010 ",
		Name:     "Noa",
		Skills:   []string{"Water", "plumbing", "water", " "},
		Coverage: domain.Coverage{ZoneIDs: []string{"ZONE-NORTH", "ZONE-CENTER", "ZONE-NORTH"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "AG-010", agent.Code)
	assert.Equal(t, []string{"plumbing", "water"}, agent.Skills)
	assert.Equal(t, []string{"ZONE-CENTER", "ZONE-NORTH"}, agent.Coverage.ZoneIDs)
	assert.True(t, agent.Active)
	assert.Zero(t, agent.CurrentWorkload)

	_, err = f.agentSvc.Create(context.Background(), AgentInput{Code: "AG-010", Name: "Dup", Coverage: domain.Coverage{ZoneIDs: []string{"ZONE-CENTER"}}})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestAgentCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.agentSvc.Create(ctx, AgentInput{Name: "No code", Coverage: domain.Coverage{ZoneIDs: []string{"ZONE-CENTER"}}})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.agentSvc.Create(ctx, AgentInput{Code: "AG-1", Name: "No coverage"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.agentSvc.Create(ctx, AgentInput{
		Code:     "AG-2",
		Name:     "Bad shift",
		Coverage: domain.Coverage{ZoneIDs: []string{"ZONE-CENTER"}},
		Schedule: domain.Schedule{Shifts: []domain.Shift{{Day: "funday", Start: "08:00", End: "16:00"}}},
	})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestAgentUpdateVersionCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agent := f.addAgent(t, "AG-001", "roads")

	name := "Renamed"
	updated, err := f.agentSvc.Update(ctx, agent.ID, AgentPatch{Name: &name}, agent.Version)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, agent.Version+1, updated.Version)

	_, err = f.agentSvc.Update(ctx, agent.ID, AgentPatch{Name: &name}, agent.Version)
	assert.ErrorIs(t, err, apperrors.ErrConcurrentModification)

	inactive := false
	updated, err = f.agentSvc.Update(ctx, agent.ID, AgentPatch{Active: &inactive}, 0)
	require.NoError(t, err)
	assert.False(t, updated.Active)

	active := true
	list, err := f.agentSvc.List(ctx, AgentListFilter{Active: &active})
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, f.agentSvc.Delete(ctx, agent.ID))
	_, err = f.agentSvc.Get(ctx, agent.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
