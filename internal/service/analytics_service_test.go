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

// seedAnalytics leaves one resolved and rated trash request, one open pothole
// in the center zone and one open low-priority request outside every zone.
func seedAnalytics(t *testing.T, f *fixture) (resolved, pothole, outside *domain.ServiceRequest) {
	t.Helper()
	ctx := context.Background()
	f.addAgent(t, "AG-001", "sanitation")

	resolved = f.triaged(t, domain.CategoryTrash, center)
	_, err := f.assignmentSvc.AutoAssign(ctx, resolved.ID, staff)
	require.NoError(t, err)
	for _, m := range []domain.MilestoneType{domain.MilestoneArrived, domain.MilestoneWorkStarted} {
		_, err = f.requestSvc.RecordMilestone(ctx, resolved.ID, workflow.MilestoneInput{Type: m}, agentAct)
		require.NoError(t, err)
	}
	f.clock.Advance(10 * time.Hour)
	_, err = f.requestSvc.Resolve(ctx, resolved.ID, "done", nil, agentAct)
	require.NoError(t, err)
	resolved, err = f.requestSvc.SubmitRating(ctx, resolved.ID, workflow.RatingInput{Stars: 4}, citizenActor(domain.AnonymousCitizen))
	require.NoError(t, err)

	pothole = f.submit(t, domain.CategoryPothole, domain.PriorityMedium, center)
	outside = f.submit(t, domain.CategoryLighting, domain.PriorityLow, outskirt)
	f.clock.Advance(24 * time.Hour)
	return resolved, pothole, outside
}

func TestStatsAndKPIs(t *testing.T) {
	f := newFixture(t)
	seedAnalytics(t, f)
	ctx := context.Background()

	stats, err := f.analyticsSvc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalRequests)
	assert.Equal(t, 2, stats.OpenRequests)
	assert.Equal(t, 1, stats.ResolvedRequests)
	assert.Equal(t, 2, stats.ByStatus["new"])
	assert.Equal(t, 1, stats.ByCategory["pothole"])

	kpis, err := f.analyticsSvc.KPIs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, kpis.OpenRequests)
	assert.Equal(t, 10.0, kpis.AvgResolutionHours)
	assert.Equal(t, 10.0, kpis.P90ResolutionHours)
	assert.Equal(t, 4.0, kpis.AvgRating)
	assert.Equal(t, 1, kpis.RatingDistribution["4"])
	assert.Equal(t, 1, kpis.ActiveAgents)
	assert.Zero(t, kpis.BreachedCount)
	assert.Zero(t, kpis.SLABreachPercentage)
	assert.Equal(t, 1, kpis.BacklogByZone["Unknown"])
	assert.Equal(t, 1, kpis.BacklogByZone["ZONE-CENTER"])
}

func TestKPIsBreachPercentage(t *testing.T) {
	f := newFixture(t)
	f.submit(t, domain.CategoryTrash, domain.PriorityLow, outskirt)
	critical := f.submit(t, domain.CategoryTrash, domain.PriorityLow, outskirt)
	f.submit(t, domain.CategoryTrash, domain.PriorityLow, outskirt)
	_, err := f.requestSvc.OverridePriority(context.Background(), critical.ID, domain.PriorityCritical, "", staff)
	require.NoError(t, err)
	f.clock.Advance(40 * time.Hour)

	kpis, err := f.analyticsSvc.KPIs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, kpis.BreachedCount)
	assert.Equal(t, 33.3, kpis.SLABreachPercentage)
}

func TestHeatmapWeightsByPriorityAndAge(t *testing.T) {
	f := newFixture(t)
	_, pothole, _ := seedAnalytics(t, f)

	heat, err := f.analyticsSvc.Heatmap(context.Background(), HeatmapFilter{})
	require.NoError(t, err)
	assert.Equal(t, "FeatureCollection", heat.Type)
	require.Len(t, heat.Features, 2)

	var found bool
	for _, feature := range heat.Features {
		if feature.Properties["request_id"] == pothole.ID {
			found = true
			assert.Equal(t, 1.0, feature.Properties["weight"], "medium priority aged one day")
			assert.Equal(t, []float64{center.Lon, center.Lat}, feature.Geometry.Coordinates)
		}
	}
	assert.True(t, found)
	require.NotEmpty(t, heat.Hotspots)
	assert.Equal(t, 1, heat.Hotspots[0].Count)

	category := domain.CategoryLighting
	filtered, err := f.analyticsSvc.Heatmap(context.Background(), HeatmapFilter{Category: &category})
	require.NoError(t, err)
	assert.Len(t, filtered.Features, 1)

	bogus := domain.Priority("urgent")
	_, err = f.analyticsSvc.Heatmap(context.Background(), HeatmapFilter{Priority: &bogus})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestAgentZoneAndTimelineViews(t *testing.T) {
	f := newFixture(t)
	seedAnalytics(t, f)
	ctx := context.Background()

	agents, err := f.analyticsSvc.Agents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, 1, agents[0].CompletedTasks)
	assert.Equal(t, 0, agents[0].ActiveTasks)
	assert.Equal(t, 4.0, agents[0].AvgRating)

	zones, err := f.analyticsSvc.Zones(ctx)
	require.NoError(t, err)
	require.Len(t, zones, 2)
	assert.Equal(t, ZoneStats{ZoneID: "ZONE-CENTER", Total: 2, Open: 1, Resolved: 1}, zones[0])
	assert.Equal(t, "Unknown", zones[1].ZoneID)

	timeline, err := f.analyticsSvc.Timeline(ctx, 7)
	require.NoError(t, err)
	require.Len(t, timeline, 1)
	assert.Equal(t, "2026-03-02", timeline[0].Date)
	assert.Equal(t, 3, timeline[0].Count)
	assert.Equal(t, 1, timeline[0].Resolved)

	_, err = f.analyticsSvc.Timeline(ctx, 0)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	cohorts, err := f.analyticsSvc.Cohorts(ctx, 4)
	require.NoError(t, err)
	require.Len(t, cohorts, 1)
	assert.Equal(t, "2026-W10", cohorts[0].Week)
	assert.Equal(t, 3, cohorts[0].Created)
	assert.Equal(t, 1, cohorts[0].WithinSLA)
}
