package assignment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/civic-requests/internal/domain"
	"github.com/spec-kit/civic-requests/internal/geo"
	"github.com/spec-kit/civic-requests/internal/policy"
	apperrors "github.com/spec-kit/civic-requests/pkg/util/errorutil"
)

// Monday 2026-03-02 10:00 UTC.
var monday10 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func box(minLon, minLat, maxLon, maxLat float64) domain.Polygon {
	return domain.Polygon{Type: "Polygon", Coordinates: [][][]float64{{
		{minLon, minLat}, {maxLon, minLat}, {maxLon, maxLat}, {minLon, maxLat}, {minLon, minLat},
	}}}
}

func newSelector() *Selector {
	idx := geo.NewIndex(nil)
	idx.ReplaceZones([]domain.Zone{
		{ZoneID: "ZONE-CENTER", Boundary: box(35.20, 31.76, 35.23, 31.79)},
		{ZoneID: "ZONE-NORTH", Boundary: box(35.20, 31.80, 35.23, 31.83)},
	})
	return NewSelector(idx, policy.Default(), time.UTC)
}

func dayShift() domain.Schedule {
	return domain.Schedule{Shifts: []domain.Shift{{Day: "mon", Start: "08:00", End: "16:00"}}}
}

func agent(id, code string, workload int) *domain.Agent {
	return &domain.Agent{
		ID:              id,
		Code:            code,
		Skills:          []string{"roads"},
		Coverage:        domain.Coverage{ZoneIDs: []string{"ZONE-CENTER"}},
		Schedule:        dayShift(),
		CurrentWorkload: workload,
		Active:          true,
	}
}

func potholeRequest() *domain.ServiceRequest {
	return &domain.ServiceRequest{
		ID:       "CST-2026-0001",
		Category: domain.CategoryPothole,
		Location: domain.Location{Lon: 35.21, Lat: 31.77},
	}
}

func TestSelectRanksByWorkloadThenCode(t *testing.T) {
	s := newSelector()
	agents := []*domain.Agent{
		agent("a3", "AG-003", 1),
		agent("a2", "AG-002", 0),
		agent("a1", "AG-001", 0),
	}

	chosen, err := s.Select(potholeRequest(), agents, monday10)
	require.NoError(t, err)
	assert.Equal(t, "a1", chosen.ID)

	agents[2].CurrentWorkload = 2
	chosen, err = s.Select(potholeRequest(), agents, monday10)
	require.NoError(t, err)
	assert.Equal(t, "a2", chosen.ID)
}

func TestSelectIsDeterministic(t *testing.T) {
	s := newSelector()
	agents := []*domain.Agent{agent("a2", "AG-B", 0), agent("a1", "AG-A", 0), agent("a3", "AG-C", 0)}
	reversed := []*domain.Agent{agents[2], agents[1], agents[0]}

	first, err := s.Select(potholeRequest(), agents, monday10)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := s.Select(potholeRequest(), reversed, monday10)
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
	}
}

func TestSelectFilters(t *testing.T) {
	s := newSelector()

	inactive := agent("inactive", "AG-1", 0)
	inactive.Active = false
	outside := agent("outside", "AG-2", 0)
	outside.Coverage.ZoneIDs = []string{"ZONE-NORTH"}
	unskilled := agent("unskilled", "AG-3", 0)
	unskilled.Skills = []string{"sanitation"}
	offShift := agent("off", "AG-4", 0)
	offShift.Schedule = domain.Schedule{Shifts: []domain.Shift{{Day: "tue", Start: "08:00", End: "16:00"}}}

	_, err := s.Select(potholeRequest(), []*domain.Agent{inactive, outside, unskilled, offShift}, monday10)
	require.ErrorIs(t, err, apperrors.ErrNoMatch)
	de := apperrors.ToDomainError(err)
	assert.Equal(t, 1, de.Details[RejectInactive])
	assert.Equal(t, 1, de.Details[RejectCoverage])
	assert.Equal(t, 1, de.Details[RejectSkill])
	assert.Equal(t, 1, de.Details[RejectSchedule])
	assert.Equal(t, 4, de.Details["candidates"])

	offShift.Schedule.OnCall = true
	chosen, err := s.Select(potholeRequest(), []*domain.Agent{inactive, outside, unskilled, offShift}, monday10)
	require.NoError(t, err)
	assert.Equal(t, "off", chosen.ID)
}

func TestSelectEmptyRoster(t *testing.T) {
	_, err := newSelector().Select(potholeRequest(), nil, monday10)
	assert.ErrorIs(t, err, apperrors.ErrNoMatch)
}

func TestCoverageByGeoFence(t *testing.T) {
	s := newSelector()
	fenced := agent("fenced", "AG-F", 0)
	fenced.Coverage = domain.Coverage{GeoFence: box(35.0, 31.0, 35.1, 31.1)}

	req := potholeRequest()
	req.Location = domain.Location{Lon: 35.05, Lat: 31.05}
	assert.True(t, s.Covers(fenced, req.Location))
	assert.False(t, s.Covers(agent("z", "AG-Z", 0), req.Location))

	// Zone ids without a matching boundary are not coverage.
	ghost := agent("ghost", "AG-G", 0)
	ghost.Coverage.ZoneIDs = []string{"ZONE-UNKNOWN"}
	assert.False(t, s.Covers(ghost, potholeRequest().Location))
}

func TestCheckManual(t *testing.T) {
	s := newSelector()
	req := potholeRequest()

	// Skill and schedule are not enforced for manual assignment.
	manual := agent("m", "AG-M", 5)
	manual.Skills = nil
	manual.Schedule = domain.Schedule{}
	assert.NoError(t, s.CheckManual(manual, req))

	manual.Active = false
	assert.ErrorIs(t, s.CheckManual(manual, req), apperrors.ErrIneligibleAgent)

	outside := agent("o", "AG-O", 0)
	outside.Coverage.ZoneIDs = []string{"ZONE-NORTH"}
	assert.ErrorIs(t, s.CheckManual(outside, req), apperrors.ErrIneligibleAgent)
}

func TestOnShift(t *testing.T) {
	night := domain.Schedule{Shifts: []domain.Shift{{Day: "mon", Start: "22:00", End: "06:00"}}}
	assert.True(t, OnShift(night, time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC), time.UTC))
	assert.True(t, OnShift(night, time.Date(2026, 3, 3, 5, 59, 0, 0, time.UTC), time.UTC), "tuesday early morning")
	assert.False(t, OnShift(night, time.Date(2026, 3, 3, 6, 0, 0, 0, time.UTC), time.UTC))
	assert.False(t, OnShift(night, time.Date(2026, 3, 2, 5, 0, 0, 0, time.UTC), time.UTC), "monday early morning belongs to sunday")

	day := dayShift()
	assert.True(t, OnShift(day, monday10, time.UTC))
	assert.False(t, OnShift(day, time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC), time.UTC))
	assert.False(t, OnShift(day, time.Date(2026, 3, 2, 7, 59, 0, 0, time.UTC), time.UTC))

	daily := domain.Schedule{Shifts: []domain.Shift{{Day: "daily", Start: "00:00", End: "00:00"}}}
	assert.True(t, OnShift(daily, time.Date(2026, 3, 7, 3, 0, 0, 0, time.UTC), time.UTC))

	assert.False(t, OnShift(domain.Schedule{Shifts: []domain.Shift{{Day: "funday", Start: "00:00", End: "23:00"}}}, monday10, time.UTC))
}

func TestOnShiftUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	day := dayShift()
	// 06:00 UTC is 09:00 local on Monday.
	assert.True(t, OnShift(day, time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC), loc))
	assert.False(t, OnShift(day, time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC), time.UTC))
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule(dayShift()))
	assert.NoError(t, ValidateSchedule(domain.Schedule{Shifts: []domain.Shift{{Day: "Friday", Start: "18:00", End: "24:00"}}}))
	assert.Error(t, ValidateSchedule(domain.Schedule{Shifts: []domain.Shift{{Day: "someday", Start: "08:00", End: "16:00"}}}))
	assert.Error(t, ValidateSchedule(domain.Schedule{Shifts: []domain.Shift{{Day: "mon", Start: "25:00", End: "16:00"}}}))
	assert.Error(t, ValidateSchedule(domain.Schedule{Shifts: []domain.Shift{{Day: "mon", Start: "08:00", End: "late"}}}))
}
