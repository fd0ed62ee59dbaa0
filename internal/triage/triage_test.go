package triage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/civic-requests/internal/domain"
	"github.com/spec-kit/civic-requests/internal/geo"
	"github.com/spec-kit/civic-requests/internal/policy"
	apperrors "github.com/spec-kit/civic-requests/pkg/util/errorutil"
)

var (
	nearHospital = domain.Location{Lon: 35.2140, Lat: 31.7685}
	nearSchool   = domain.Location{Lon: 35.2433, Lat: 31.7892}
	farAway      = domain.Location{Lon: 35.1000, Lat: 31.6000}
)

func newEngine() *Engine {
	reg := policy.Default()
	return NewEngine(geo.NewIndex(reg.Sensitive), reg)
}

func TestWaterLeakNearHospitalEscalates(t *testing.T) {
	res, err := newEngine().Triage(domain.CategoryWaterLeak, domain.PriorityMedium, nearHospital)
	require.NoError(t, err)

	assert.True(t, res.HighImpact)
	assert.True(t, res.Escalated)
	assert.Equal(t, domain.PriorityHigh, res.FinalPriority)
	assert.NotEmpty(t, res.Reason)
	assert.Contains(t, res.Reason, "Hadassah Hospital")
	require.NotEmpty(t, res.Nearby)
	assert.Equal(t, "hospital", res.Nearby[0].Type)

	meta := res.Metadata(domain.PriorityMedium)
	assert.Equal(t, domain.PriorityMedium, meta.OriginalPriority)
	assert.True(t, meta.PriorityEscalated)
	assert.Equal(t, res.Reason, meta.EscalationReason)
}

func TestFarFromSensitiveNeverEscalates(t *testing.T) {
	engine := newEngine()
	for _, c := range domain.AllCategories {
		for _, p := range domain.AllPriorities {
			res, err := engine.Triage(c, p, farAway)
			require.NoError(t, err)
			assert.False(t, res.Escalated, "%s/%s", c, p)
			assert.False(t, res.HighImpact)
			assert.Equal(t, p, res.FinalPriority)
			assert.Empty(t, res.Reason)
		}
	}
}

func TestHospitalFloorRaisesLowPriority(t *testing.T) {
	res, err := newEngine().Triage(domain.CategoryPothole, domain.PriorityLow, nearHospital)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityMedium, res.FinalPriority)
	assert.True(t, res.Escalated)
	assert.Contains(t, res.Reason, "request near hospital")
}

func TestRulesAccumulateInOrder(t *testing.T) {
	// Step rule lifts low to medium, floor rule is then already satisfied.
	res, err := newEngine().Triage(domain.CategorySewage, domain.PriorityLow, nearHospital)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityMedium, res.FinalPriority)
	assert.NotContains(t, res.Reason, ";")
}

func TestNearSchoolOnlyAppliesUntypedRules(t *testing.T) {
	engine := newEngine()

	res, err := engine.Triage(domain.CategoryPothole, domain.PriorityLow, nearSchool)
	require.NoError(t, err)
	assert.True(t, res.HighImpact)
	assert.False(t, res.Escalated)

	res, err = engine.Triage(domain.CategoryWaterLeak, domain.PriorityHigh, nearSchool)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityCritical, res.FinalPriority)
}

func TestCriticalIsCapped(t *testing.T) {
	res, err := newEngine().Triage(domain.CategoryWaterLeak, domain.PriorityCritical, nearHospital)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityCritical, res.FinalPriority)
	assert.False(t, res.Escalated)
	assert.True(t, res.HighImpact)
}

func TestTriageIsDeterministic(t *testing.T) {
	engine := newEngine()
	first, err := engine.Triage(domain.CategoryWaterLeak, domain.PriorityLow, nearHospital)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := engine.Triage(domain.CategoryWaterLeak, domain.PriorityLow, nearHospital)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestTriageRejectsInvalidInput(t *testing.T) {
	engine := newEngine()

	_, err := engine.Triage(domain.Category("volcano"), domain.PriorityLow, farAway)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = engine.Triage(domain.CategoryTrash, domain.Priority("urgent"), farAway)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = engine.Triage(domain.CategoryTrash, domain.PriorityLow, domain.Location{Lon: 200, Lat: 0})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
