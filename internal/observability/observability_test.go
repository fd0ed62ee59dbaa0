package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/civic-requests/internal/config"
)

func TestMetricsRecordSweep(t *testing.T) {
	m := NewMetrics()
	m.RecordSweep(2, 1, 10, time.Second, nil)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.slaOpen.WithLabelValues("at_risk")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.slaOpen.WithLabelValues("breached")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.slaOpen.WithLabelValues("on_time")))

	m.RecordSweep(0, 0, 0, time.Second, errors.New("boom"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweepFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.slaOpen.WithLabelValues("at_risk")), "failed sweep keeps last gauges")
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.RecordTransition("assigned")
	m.RecordTransition("assigned")
	m.RecordAssignment("no_match")
	m.RecordRetry("transition")
	m.RecordError("/requests", "POST", "VALIDATION_FAILED")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("assigned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.assignments.WithLabelValues("no_match")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.versionRetries.WithLabelValues("transition")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpErrors.WithLabelValues("/requests", "POST", "VALIDATION_FAILED")))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.RecordTransition("closed") })
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger(config.LoggerConfig{Level: "verbose"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(0))
	assert.False(t, logger.Core().Enabled(-1))
}
