package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_PORT", "")
	t.Setenv("TIMEZONE", "")
	t.Setenv("CONCURRENCY_MAX_RETRIES", "")
	t.Setenv("AUTH_ENFORCE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "civic-requests", cfg.App.Name)
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, time.UTC, cfg.App.Location())
	assert.Equal(t, 3, cfg.Concurrency.MaxRetries)
	assert.False(t, cfg.Auth.Enforce)
	assert.Equal(t, 5*time.Minute, cfg.SLA.SweepInterval())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("TIMEZONE", "Asia/Jerusalem")
	t.Setenv("CONCURRENCY_MAX_RETRIES", "5")
	t.Setenv("CONCURRENCY_BACKOFF_MS", "25")
	t.Setenv("AUTH_ENFORCE", "true")
	t.Setenv("SLA_SWEEP_INTERVAL_SECONDS", "0")
	t.Setenv("HTTP_REQUEST_TIMEOUT_SECONDS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, "Asia/Jerusalem", cfg.App.Location().String())
	assert.Equal(t, 5, cfg.Concurrency.MaxRetries)
	assert.Equal(t, 25*time.Millisecond, cfg.Concurrency.Backoff())
	assert.True(t, cfg.Auth.Enforce)
	assert.Zero(t, cfg.SLA.SweepInterval())
	assert.Equal(t, 30*time.Second, cfg.App.RequestTimeout())
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("REDIS_DB", "x")
	_, err := Load()
	assert.ErrorContains(t, err, "REDIS_DB")

	t.Setenv("REDIS_DB", "0")
	t.Setenv("TIMEZONE", "Mars/Olympus")
	_, err = Load()
	assert.ErrorContains(t, err, "TIMEZONE")
}
