package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/civic-requests/internal/auth"
	"github.com/spec-kit/civic-requests/internal/domain"
)

func TestTokenCommandMintsStaffToken(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "cli-secret")
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"token", "--id", "op-7", "--role", "supervisor"}, &out))

	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &body))
	claims, err := auth.NewTokenManager("cli-secret", 60).ParseToken(body.Token)
	require.NoError(t, err)
	assert.Equal(t, "op-7", claims.SubjectID)
	assert.Equal(t, domain.SubjectTypeStaff, claims.Subject)
	require.NotNil(t, claims.Role)
	assert.Equal(t, domain.StaffRoleSupervisor, *claims.Role)
}

func TestTokenCommandRejectsBadInput(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, run(context.Background(), []string{"token"}, &out))
	assert.Error(t, run(context.Background(), []string{"token", "--id", "x", "--subject", "robot"}, &out))
	assert.Error(t, run(context.Background(), []string{"token", "--id", "x", "--role", "janitor"}, &out))
}

func TestSweepCommandWithoutDatabase(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"sweep", "--timeout", "5s"}, &out))
	var report map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.EqualValues(t, 0, report["scanned"])
}

func TestPolicyCommand(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"policy"}, &out))
	assert.Contains(t, out.String(), "policy ok")

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("at_risk_ratio: 2\n"), 0o600))
	assert.Error(t, run(context.Background(), []string{"policy", "--file", path}, &out))
}

func TestUnknownCommand(t *testing.T) {
	assert.ErrorIs(t, run(context.Background(), []string{"frobnicate"}, &bytes.Buffer{}), errUsage)
	assert.ErrorIs(t, run(context.Background(), nil, &bytes.Buffer{}), errUsage)
}
