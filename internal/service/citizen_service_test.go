package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/civic-requests/internal/config"
	"github.com/spec-kit/civic-requests/internal/domain"
	"github.com/spec-kit/civic-requests/internal/repository/memory"
	apperrors "github.com/spec-kit/civic-requests/pkg/util/errorutil"
)

func newCitizenService(store *memory.CitizenStore) *CitizenService {
	return NewCitizenService(config.AuthConfig{
		JWTSecret:             "test-secret",
		AccessTokenTTLMinutes: 30,
		BcryptCost:            bcrypt.MinCost,
	}, CitizenDependencies{CitizenRepo: store})
}

func TestRegisterLoginVerify(t *testing.T) {
	ctx := context.Background()
	svc := newCitizenService(memory.NewCitizenStore())

	session, err := svc.Register(ctx, RegisterInput{
		FullName: "Dana Levi",
		Email:    " Dana@Example.com ",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	assert.Equal(t, "dana@example.com", session.Citizen.Email)
	assert.Equal(t, "email", session.Citizen.PreferredContact)
	assert.Equal(t, domain.VerificationUnverified, session.Citizen.VerificationState)
	assert.NotEmpty(t, session.Token)

	claims, err := svc.TokenManager().ParseToken(session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.Citizen.ID, claims.SubjectID)
	assert.Equal(t, domain.SubjectTypeCitizen, claims.Subject)

	_, err = svc.Register(ctx, RegisterInput{FullName: "Copy", Email: "dana@example.com", Password: "another-pass"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = svc.Login(ctx, "dana@example.com", "wrong-password")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	_, err = svc.Login(ctx, "nobody@example.com", "correct-horse")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	again, err := svc.Login(ctx, "DANA@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, session.Citizen.ID, again.Citizen.ID)

	_, err = svc.Verify(ctx, session.Citizen.ID, "12ab56")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	verified, err := svc.Verify(ctx, session.Citizen.ID, "123456")
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationVerified, verified.VerificationState)
	require.NotNil(t, verified.VerifiedAt)
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	svc := newCitizenService(memory.NewCitizenStore())

	cases := map[string]RegisterInput{
		"missing name":     {Email: "a@example.com", Password: "long-enough"},
		"bad email":        {FullName: "A", Email: "not-an-email", Password: "long-enough"},
		"short password":   {FullName: "A", Email: "a@example.com", Password: "short"},
		"unknown contact":  {FullName: "A", Email: "a@example.com", Password: "long-enough", PreferredContact: "pigeon"},
		"phone without no": {FullName: "A", Email: "a@example.com", Password: "long-enough", PreferredContact: "phone"},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Register(ctx, input)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
		})
	}
}

func TestCreateForRegisteredCitizen(t *testing.T) {
	f := newFixture(t)
	svc := newCitizenService(f.citizens)
	session, err := svc.Register(context.Background(), RegisterInput{FullName: "Avi", Email: "avi@example.com", Password: "long-enough"})
	require.NoError(t, err)

	req, err := f.requestSvc.Create(context.Background(), CreateRequestInput{
		CitizenID: session.Citizen.ID,
		Category:  domain.CategorySignage,
		Location:  &center,
	})
	require.NoError(t, err)
	assert.Equal(t, session.Citizen.ID, req.CitizenID)

	mine := session.Citizen.ID
	items, total, err := f.requestSvc.List(context.Background(), RequestListFilter{CitizenID: &mine})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, items, 1)
}

func TestListCitizensInRegistrationOrder(t *testing.T) {
	ctx := context.Background()
	svc := newCitizenService(memory.NewCitizenStore())
	var ids []string
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		session, err := svc.Register(ctx, RegisterInput{FullName: email, Email: email, Password: "long-enough"})
		require.NoError(t, err)
		ids = append(ids, session.Citizen.ID)
	}

	all, total, err := svc.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, all, 3)
	got := []string{all[0].ID, all[1].ID, all[2].ID}
	assert.ElementsMatch(t, ids, got)

	second, total, err := svc.List(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, second, 1)
	assert.Equal(t, all[1].ID, second[0].ID)

	empty, _, err := svc.List(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
