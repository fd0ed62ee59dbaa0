package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelMatchingByCode(t *testing.T) {
	err := NewInvalidTransition("new", "closed", []string{"triaged"})
	wrapped := fmt.Errorf("transition: %w", err)

	assert.ErrorIs(t, wrapped, ErrInvalidTransition)
	assert.NotErrorIs(t, wrapped, ErrOutOfOrderMilestone)
	assert.True(t, HasCode(wrapped, CodeInvalidTransition))
}

func TestToDomainError(t *testing.T) {
	t.Run("keeps domain errors", func(t *testing.T) {
		de := ToDomainError(NewAlreadyRated("CST-2026-0001"))
		require.NotNil(t, de)
		assert.Equal(t, CodeAlreadyRated, de.Code)
		assert.Equal(t, http.StatusConflict, de.HTTPStatus)
	})

	t.Run("maps no rows to not found", func(t *testing.T) {
		de := ToDomainError(pgx.ErrNoRows)
		assert.Equal(t, CodeNotFound, de.Code)
		assert.Equal(t, http.StatusNotFound, de.HTTPStatus)
	})

	t.Run("wraps unknown errors as internal", func(t *testing.T) {
		cause := errors.New("boom")
		de := ToDomainError(cause)
		assert.Equal(t, CodeInternal, de.Code)
		assert.ErrorIs(t, de, cause)
	})

	t.Run("does not mutate sentinels", func(t *testing.T) {
		de := ToDomainError(ErrNoMatch)
		assert.Equal(t, http.StatusInternalServerError, de.HTTPStatus)
		assert.Equal(t, 0, ErrNoMatch.HTTPStatus)
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, ToDomainError(nil))
		assert.NoError(t, MapError(nil))
	})
}

func TestNoMatchDetails(t *testing.T) {
	err := NewNoMatch("CST-2026-0007", map[string]any{"candidates": 4})
	de := ToDomainError(err)
	assert.Equal(t, "CST-2026-0007", de.Details["request_id"])
	assert.Equal(t, 4, de.Details["candidates"])
	assert.Equal(t, http.StatusUnprocessableEntity, de.HTTPStatus)
}
