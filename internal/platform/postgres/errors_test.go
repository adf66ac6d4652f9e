package postgres_test

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/gradloop/taskwell/internal/platform/postgres"
	"github.com/gradloop/taskwell/internal/store"
)

func TestMapError(t *testing.T) {
	t.Parallel()

	t.Run("nil passes through", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, postgres.MapError(nil))
	})

	t.Run("no rows becomes not found", func(t *testing.T) {
		t.Parallel()
		err := postgres.MapError(fmt.Errorf("query task: %w", sql.ErrNoRows))
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("unique violation becomes duplicate", func(t *testing.T) {
		t.Parallel()
		pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "tasks_pkey"}
		err := postgres.MapError(pgErr)
		assert.ErrorIs(t, err, store.ErrDuplicate)
	})

	t.Run("check violation becomes invalid entity", func(t *testing.T) {
		t.Parallel()
		pgErr := &pgconn.PgError{Code: "23514", ConstraintName: "tasks_attempt_check"}
		err := postgres.MapError(pgErr)
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
		assert.Contains(t, err.Error(), "tasks_attempt_check")
	})

	t.Run("not null violation becomes invalid entity", func(t *testing.T) {
		t.Parallel()
		err := postgres.MapError(&pgconn.PgError{Code: "23502"})
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
	})

	t.Run("wrapped driver error still maps", func(t *testing.T) {
		t.Parallel()
		wrapped := fmt.Errorf("insert task: %w", &pgconn.PgError{Code: "23505"})
		assert.ErrorIs(t, postgres.MapError(wrapped), store.ErrDuplicate)
	})

	t.Run("unrelated error unchanged", func(t *testing.T) {
		t.Parallel()
		plain := errors.New("connection refused")
		assert.Equal(t, plain, postgres.MapError(plain))
	})
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	assert.True(t, postgres.IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, postgres.IsUniqueViolation(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, postgres.IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, postgres.IsUniqueViolation(errors.New("not a pg error")))
	assert.False(t, postgres.IsUniqueViolation(nil))
}
