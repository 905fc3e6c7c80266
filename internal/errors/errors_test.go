package errors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	t.Run("message only", func(t *testing.T) {
		err := NotFound("job not found")
		assert.Equal(t, "job not found", err.Error())
	})

	t.Run("message with cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(cause, ErrCodeInternal, "insert job")
		assert.Equal(t, "insert job: connection refused", err.Error())
	})
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(cause, ErrCodeInternal, "wrapped")
	assert.ErrorIs(t, err, cause)
}

func TestWrap_NilError(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "ignored"))
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"direct app error", Conflict("duplicate"), ErrCodeConflict},
		{"wrapped app error", fmt.Errorf("outer: %w", Validation("bad field")), ErrCodeValidation},
		{"plain error", errors.New("plain"), ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", NotFound("missing"))
	assert.True(t, IsCode(err, ErrCodeNotFound))
	assert.False(t, IsCode(err, ErrCodeConflict))
	assert.False(t, IsCode(errors.New("plain"), ErrCodeNotFound))
}

func TestMapDBError(t *testing.T) {
	t.Run("nil passes through", func(t *testing.T) {
		assert.NoError(t, MapDBError(nil))
	})

	t.Run("unrecognized error passes through", func(t *testing.T) {
		err := errors.New("network unreachable")
		assert.Same(t, err, MapDBError(err))
	})

	t.Run("deadline exceeded maps to timeout", func(t *testing.T) {
		mapped := MapDBError(context.DeadlineExceeded)
		assert.Equal(t, ErrCodeTimeout, CodeOf(mapped))
		assert.ErrorIs(t, mapped, context.DeadlineExceeded)
	})

	t.Run("cancellation maps to canceled", func(t *testing.T) {
		mapped := MapDBError(context.Canceled)
		assert.Equal(t, ErrCodeCanceled, CodeOf(mapped))
	})

	t.Run("no rows maps to not found", func(t *testing.T) {
		mapped := MapDBError(fmt.Errorf("get job: %w", sql.ErrNoRows))
		assert.Equal(t, ErrCodeNotFound, CodeOf(mapped))
		assert.ErrorIs(t, mapped, sql.ErrNoRows)
	})

	t.Run("unique violation maps to conflict with field", func(t *testing.T) {
		pgErr := &pgconn.PgError{
			Code:   pgerrcode.UniqueViolation,
			Detail: "Key (org_id)=(org-1) already exists.",
		}
		mapped := MapDBError(pgErr)

		var appErr *AppError
		require.ErrorAs(t, mapped, &appErr)
		assert.Equal(t, ErrCodeConflict, appErr.Code)
		assert.Equal(t, "org_id", appErr.Field)
	})

	t.Run("unique violation prefers column metadata", func(t *testing.T) {
		pgErr := &pgconn.PgError{
			Code:       pgerrcode.UniqueViolation,
			ColumnName: "user_id",
			Detail:     "Key (org_id)=(org-1) already exists.",
		}
		mapped := MapDBError(pgErr)

		var appErr *AppError
		require.ErrorAs(t, mapped, &appErr)
		assert.Equal(t, "user_id", appErr.Field)
	})

	t.Run("foreign key violation names the referenced domain", func(t *testing.T) {
		pgErr := &pgconn.PgError{
			Code:      pgerrcode.ForeignKeyViolation,
			TableName: "case_files",
		}
		mapped := MapDBError(pgErr)

		var appErr *AppError
		require.ErrorAs(t, mapped, &appErr)
		assert.Equal(t, ErrCodeForeignKey, appErr.Code)
		assert.Contains(t, appErr.Message, "case file")
	})

	t.Run("check violation maps to validation", func(t *testing.T) {
		pgErr := &pgconn.PgError{
			Code:       pgerrcode.CheckViolation,
			ColumnName: "status",
		}
		mapped := MapDBError(pgErr)

		var appErr *AppError
		require.ErrorAs(t, mapped, &appErr)
		assert.Equal(t, ErrCodeValidation, appErr.Code)
		assert.Equal(t, "status", appErr.Field)
	})

	t.Run("not null violation maps to validation", func(t *testing.T) {
		pgErr := &pgconn.PgError{
			Code:       pgerrcode.NotNullViolation,
			ColumnName: "title",
		}
		mapped := MapDBError(pgErr)

		var appErr *AppError
		require.ErrorAs(t, mapped, &appErr)
		assert.Equal(t, ErrCodeValidation, appErr.Code)
		assert.Equal(t, "title", appErr.Field)
	})

	t.Run("other pg errors map to internal", func(t *testing.T) {
		pgErr := &pgconn.PgError{Code: pgerrcode.SerializationFailure}
		mapped := MapDBError(pgErr)

		var appErr *AppError
		require.ErrorAs(t, mapped, &appErr)
		assert.Equal(t, ErrCodeInternal, appErr.Code)
	})
}
