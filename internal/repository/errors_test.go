package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"greenroom/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return gormDB, mock
}

func TestGetByEmailStorageUnavailable(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewAccessRequestRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "access_requests" WHERE email = $1 ORDER BY "access_requests"."id" LIMIT $2`)).
		WithArgs("down@example.com", 1).
		WillReturnError(errors.New("dial tcp 127.0.0.1:5432: connection refused"))

	req, err := repo.GetByEmail(ctx, "down@example.com")
	assert.Nil(t, req)
	require.Error(t, err)

	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, models.CodeStorageUnavailable, appErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMapStoreError(t *testing.T) {
	assert.NoError(t, mapStoreError(nil))

	unavailable := mapStoreError(errors.New("write: broken pipe"))
	var appErr *models.AppError
	require.True(t, errors.As(unavailable, &appErr))
	assert.Equal(t, models.CodeStorageUnavailable, appErr.Code)

	internal := mapStoreError(errors.New("syntax error at or near"))
	require.True(t, errors.As(internal, &appErr))
	assert.Equal(t, models.CodeInternal, appErr.Code)

	// Domain errors pass through untouched.
	conflict := models.NewConflictError("already exists", nil)
	assert.Equal(t, conflict, mapStoreError(conflict))
}

func TestIsUniqueConstraintError(t *testing.T) {
	assert.True(t, isUniqueConstraintError(errors.New(`duplicate key value violates unique constraint "idx_access_requests_email"`)))
	assert.True(t, isUniqueConstraintError(errors.New("UNIQUE constraint failed: access_requests.email")))
	assert.True(t, isUniqueConstraintError(errors.New("ERROR: duplicate key (SQLSTATE 23505)")))
	assert.False(t, isUniqueConstraintError(errors.New("connection refused")))
	assert.False(t, isUniqueConstraintError(nil))
}
