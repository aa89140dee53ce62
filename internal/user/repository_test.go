package user

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkdraft/pkg/apperr"
)

var userColumns = []string{"id", "google_id", "email", "name", "access_token", "refresh_token", "created_at", "updated_at"}

func TestGetByGoogleID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT id, google_id, email, name, access_token, refresh_token, created_at, updated_at\s+FROM users WHERE google_id = \$1`).
		WithArgs("g-123").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(int64(7), "g-123", "writer@example.com", "Writer", "at-1", "rt-1", now, now))

	u, err := NewRepository(db).GetByGoogleID(context.Background(), "g-123")
	require.NoError(t, err)
	assert.Equal(t, int64(7), u.ID)
	assert.Equal(t, "writer@example.com", u.Email)
	assert.Equal(t, "at-1", u.AccessToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT id, google_id`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(userColumns))

	_, err = NewRepository(db).GetByID(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestCreateUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO users \(google_id, email, name, access_token, refresh_token, created_at, updated_at\)`).
		WithArgs("g-123", "writer@example.com", "Writer", "at-1", "rt-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(1), now, now))

	u, err := NewRepository(db).Create(context.Background(), User{
		GoogleID:     "g-123",
		Email:        "writer@example.com",
		Name:         "Writer",
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokens(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT access_token, refresh_token FROM users WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"access_token", "refresh_token"}).AddRow("at-1", "rt-1"))

	pair, err := NewRepository(db).Tokens(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "at-1", pair.AccessToken)
	assert.Equal(t, "rt-1", pair.RefreshToken)
}

func TestSetTokens(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE users SET access_token = \$1, refresh_token = \$2, updated_at = NOW\(\) WHERE id = \$3`).
		WithArgs("at-2", "rt-1", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewRepository(db).SetTokens(context.Background(), 7, "at-2", "rt-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetTokensUnknownUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE users SET access_token`).
		WithArgs("at-2", "rt-1", int64(404)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewRepository(db).SetTokens(context.Background(), 404, "at-2", "rt-1")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}
