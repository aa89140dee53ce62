package user

import (
	"context"
	"database/sql"
	"errors"

	"inkdraft/pkg/apperr"
	"inkdraft/pkg/logger"
)

// Repository owns the users table, including the stored token pair.
type Repository struct {
	DB *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{DB: db}
}

func (r *Repository) GetByID(ctx context.Context, id int64) (User, error) {
	var u User
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, google_id, email, name, access_token, refresh_token, created_at, updated_at
		 FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.GoogleID, &u.Email, &u.Name, &u.AccessToken, &u.RefreshToken, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, apperr.New(apperr.NotFound, "user not found")
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to get user %d: %v", id, err)
		return User{}, err
	}
	return u, nil
}

func (r *Repository) GetByGoogleID(ctx context.Context, googleID string) (User, error) {
	var u User
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, google_id, email, name, access_token, refresh_token, created_at, updated_at
		 FROM users WHERE google_id = $1`, googleID).
		Scan(&u.ID, &u.GoogleID, &u.Email, &u.Name, &u.AccessToken, &u.RefreshToken, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, apperr.New(apperr.NotFound, "user not found")
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to get user by google id: %v", err)
		return User{}, err
	}
	return u, nil
}

// Create inserts a new user on first sign-in and returns the assigned id.
func (r *Repository) Create(ctx context.Context, u User) (User, error) {
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO users (google_id, email, name, access_token, refresh_token, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		 RETURNING id, created_at, updated_at`,
		u.GoogleID, u.Email, u.Name, u.AccessToken, u.RefreshToken).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to create user: %v", err)
		return User{}, err
	}
	return u, nil
}

// Tokens returns the user's live token pair.
func (r *Repository) Tokens(ctx context.Context, userID int64) (TokenPair, error) {
	var pair TokenPair
	err := r.DB.QueryRowContext(ctx,
		`SELECT access_token, refresh_token FROM users WHERE id = $1`, userID).
		Scan(&pair.AccessToken, &pair.RefreshToken)
	if errors.Is(err, sql.ErrNoRows) {
		return TokenPair{}, apperr.New(apperr.NotFound, "user not found")
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to get tokens for user %d: %v", userID, err)
		return TokenPair{}, err
	}
	return pair, nil
}

// SetTokens overwrites the stored token pair. Last writer wins; the single
// UPDATE is the only atomicity concurrent refreshes need.
func (r *Repository) SetTokens(ctx context.Context, userID int64, accessToken, refreshToken string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET access_token = $1, refresh_token = $2, updated_at = NOW() WHERE id = $3`,
		accessToken, refreshToken, userID)
	if err != nil {
		logger.Sugar.Errorf("Failed to set tokens for user %d: %v", userID, err)
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.NotFound, "user not found")
	}
	return nil
}
