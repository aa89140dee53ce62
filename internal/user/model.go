package user

import "time"

// User represents a signed-in account. Exactly one token pair is live at a
// time; both columns are overwritten together on refresh.
type User struct {
	ID           int64     `json:"id"`
	GoogleID     string    `json:"-"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TokenPair is the live credential for the external document system.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
