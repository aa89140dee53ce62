// Package session implements server-side sessions. Records live in the
// store keyed by a random session id; the id travels in a signed JWT so a
// forged cookie cannot name an arbitrary session, and sign-out revokes the
// record server-side.
package session

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"inkdraft/pkg/apperr"
)

type Session struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type claims struct {
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

type Store struct {
	mu       sync.Mutex
	sessions map[string]Session
	secret   []byte
	ttl      time.Duration
}

func NewStore(secret []byte, ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[string]Session),
		secret:   secret,
		ttl:      ttl,
	}
}

// Create opens a session for userID and returns it with its signed token.
func (s *Store) Create(userID int64) (Session, string, error) {
	sid, err := generateSessionID()
	if err != nil {
		return Session{}, "", err
	}
	now := time.Now()
	sess := Session{
		ID:        sid,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		SID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return Session{}, "", err
	}

	s.mu.Lock()
	s.sessions[sid] = sess
	s.mu.Unlock()
	return sess, signed, nil
}

// Resolve validates the signed token and returns the live session behind it.
func (s *Store) Resolve(tokenString string) (Session, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return Session{}, apperr.New(apperr.Unauthenticated, "invalid or expired session token")
	}

	s.mu.Lock()
	sess, ok := s.sessions[c.SID]
	if ok && time.Now().After(sess.ExpiresAt) {
		delete(s.sessions, c.SID)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		return Session{}, apperr.New(apperr.Unauthenticated, "session not found")
	}
	return sess, nil
}

// Destroy revokes the session behind the token. Unknown tokens are a no-op;
// sign-out is idempotent.
func (s *Store) Destroy(tokenString string) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return
	}
	s.mu.Lock()
	delete(s.sessions, c.SID)
	s.mu.Unlock()
}

func generateSessionID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:]), nil
}
