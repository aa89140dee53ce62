package middleware

import (
	"context"
	"net/http"
	"strings"

	"inkdraft/internal/session"
	"inkdraft/pkg/apperr"
	"inkdraft/pkg/httpx"
)

type contextKey string

const UserIDKey contextKey = "userID"

// SessionCookie is the cookie the auth callback sets.
const SessionCookie = "inkdraft_session"

// Auth resolves the caller's session and puts their user id on the request
// context. Without a valid session the request ends with Unauthenticated.
func Auth(store *session.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractToken(r)
			if tokenString == "" {
				httpx.Error(w, apperr.New(apperr.Unauthenticated, "no session token provided"))
				return
			}

			sess, err := store.Resolve(tokenString)
			if err != nil {
				httpx.Error(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, sess.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID returns the authenticated user id placed by Auth.
func UserID(r *http.Request) int64 {
	id, _ := r.Context().Value(UserIDKey).(int64)
	return id
}

func extractToken(r *http.Request) string {
	// For WebSockets, tokens are passed in the query string because the
	// browser's WebSocket API doesn't support custom headers.
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}
