// Package auth implements the Google sign-in flow: the consent redirect, the
// code exchange callback that provisions the local user and token pair, and
// session issuance.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"inkdraft/internal/google"
	"inkdraft/internal/session"
	"inkdraft/internal/user"
	"inkdraft/middleware"
	"inkdraft/pkg/apperr"
	"inkdraft/pkg/httpx"
	"inkdraft/pkg/logger"
)

const stateCookie = "inkdraft_oauth_state"

type Handler struct {
	Google   *google.Client
	Users    *user.Repository
	Sessions *session.Store
}

func NewHandler(googleClient *google.Client, users *user.Repository, sessions *session.Store) *Handler {
	return &Handler{Google: googleClient, Users: users, Sessions: sessions}
}

// GoogleSignIn redirects the browser to the consent screen.
func (h *Handler) GoogleSignIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state, err := randomState()
	if err != nil {
		httpx.Error(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.Google.AuthURL(state), http.StatusFound)
}

// GoogleCallback exchanges the authorization code, provisions or updates the
// local user with the fresh token pair, and opens a session.
func (h *Handler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stateParam := r.URL.Query().Get("state")
	cookie, err := r.Cookie(stateCookie)
	if err != nil || stateParam == "" || cookie.Value != stateParam {
		httpx.Error(w, apperr.New(apperr.Unauthenticated, "oauth state mismatch"))
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if code == "" {
		httpx.Error(w, apperr.New(apperr.Validation, "missing code parameter"))
		return
	}

	ctx := r.Context()
	accessToken, refreshToken, err := h.Google.ExchangeCode(ctx, code)
	if err != nil {
		logger.Sugar.Errorf("Code exchange failed: %v", err)
		httpx.Error(w, err)
		return
	}

	identity, err := h.Google.UserInfo(ctx, accessToken)
	if err != nil {
		logger.Sugar.Errorf("User info lookup failed: %v", err)
		httpx.Error(w, err)
		return
	}

	u, err := h.Users.GetByGoogleID(ctx, identity.ID)
	switch {
	case err == nil:
		if err := h.Users.SetTokens(ctx, u.ID, accessToken, refreshToken); err != nil {
			httpx.Error(w, err)
			return
		}
	case apperr.Is(err, apperr.NotFound):
		u, err = h.Users.Create(ctx, user.User{
			GoogleID:     identity.ID,
			Email:        identity.Email,
			Name:         identity.Name,
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
		})
		if err != nil {
			httpx.Error(w, err)
			return
		}
	default:
		httpx.Error(w, err)
		return
	}

	_, token, err := h.Sessions.Create(u.ID)
	if err != nil {
		logger.Sugar.Errorf("Failed to create session: %v", err)
		httpx.Error(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

// SignOut revokes the session server-side and clears the cookie. Signing out
// twice is fine.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if cookie, err := r.Cookie(middleware.SessionCookie); err == nil {
		h.Sessions.Destroy(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: middleware.SessionCookie, Value: "", Path: "/", MaxAge: -1})
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

// Me returns the authenticated user's profile.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	u, err := h.Users.GetByID(r.Context(), middleware.UserID(r))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
