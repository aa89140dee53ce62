package router

import (
	"database/sql"
	"net/http"
	"strconv"

	"inkdraft/config"
	"inkdraft/internal/ai"
	authHandler "inkdraft/internal/auth"
	docHandler "inkdraft/internal/document"
	"inkdraft/internal/document/repository"
	"inkdraft/internal/document/service"
	"inkdraft/internal/google"
	"inkdraft/internal/session"
	syncpkg "inkdraft/internal/sync"
	"inkdraft/internal/user"
	"inkdraft/middleware"
	"inkdraft/pkg/httpx"
	"inkdraft/socket"
)

func Setup(cfg config.Config, db *sql.DB, hub *socket.Hub, googleClient *google.Client, aiClient *ai.Client) http.Handler {
	mux := http.NewServeMux()

	users := user.NewRepository(db)
	docRepo := repository.NewDocumentRepository(db)
	coordinator := syncpkg.NewCoordinator(users, docRepo, googleClient)
	docService := service.NewDocumentService(docRepo, coordinator, aiClient, hub)

	sessions := session.NewStore([]byte(cfg.SessionSecret), cfg.SessionTTL)
	auth := middleware.Auth(sessions)

	authH := authHandler.NewHandler(googleClient, users, sessions)
	docH := docHandler.NewDocumentHandler(docService)

	// WebSocket event feed; access is checked before the room join.
	wsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserID(r)
		docID, err := strconv.ParseInt(r.URL.Query().Get("docId"), 10, 64)
		if err != nil || docID < 1 {
			http.Error(w, "Missing or invalid docId parameter", http.StatusBadRequest)
			return
		}
		if err := docService.CheckAccess(r.Context(), userID, docID); err != nil {
			httpx.Error(w, err)
			return
		}
		socket.ServeWs(hub, w, r, userID)
	})
	mux.Handle("/ws", auth(wsHandler))

	// Auth
	mux.HandleFunc("/api/auth/google", authH.GoogleSignIn)
	mux.HandleFunc("/api/auth/google/callback", authH.GoogleCallback)
	mux.HandleFunc("/api/auth/signout", authH.SignOut)
	mux.Handle("/api/auth/me", auth(http.HandlerFunc(authH.Me)))

	// Documents
	mux.Handle("/api/documents", auth(http.HandlerFunc(docH.ListDocuments)))
	mux.Handle("/api/documents/create", auth(http.HandlerFunc(docH.CreateDocument)))
	mux.Handle("/api/documents/get", auth(http.HandlerFunc(docH.GetDocument)))
	mux.Handle("/api/documents/save", auth(http.HandlerFunc(docH.SaveDocument)))
	mux.Handle("/api/documents/delete", auth(http.HandlerFunc(docH.DeleteDocument)))
	mux.Handle("/api/documents/suggest", auth(http.HandlerFunc(docH.Suggest)))
	mux.Handle("/api/documents/suggestions", auth(http.HandlerFunc(docH.Suggestions)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return middleware.CORSMiddleware(cfg.CORSAllowedOrigins, mux)
}
