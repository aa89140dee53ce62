// Package httpx holds the small helpers handlers use to write JSON responses
// and translate error kinds to transport statuses.
package httpx

import (
	"encoding/json"
	"net/http"

	"inkdraft/pkg/apperr"
	"inkdraft/pkg/logger"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// JSON writes v as a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Sugar.Errorf("Failed to encode response: %v", err)
	}
}

// Error maps err to a transport status plus a stable error code. Internal
// detail never reaches the client; the message comes from the apperr layer.
func Error(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	JSON(w, statusOf(kind), errorBody{
		Error:   kind.String(),
		Message: apperr.MessageOf(err),
	})
}

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.Unauthenticated:
		return http.StatusUnauthorized
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.ExternalAuth:
		return http.StatusUnauthorized
	case apperr.ExternalUnavailable:
		return http.StatusBadGateway
	case apperr.Generation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
