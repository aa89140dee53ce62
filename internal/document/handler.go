package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"inkdraft/internal/document/model"
	"inkdraft/internal/document/service"
	"inkdraft/internal/schema"
	"inkdraft/middleware"
	"inkdraft/pkg/apperr"
	"inkdraft/pkg/httpx"
	"inkdraft/pkg/logger"
)

type DocumentHandler struct {
	Service *service.DocumentService
}

func NewDocumentHandler(svc *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{Service: svc}
}

func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := middleware.UserID(r)
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 10)

	merged, err := h.Service.List(r.Context(), userID, page, limit)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to list documents: %v", err)
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, merged)
}

func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, req := decodeBody[model.CreateDocRequest](w, r, schema.CreateDocument)
	if body == nil {
		return
	}

	userID := middleware.UserID(r)
	doc, mirrorErr, err := h.Service.Create(r.Context(), userID, *req)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to create document: %v", err)
		httpx.Error(w, err)
		return
	}

	// The document persisted locally even when the mirror could not be
	// created; surface both outcomes in one response.
	resp := map[string]any{"document": doc}
	if mirrorErr != nil {
		resp["mirror_error"] = apperr.KindOf(mirrorErr).String()
	}
	httpx.JSON(w, http.StatusCreated, resp)
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	docID, ok := docIDParam(w, r)
	if !ok {
		return
	}

	detail, err := h.Service.Get(r.Context(), middleware.UserID(r), docID)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *DocumentHandler) SaveDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, req := decodeBody[model.SaveDocRequest](w, r, schema.SaveDocument)
	if body == nil {
		return
	}

	doc, err := h.Service.Save(r.Context(), middleware.UserID(r), *req)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to save document %d: %v", req.DocID, err)
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	docID, ok := docIDParam(w, r)
	if !ok {
		return
	}

	if err := h.Service.Delete(r.Context(), middleware.UserID(r), docID); err != nil {
		logger.Sugar.Errorf("Handler: Failed to delete document %d: %v", docID, err)
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *DocumentHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, req := decodeBody[model.SuggestRequest](w, r, schema.Suggest)
	if body == nil {
		return
	}

	suggestion, err := h.Service.Suggest(r.Context(), middleware.UserID(r), *req)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to create suggestion for document %d: %v", req.DocID, err)
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, suggestion)
}

func (h *DocumentHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	docID, ok := docIDParam(w, r)
	if !ok {
		return
	}

	suggestions, err := h.Service.SuggestionHistory(r.Context(), middleware.UserID(r), docID)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, suggestions)
}

// decodeBody reads, schema-validates, and unmarshals a request body. On
// failure it writes the error response and returns a nil body.
func decodeBody[T any](w http.ResponseWriter, r *http.Request, schemaName string) ([]byte, *T) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httpx.Error(w, apperr.Wrap(apperr.Validation, "failed to read request body", err))
		return nil, nil
	}
	if err := schema.Validate(schemaName, body); err != nil {
		httpx.Error(w, err)
		return nil, nil
	}
	var req T
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.Error(w, apperr.Wrap(apperr.Validation, "invalid request body", err))
		return nil, nil
	}
	return body, &req
}

func docIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	docID, err := strconv.ParseInt(r.URL.Query().Get("docId"), 10, 64)
	if err != nil || docID < 1 {
		httpx.Error(w, apperr.New(apperr.Validation, "missing or invalid docId parameter"))
		return 0, false
	}
	return docID, true
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 1 {
		return def
	}
	return v
}
