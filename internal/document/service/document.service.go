package service

import (
	"context"
	"encoding/json"

	"inkdraft/internal/ai"
	"inkdraft/internal/document/model"
	"inkdraft/pkg/apperr"
	"inkdraft/pkg/logger"
	"inkdraft/socket"
)

// Store is the slice of the document repository the service needs beyond
// what the sync coordinator already covers.
type Store interface {
	Get(ctx context.Context, id int64) (model.Document, error)
	Delete(ctx context.Context, id int64) error
	CreateSuggestion(ctx context.Context, documentID int64, kind, content string) (model.Suggestion, error)
	Suggestions(ctx context.Context, documentID int64) ([]model.Suggestion, error)
}

// Syncer is the sync coordinator surface.
type Syncer interface {
	ListMerged(ctx context.Context, userID int64, page, limit int) (model.MergedList, error)
	CreateMirrored(ctx context.Context, userID int64, title string, content json.RawMessage, mirror bool) (model.Document, error)
	SaveMirrored(ctx context.Context, doc model.Document, title string, content json.RawMessage) (model.Document, bool, error)
}

// Assistant is the AI suggestion client surface.
type Assistant interface {
	Complete(ctx context.Context, contextText string) (ai.Completion, error)
	Summarize(ctx context.Context, text string) (ai.Summary, error)
}

// Notifier is the editor event feed.
type Notifier interface {
	Publish(event socket.Event)
	RemoveDocument(docID int64)
}

type DocumentService struct {
	Store     Store
	Sync      Syncer
	Assistant Assistant
	Hub       Notifier
}

func NewDocumentService(store Store, syncer Syncer, assistant Assistant, hub Notifier) *DocumentService {
	return &DocumentService{Store: store, Sync: syncer, Assistant: assistant, Hub: hub}
}

// List returns the merged external/local listing for the user.
func (s *DocumentService) List(ctx context.Context, userID int64, page, limit int) (model.MergedList, error) {
	return s.Sync.ListMerged(ctx, userID, page, limit)
}

// Create makes a new document, mirrored into Google Docs when requested.
// The document is always persisted locally; a mirror failure comes back as
// mirrorErr alongside the usable local document.
func (s *DocumentService) Create(ctx context.Context, userID int64, req model.CreateDocRequest) (doc model.Document, mirrorErr error, err error) {
	title := req.Title
	if title == "" {
		title = "Untitled Document"
	}
	doc, e := s.Sync.CreateMirrored(ctx, userID, title, req.Content, req.Mirror)
	if doc.ID == 0 {
		return model.Document{}, nil, e
	}
	return doc, e, nil
}

// Get returns a document plus its suggestion history, newest first.
func (s *DocumentService) Get(ctx context.Context, userID, docID int64) (model.DocumentDetail, error) {
	doc, err := s.ownedDocument(ctx, userID, docID)
	if err != nil {
		return model.DocumentDetail{}, err
	}
	suggestions, err := s.Store.Suggestions(ctx, docID)
	if err != nil {
		return model.DocumentDetail{}, err
	}
	if suggestions == nil {
		suggestions = []model.Suggestion{}
	}
	return model.DocumentDetail{Document: doc, Suggestions: suggestions}, nil
}

// Save replaces the document's title and content. The local write always
// wins; a failed external push only leaves the mirror stale, which is
// reported through the event feed.
func (s *DocumentService) Save(ctx context.Context, userID int64, req model.SaveDocRequest) (model.Document, error) {
	doc, err := s.ownedDocument(ctx, userID, req.DocID)
	if err != nil {
		return model.Document{}, err
	}

	updated, mirrored, err := s.Sync.SaveMirrored(ctx, doc, req.Title, req.Content)
	if err != nil {
		return model.Document{}, err
	}

	s.Hub.Publish(socket.Event{Type: socket.SavedType, DocID: updated.ID, UserID: userID, Payload: req.Content})
	if doc.Mirrored() {
		eventType := socket.MirrorSyncedType
		if !mirrored {
			eventType = socket.MirrorStaleType
		}
		s.Hub.Publish(socket.Event{Type: eventType, DocID: updated.ID, UserID: userID})
	}
	return updated, nil
}

// Delete removes a document and kicks everyone out of its event room.
func (s *DocumentService) Delete(ctx context.Context, userID, docID int64) error {
	if _, err := s.ownedDocument(ctx, userID, docID); err != nil {
		return err
	}
	if err := s.Store.Delete(ctx, docID); err != nil {
		return err
	}
	s.Hub.RemoveDocument(docID)
	return nil
}

// Suggest runs the AI client over the document text and appends the result
// to the immutable suggestion history.
func (s *DocumentService) Suggest(ctx context.Context, userID int64, req model.SuggestRequest) (model.Suggestion, error) {
	doc, err := s.ownedDocument(ctx, userID, req.DocID)
	if err != nil {
		return model.Suggestion{}, err
	}

	text := model.TextFromContent(doc.Content)

	var content string
	switch req.Kind {
	case model.KindCompletion:
		result, err := s.Assistant.Complete(ctx, text)
		if err != nil {
			return model.Suggestion{}, err
		}
		content = result.Text
	case model.KindSummary:
		result, err := s.Assistant.Summarize(ctx, text)
		if err != nil {
			return model.Suggestion{}, err
		}
		encoded, err := json.Marshal(result)
		if err != nil {
			return model.Suggestion{}, apperr.Wrap(apperr.Generation, "encode summary", err)
		}
		content = string(encoded)
	default:
		return model.Suggestion{}, apperr.Newf(apperr.Validation, "unknown suggestion kind %q", req.Kind)
	}

	suggestion, err := s.Store.CreateSuggestion(ctx, doc.ID, req.Kind, content)
	if err != nil {
		return model.Suggestion{}, err
	}

	payload, err := json.Marshal(suggestion)
	if err != nil {
		logger.Sugar.Errorf("Failed to encode suggestion event: %v", err)
	} else {
		s.Hub.Publish(socket.Event{Type: socket.SuggestionType, DocID: doc.ID, UserID: userID, Payload: payload})
	}
	return suggestion, nil
}

// SuggestionHistory returns the document's suggestions, newest first.
func (s *DocumentService) SuggestionHistory(ctx context.Context, userID, docID int64) ([]model.Suggestion, error) {
	if _, err := s.ownedDocument(ctx, userID, docID); err != nil {
		return nil, err
	}
	suggestions, err := s.Store.Suggestions(ctx, docID)
	if err != nil {
		return nil, err
	}
	if suggestions == nil {
		suggestions = []model.Suggestion{}
	}
	return suggestions, nil
}

// CheckAccess reports whether userID may open docID (used by the event
// socket before joining a room).
func (s *DocumentService) CheckAccess(ctx context.Context, userID, docID int64) error {
	_, err := s.ownedDocument(ctx, userID, docID)
	return err
}

// ownedDocument loads a document and enforces ownership. A document owned by
// someone else is Forbidden, not NotFound: the record exists, access doesn't.
func (s *DocumentService) ownedDocument(ctx context.Context, userID, docID int64) (model.Document, error) {
	doc, err := s.Store.Get(ctx, docID)
	if err != nil {
		return model.Document{}, err
	}
	if doc.OwnerID != userID {
		return model.Document{}, apperr.New(apperr.Forbidden, "you do not have access to this document")
	}
	return doc, nil
}
