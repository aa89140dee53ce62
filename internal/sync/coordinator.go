// Package sync keeps a document's Google Docs counterpart consistent with
// local edits and keeps the stored credential valid, without letting external
// availability block local operation.
package sync

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"inkdraft/internal/document/model"
	"inkdraft/internal/google"
	"inkdraft/internal/user"
	"inkdraft/pkg/apperr"
	"inkdraft/pkg/logger"
)

// TokenStore is the slice of the user repository the coordinator needs.
type TokenStore interface {
	Tokens(ctx context.Context, userID int64) (user.TokenPair, error)
	SetTokens(ctx context.Context, userID int64, accessToken, refreshToken string) error
}

// DocumentStore is the slice of the document repository the coordinator needs.
type DocumentStore interface {
	Create(ctx context.Context, ownerID int64, title string, content []byte) (model.Document, error)
	Update(ctx context.Context, id int64, title string, content []byte) (model.Document, error)
	SetMirror(ctx context.Context, id int64, googleDocID string, syncedAt time.Time) error
	MarkSynced(ctx context.Context, id int64, syncedAt time.Time) error
	List(ctx context.Context, ownerID int64, page, limit int) ([]model.Document, int, error)
}

// DocsClient is the external document API surface the coordinator consumes.
type DocsClient interface {
	UserInfo(ctx context.Context, token string) (google.Identity, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	ListDocuments(ctx context.Context, token string) ([]google.File, error)
	CreateDocument(ctx context.Context, token, title string) (string, error)
	ReplaceContent(ctx context.Context, token, documentID, text string) error
}

// Coordinator holds no persistent state; it orchestrates the two stores and
// the external client per request.
type Coordinator struct {
	tokens  TokenStore
	docs    DocumentStore
	client  DocsClient
	refresh singleflight.Group
	now     func() time.Time
}

func NewCoordinator(tokens TokenStore, docs DocumentStore, client DocsClient) *Coordinator {
	return &Coordinator{
		tokens: tokens,
		docs:   docs,
		client: client,
		now:    time.Now,
	}
}

// EnsureFreshCredential probes the external client with the stored access
// token and refreshes it once if rejected, persisting the new access token
// alongside the existing refresh token. It returns a token the caller can use
// for the rest of the request. Refresh failure surfaces as an external auth
// error; the session itself is left alone.
func (c *Coordinator) EnsureFreshCredential(ctx context.Context, userID int64) (string, error) {
	pair, err := c.tokens.Tokens(ctx, userID)
	if err != nil {
		return "", err
	}

	if _, err := c.client.UserInfo(ctx, pair.AccessToken); err == nil {
		return pair.AccessToken, nil
	} else if !apperr.Is(err, apperr.ExternalAuth) {
		return "", err
	}

	// Concurrent requests for the same user share one refresh; redundant
	// refreshes can invalidate each other's grants.
	token, err, _ := c.refresh.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		newAccess, err := c.client.Refresh(ctx, pair.RefreshToken)
		if err != nil {
			return "", apperr.Wrap(apperr.ExternalAuth, "credential refresh failed", err)
		}
		if err := c.tokens.SetTokens(ctx, userID, newAccess, pair.RefreshToken); err != nil {
			return "", err
		}
		logger.Sugar.Infof("Refreshed access token for user %d", userID)
		return newAccess, nil
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

// ListMerged returns the user's Google-hosted documents and their local page
// as a tagged union. The two sides are intentionally not merged by identity:
// there is no reliable cross-reference key between the two id spaces.
// External ordering is whatever Drive returned; local is newest-modified
// first. An external failure surfaces here (listing is a read of the external
// system, not a local write to protect).
func (c *Coordinator) ListMerged(ctx context.Context, userID int64, page, limit int) (model.MergedList, error) {
	token, err := c.EnsureFreshCredential(ctx, userID)
	if err != nil {
		return model.MergedList{}, err
	}

	files, err := c.client.ListDocuments(ctx, token)
	if err != nil {
		return model.MergedList{}, err
	}

	docs, total, err := c.docs.List(ctx, userID, page, limit)
	if err != nil {
		return model.MergedList{}, err
	}

	return model.MergedList{
		Google: files,
		Local:  buildPage(docs, total, page, limit),
	}, nil
}

func buildPage(docs []model.Document, total, page, limit int) model.Page {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	items := make([]model.DocumentMetadata, 0, len(docs))
	for _, d := range docs {
		items = append(items, model.DocumentMetadata{
			ID:           d.ID,
			Title:        d.Title,
			Snippet:      model.Snippet(d.Content),
			Mirrored:     d.Mirrored(),
			LastSyncedAt: d.LastSyncedAt,
			LastModified: d.LastModified,
		})
	}
	return model.Page{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}
}

// CreateMirrored creates the local document first; local durability never
// depends on external availability. When mirror is requested, it then creates
// the Google doc, pushes the initial content, and writes back the external
// id. If the external side fails the local document persists as local-only
// and the error is returned alongside it.
func (c *Coordinator) CreateMirrored(ctx context.Context, userID int64, title string, content json.RawMessage, mirror bool) (model.Document, error) {
	doc, err := c.docs.Create(ctx, userID, title, content)
	if err != nil {
		return model.Document{}, err
	}
	if !mirror {
		return doc, nil
	}

	token, err := c.EnsureFreshCredential(ctx, userID)
	if err != nil {
		return doc, err
	}

	googleDocID, err := c.client.CreateDocument(ctx, token, title)
	if err != nil {
		logger.Sugar.Warnf("Mirror create failed for document %d, keeping it local-only: %v", doc.ID, err)
		return doc, err
	}

	if text := model.TextFromContent(content); text != "" {
		if err := c.client.ReplaceContent(ctx, token, googleDocID, text); err != nil {
			logger.Sugar.Warnf("Initial content push failed for document %d: %v", doc.ID, err)
			return doc, err
		}
	}

	syncedAt := c.now().UTC()
	if err := c.docs.SetMirror(ctx, doc.ID, googleDocID, syncedAt); err != nil {
		return doc, err
	}
	doc.GoogleDocID = googleDocID
	doc.LastSyncedAt = &syncedAt
	return doc, nil
}

// SaveMirrored updates the local document unconditionally and then, for
// mirrored documents, replaces the external body with the flattened content.
// An external failure leaves the mirror stale and is swallowed: the local
// write wins and the save reports success. No two-phase commit is attempted.
// The returned bool reports whether the mirror is in sync after the save.
func (c *Coordinator) SaveMirrored(ctx context.Context, doc model.Document, title string, content json.RawMessage) (model.Document, bool, error) {
	updated, err := c.docs.Update(ctx, doc.ID, title, content)
	if err != nil {
		return model.Document{}, false, err
	}

	if !doc.Mirrored() {
		return updated, true, nil
	}

	token, err := c.EnsureFreshCredential(ctx, doc.OwnerID)
	if err != nil {
		logger.Sugar.Warnf("Mirror for document %d is stale, credential unavailable: %v", doc.ID, err)
		return updated, false, nil
	}

	if err := c.client.ReplaceContent(ctx, token, doc.GoogleDocID, model.TextFromContent(content)); err != nil {
		logger.Sugar.Warnf("Mirror push failed for document %d, mirror is stale until next save: %v", doc.ID, err)
		return updated, false, nil
	}

	syncedAt := c.now().UTC()
	if err := c.docs.MarkSynced(ctx, doc.ID, syncedAt); err != nil {
		return updated, true, nil
	}
	updated.LastSyncedAt = &syncedAt
	return updated, true, nil
}
