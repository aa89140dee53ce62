package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"inkdraft/internal/document/model"
	"inkdraft/pkg/apperr"
	"inkdraft/pkg/logger"
)

// DocumentRepository owns the documents and suggestions tables.
type DocumentRepository struct {
	DB *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{DB: db}
}

const documentColumns = `id, owner_id, title, content, google_doc_id, last_synced_at, last_modified`

func scanDocument(row interface{ Scan(...any) error }) (model.Document, error) {
	var d model.Document
	var googleDocID sql.NullString
	var syncedAt sql.NullTime
	err := row.Scan(&d.ID, &d.OwnerID, &d.Title, (*[]byte)(&d.Content), &googleDocID, &syncedAt, &d.LastModified)
	if err != nil {
		return model.Document{}, err
	}
	if googleDocID.Valid {
		d.GoogleDocID = googleDocID.String
	}
	if syncedAt.Valid {
		t := syncedAt.Time
		d.LastSyncedAt = &t
	}
	return d, nil
}

func (r *DocumentRepository) Create(ctx context.Context, ownerID int64, title string, content []byte) (model.Document, error) {
	row := r.DB.QueryRowContext(ctx,
		`INSERT INTO documents (owner_id, title, content, last_modified)
		 VALUES ($1, $2, $3, NOW())
		 RETURNING `+documentColumns, ownerID, title, string(content))
	doc, err := scanDocument(row)
	if err != nil {
		logger.Sugar.Errorf("Failed to create document: %v", err)
		return model.Document{}, err
	}
	return doc, nil
}

func (r *DocumentRepository) Get(ctx context.Context, id int64) (model.Document, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Document{}, apperr.New(apperr.NotFound, "document not found")
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to get document %d: %v", id, err)
		return model.Document{}, err
	}
	return doc, nil
}

// Update replaces title and content and returns the refreshed row.
func (r *DocumentRepository) Update(ctx context.Context, id int64, title string, content []byte) (model.Document, error) {
	row := r.DB.QueryRowContext(ctx,
		`UPDATE documents SET title = $1, content = $2, last_modified = NOW()
		 WHERE id = $3
		 RETURNING `+documentColumns, title, string(content), id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Document{}, apperr.New(apperr.NotFound, "document not found")
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to update document %d: %v", id, err)
		return model.Document{}, err
	}
	return doc, nil
}

// SetMirror writes back the external id after a successful mirror create.
func (r *DocumentRepository) SetMirror(ctx context.Context, id int64, googleDocID string, syncedAt time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE documents SET google_doc_id = $1, last_synced_at = $2 WHERE id = $3`,
		googleDocID, syncedAt, id)
	if err != nil {
		logger.Sugar.Errorf("Failed to set mirror for document %d: %v", id, err)
	}
	return err
}

// MarkSynced records a successful external push.
func (r *DocumentRepository) MarkSynced(ctx context.Context, id int64, syncedAt time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE documents SET last_synced_at = $1 WHERE id = $2`, syncedAt, id)
	if err != nil {
		logger.Sugar.Errorf("Failed to mark document %d synced: %v", id, err)
	}
	return err
}

func (r *DocumentRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete document %d: %v", id, err)
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.NotFound, "document not found")
	}
	return nil
}

// List returns one 1-based page of the owner's documents, newest-modified
// first, plus the total count for pagination.
func (r *DocumentRepository) List(ctx context.Context, ownerID int64, page, limit int) ([]model.Document, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	var total int
	if err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE owner_id = $1`, ownerID).Scan(&total); err != nil {
		logger.Sugar.Errorf("Failed to count documents for user %d: %v", ownerID, err)
		return nil, 0, err
	}

	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE owner_id = $1
		 ORDER BY last_modified DESC, id DESC
		 LIMIT $2 OFFSET $3`, ownerID, limit, (page-1)*limit)
	if err != nil {
		logger.Sugar.Errorf("Failed to list documents for user %d: %v", ownerID, err)
		return nil, 0, err
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			logger.Sugar.Errorf("Failed to scan document row: %v", err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, total, rows.Err()
}

// CreateSuggestion appends to the document's immutable suggestion history.
func (r *DocumentRepository) CreateSuggestion(ctx context.Context, documentID int64, kind, content string) (model.Suggestion, error) {
	s := model.Suggestion{DocumentID: documentID, Kind: kind, Content: content}
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO suggestions (document_id, kind, content, created_at)
		 VALUES ($1, $2, $3, NOW())
		 RETURNING id, created_at`, documentID, kind, content).
		Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to create suggestion for document %d: %v", documentID, err)
		return model.Suggestion{}, err
	}
	return s, nil
}

// Suggestions returns the document's history, newest first.
func (r *DocumentRepository) Suggestions(ctx context.Context, documentID int64) ([]model.Suggestion, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, document_id, kind, content, created_at FROM suggestions
		 WHERE document_id = $1
		 ORDER BY created_at DESC, id DESC`, documentID)
	if err != nil {
		logger.Sugar.Errorf("Failed to get suggestions for document %d: %v", documentID, err)
		return nil, err
	}
	defer rows.Close()

	var suggestions []model.Suggestion
	for rows.Next() {
		var s model.Suggestion
		if err := rows.Scan(&s.ID, &s.DocumentID, &s.Kind, &s.Content, &s.CreatedAt); err != nil {
			logger.Sugar.Errorf("Failed to scan suggestion row: %v", err)
			continue
		}
		suggestions = append(suggestions, s)
	}
	return suggestions, rows.Err()
}
