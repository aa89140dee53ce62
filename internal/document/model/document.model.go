package model

import (
	"encoding/json"
	"time"

	"inkdraft/internal/google"
)

const (
	KindCompletion = "completion"
	KindSummary    = "summary"
)

// Document is a locally owned editor document. GoogleDocID is set iff the
// document is mirrored into Google Docs; LastSyncedAt records the last
// successful external push.
type Document struct {
	ID           int64           `json:"id"`
	OwnerID      int64           `json:"owner_id"`
	Title        string          `json:"title"`
	Content      json.RawMessage `json:"content"`
	GoogleDocID  string          `json:"google_doc_id,omitempty"`
	LastSyncedAt *time.Time      `json:"last_synced_at,omitempty"`
	LastModified time.Time       `json:"last_modified"`
}

// Mirrored reports whether the document has an external counterpart.
func (d Document) Mirrored() bool { return d.GoogleDocID != "" }

// Suggestion is an immutable AI result attached to a document.
type Suggestion struct {
	ID         int64     `json:"id"`
	DocumentID int64     `json:"document_id"`
	Kind       string    `json:"kind"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// DocumentMetadata is the listing shape sent to the editor's document picker.
type DocumentMetadata struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	Snippet      string     `json:"snippet"`
	Mirrored     bool       `json:"mirrored"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	LastModified time.Time  `json:"last_modified"`
}

// Page is one page of the owner-scoped local listing.
type Page struct {
	Items      []DocumentMetadata `json:"items"`
	Total      int                `json:"total"`
	Page       int                `json:"page"`
	Limit      int                `json:"limit"`
	TotalPages int                `json:"total_pages"`
}

// MergedList is the tagged union of external and local documents. The two
// sides are never deduplicated; no cross-reference key exists between the
// Drive id space and ours.
type MergedList struct {
	Google []google.File `json:"google"`
	Local  Page          `json:"local"`
}

type CreateDocRequest struct {
	Title   string          `json:"title"`
	Content json.RawMessage `json:"content"`
	Mirror  bool            `json:"mirror"`
}

type SaveDocRequest struct {
	DocID   int64           `json:"document_id"`
	Title   string          `json:"title"`
	Content json.RawMessage `json:"content"`
}

type SuggestRequest struct {
	DocID int64  `json:"document_id"`
	Kind  string `json:"kind"`
}

type DocumentDetail struct {
	Document    Document     `json:"document"`
	Suggestions []Suggestion `json:"suggestions"`
}
