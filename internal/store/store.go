package store

import (
	"context"
	"errors"

	"github.com/mailsift/mailsift/internal/model"
)

// ErrNotFound is returned when a document lookup matches nothing.
var ErrNotFound = errors.New("document not found")

// SearchFilter controls full-text matching, exact-match filters, and
// pagination for document queries. An empty Query matches everything.
type SearchFilter struct {
	Query     string
	AccountID *string
	Folder    *string
	Limit     int
	Offset    int
}

// SearchResult holds one page of matching documents plus the total
// match count across all pages.
type SearchResult struct {
	Total     int
	Documents []model.EmailDocument
}

// Store is the document store consumed by the sync engine (idempotent
// upsert by id) and the query API (paginated, filtered search). It must
// tolerate concurrent calls from any number of account workers.
type Store interface {
	// EnsureSchema creates the schema if absent. Safe to call multiple
	// times.
	EnsureSchema(ctx context.Context) error

	// UpsertDocument inserts the document or overwrites the existing one
	// sharing its ID. Last write wins.
	UpsertDocument(ctx context.Context, doc model.EmailDocument) error

	// SearchDocuments returns documents matching the filter, newest
	// first.
	SearchDocuments(ctx context.Context, filter SearchFilter) (*SearchResult, error)

	// GetDocumentByID returns a single document or ErrNotFound.
	GetDocumentByID(ctx context.Context, id string) (*model.EmailDocument, error)

	// MaxUID returns the highest provider UID indexed for an account and
	// folder, zero when none. Used to resume incrementally on reconnect.
	MaxUID(ctx context.Context, accountID, folder string) (uint32, error)

	Close() error
}
