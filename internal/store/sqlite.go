package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/mailsift/mailsift/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite
// database with an FTS5 index over subject and body.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Account workers write concurrently; serialize on one connection
	// instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// EnsureSchema re-applies any outstanding migrations. Idempotent.
func (s *SQLiteStore) EnsureSchema(_ context.Context) error {
	return s.runMigrations()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// emailRow mirrors the emails table for sqlx scanning.
type emailRow struct {
	ID         string    `db:"id"`
	AccountID  string    `db:"account_id"`
	Folder     string    `db:"folder"`
	Subject    string    `db:"subject"`
	Body       string    `db:"body"`
	Sender     string    `db:"sender"`
	Recipients string    `db:"recipients"`
	Date       time.Time `db:"date"`
	UID        int64     `db:"uid"`
	Category   string    `db:"category"`
	IndexedAt  time.Time `db:"indexed_at"`
}

func (r emailRow) toDocument() (model.EmailDocument, error) {
	var to []string
	if r.Recipients != "" {
		if err := json.Unmarshal([]byte(r.Recipients), &to); err != nil {
			return model.EmailDocument{}, fmt.Errorf("decoding recipients for %s: %w", r.ID, err)
		}
	}
	return model.EmailDocument{
		ID:        r.ID,
		AccountID: r.AccountID,
		Folder:    r.Folder,
		Subject:   r.Subject,
		Body:      r.Body,
		From:      r.Sender,
		To:        to,
		Date:      r.Date,
		UID:       uint32(r.UID),
		Category:  r.Category,
		IndexedAt: r.IndexedAt,
	}, nil
}

// UpsertDocument inserts or overwrites a document by ID. The conflict
// clause keeps the existing rowid so the FTS triggers see an UPDATE,
// not a delete/reinsert.
func (s *SQLiteStore) UpsertDocument(ctx context.Context, doc model.EmailDocument) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("rejecting document: %w", err)
	}

	recipients, err := json.Marshal(doc.To)
	if err != nil {
		return fmt.Errorf("marshaling recipients for %s: %w", doc.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO emails (
			id, account_id, folder, subject, body,
			sender, recipients, date, uid, category, indexed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id,
			folder     = excluded.folder,
			subject    = excluded.subject,
			body       = excluded.body,
			sender     = excluded.sender,
			recipients = excluded.recipients,
			date       = excluded.date,
			uid        = excluded.uid,
			category   = excluded.category,
			indexed_at = excluded.indexed_at`,
		doc.ID, doc.AccountID, doc.Folder, doc.Subject, doc.Body,
		doc.From, string(recipients), doc.Date.UTC(), int64(doc.UID),
		doc.Category, doc.IndexedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting document %s: %w", doc.ID, err)
	}
	return nil
}

// SearchDocuments returns one page of documents matching the filter,
// newest first, plus the total match count.
func (s *SQLiteStore) SearchDocuments(
	ctx context.Context,
	filter SearchFilter,
) (*SearchResult, error) {
	var conditions []string
	var args []interface{}

	fullText := strings.TrimSpace(filter.Query) != ""
	fromClause := "emails"
	if fullText {
		fromClause = "emails, emails_fts"
		conditions = append(conditions, "emails_fts.rowid = emails.rowid")
		conditions = append(conditions, "emails_fts MATCH ?")
		args = append(args, ftsQuery(filter.Query))
	}
	if filter.AccountID != nil {
		conditions = append(conditions, "emails.account_id = ?")
		args = append(args, *filter.AccountID)
	}
	if filter.Folder != nil {
		conditions = append(conditions, "emails.folder = ?")
		args = append(args, *filter.Folder)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM " + fromClause + where
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := "SELECT emails.* FROM " + fromClause + where +
		" ORDER BY emails.date DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []emailRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("searching documents: %w", err)
	}

	result := &SearchResult{Total: total}
	for _, r := range rows {
		doc, err := r.toDocument()
		if err != nil {
			return nil, err
		}
		result.Documents = append(result.Documents, doc)
	}
	return result, nil
}

// GetDocumentByID returns a single document or ErrNotFound.
func (s *SQLiteStore) GetDocumentByID(
	ctx context.Context,
	id string,
) (*model.EmailDocument, error) {
	var row emailRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM emails WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting document %s: %w", id, err)
	}

	doc, err := row.toDocument()
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// MaxUID returns the highest provider UID indexed for an account and
// folder, zero when nothing has been indexed yet.
func (s *SQLiteStore) MaxUID(
	ctx context.Context,
	accountID, folder string,
) (uint32, error) {
	var maxUID int64
	err := s.db.GetContext(ctx, &maxUID,
		"SELECT COALESCE(MAX(uid), 0) FROM emails WHERE account_id = ? AND folder = ?",
		accountID, folder,
	)
	if err != nil {
		return 0, fmt.Errorf("reading uid watermark: %w", err)
	}
	return uint32(maxUID), nil
}

// ftsQuery converts free-form user input into an FTS5 query by quoting
// each term, so punctuation never reaches the FTS5 query parser.
func ftsQuery(input string) string {
	terms := strings.Fields(input)
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ReplaceAll(t, `"`, `""`)
		quoted = append(quoted, `"`+t+`"`)
	}
	return strings.Join(quoted, " ")
}
