package model

import (
	"errors"
	"time"
)

// CategoryUncategorized is the sentinel label assigned at ingestion,
// before any classifier has seen the document.
const CategoryUncategorized = "Uncategorized"

// EmailDocument is the normalized, store-ready representation of one
// email message. A document is constructed once per observed message and
// never mutated afterwards; re-delivery of the same underlying message
// produces a new value with the same ID, which the store upserts.
type EmailDocument struct {
	// ID is the stable document identifier. When the provider assigned a
	// UID it is derived from (account, folder, uid) and is stable across
	// sessions; otherwise it is a best-effort composite of account,
	// sequence number, and a disambiguator.
	ID string `json:"id" db:"id"`

	// AccountID is the mailbox user that owns this message.
	AccountID string `json:"account_id" db:"account_id"`

	// Folder is the mailbox folder the message was observed in.
	Folder string `json:"folder" db:"folder"`

	// Subject is the decoded message subject.
	Subject string `json:"subject" db:"subject"`

	// Body is the plaintext body, falling back to text derived from the
	// HTML part when no plaintext part exists.
	Body string `json:"body" db:"body"`

	// From is the display name or address of the sender.
	From string `json:"from" db:"sender"`

	// To lists recipient addresses in header order.
	To []string `json:"to" db:"-"`

	// Date is the message date from the envelope (or the observation
	// time when the envelope carries none).
	Date time.Time `json:"date" db:"date"`

	// UID is the provider-assigned identifier, zero when absent.
	UID uint32 `json:"uid,omitempty" db:"uid"`

	// Category is the classification label ("Uncategorized" until a
	// classifier has run).
	Category string `json:"category" db:"category"`

	// IndexedAt is when the document was handed to the index sink.
	IndexedAt time.Time `json:"indexed_at" db:"indexed_at"`
}

// Validate reports whether the document satisfies the ingestion-boundary
// invariants the store relies on.
func (d EmailDocument) Validate() error {
	if d.ID == "" {
		return errors.New("document missing id")
	}
	if d.AccountID == "" {
		return errors.New("document missing account id")
	}
	if d.Folder == "" {
		return errors.New("document missing folder")
	}
	return nil
}
