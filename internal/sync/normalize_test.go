package sync

import (
	"strconv"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/stretchr/testify/require"

	"github.com/mailsift/mailsift/internal/model"
)

func fixedNormalizer(t time.Time) *Normalizer {
	return &Normalizer{now: func() time.Time { return t }}
}

func TestNormalizePlainTextMessage(t *testing.T) {
	now := time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)
	n := fixedNormalizer(now)

	msgDate := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	buf := buildBuffer(fakeMessage{
		seq:     3,
		uid:     41,
		date:    msgDate,
		subject: "Quarterly report",
		raw:     rawMessage("Quarterly report", "Numbers attached."),
	})

	doc, err := n.Normalize("alice@example.com", "INBOX", buf, false)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com/INBOX/41", doc.ID)
	require.Equal(t, "alice@example.com", doc.AccountID)
	require.Equal(t, "INBOX", doc.Folder)
	require.Equal(t, "Quarterly report", doc.Subject)
	require.Equal(t, "Numbers attached.\r\n", doc.Body)
	require.Equal(t, "Bob", doc.From)
	require.Equal(t, []string{"alice@example.com"}, doc.To)
	require.Equal(t, msgDate, doc.Date)
	require.Equal(t, uint32(41), doc.UID)
	require.Equal(t, model.CategoryUncategorized, doc.Category)
	require.Equal(t, now, doc.IndexedAt)
}

func TestNormalizeHTMLFallback(t *testing.T) {
	n := fixedNormalizer(time.Now())

	raw := []byte("From: bob@example.com\r\n" +
		"To: alice@example.com\r\n" +
		"Subject: hello\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>Hello &amp; welcome</p>\r\n")
	buf := buildBuffer(fakeMessage{seq: 1, uid: 7, subject: "hello", raw: raw})

	doc, err := n.Normalize("alice@example.com", "INBOX", buf, false)
	require.NoError(t, err)
	require.Equal(t, "Hello & welcome", doc.Body)
}

func TestNormalizeMissingBodySectionIsParseError(t *testing.T) {
	n := fixedNormalizer(time.Now())
	buf := buildBuffer(fakeMessage{seq: 5, uid: 9, subject: "broken"})

	_, err := n.Normalize("alice@example.com", "INBOX", buf, false)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, uint32(5), parseErr.SeqNum)
}

func TestNormalizeIDFallbackWithoutUID(t *testing.T) {
	now := time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)
	n := fixedNormalizer(now)

	buf := buildBuffer(fakeMessage{
		seq: 12, uid: 0,
		subject: "no uid",
		raw:     rawMessage("no uid", "body"),
	})

	doc, err := n.Normalize("a", "INBOX", buf, false)
	require.NoError(t, err)
	require.Equal(t, "a/INBOX/seq-12", doc.ID)

	doc, err = n.Normalize("a", "INBOX", buf, true)
	require.NoError(t, err)
	require.Equal(t, "a/INBOX/seq-12-"+strconv.FormatInt(now.UnixMilli(), 10), doc.ID)
}

func TestNormalizeWithoutEnvelopeUsesInternalDate(t *testing.T) {
	now := time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)
	n := fixedNormalizer(now)

	internal := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	buf := &imapclient.FetchMessageBuffer{
		SeqNum:       2,
		UID:          imap.UID(8),
		InternalDate: internal,
		BodySection: []imapclient.FetchBodySectionBuffer{{
			Section: fetchBodySection,
			Bytes:   rawMessage("x", "y"),
		}},
	}

	doc, err := n.Normalize("a", "INBOX", buf, false)
	require.NoError(t, err)
	require.Equal(t, internal, doc.Date)
	require.Empty(t, doc.From)
}

