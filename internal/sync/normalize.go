package sync

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	"github.com/mailsift/mailsift/internal/model"
)

// ParseError reports that a single message could not be normalized.
// Callers skip the message and continue with its siblings.
type ParseError struct {
	SeqNum uint32
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing message %d: %v", e.SeqNum, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Normalizer converts fetched IMAP messages into EmailDocuments. Pure
// apart from the clock used for the indexing timestamp and the
// live-update id disambiguator.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer returns a Normalizer using the wall clock.
func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// Normalize builds the store-ready document for one fetched message.
// live selects the time-based id disambiguator used for messages
// observed through live updates when the provider UID is absent.
func (n *Normalizer) Normalize(
	accountID, folder string,
	buf *imapclient.FetchMessageBuffer,
	live bool,
) (model.EmailDocument, error) {
	now := n.now().UTC()

	raw := buf.FindBodySection(fetchBodySection)
	if raw == nil {
		return model.EmailDocument{}, &ParseError{
			SeqNum: buf.SeqNum,
			Err:    fmt.Errorf("response carries no body section"),
		}
	}

	textBody, htmlBody, err := extractBodies(raw)
	if err != nil {
		return model.EmailDocument{}, &ParseError{SeqNum: buf.SeqNum, Err: err}
	}

	body := textBody
	if body == "" {
		body = stripHTML(htmlBody)
	}

	doc := model.EmailDocument{
		ID:        documentID(accountID, folder, buf, live, now),
		AccountID: accountID,
		Folder:    folder,
		Body:      body,
		UID:       uint32(buf.UID),
		Category:  model.CategoryUncategorized,
		IndexedAt: now,
	}

	if env := buf.Envelope; env != nil {
		doc.Subject = env.Subject
		doc.Date = env.Date
		if len(env.From) > 0 {
			from := env.From[0]
			if from.Name != "" {
				doc.From = from.Name
			} else {
				doc.From = from.Addr()
			}
		}
		for _, to := range env.To {
			doc.To = append(doc.To, to.Addr())
		}
	}
	if doc.Date.IsZero() {
		doc.Date = buf.InternalDate
	}
	if doc.Date.IsZero() {
		doc.Date = now
	}

	return doc, nil
}

// documentID derives the stable document identifier. With a provider
// UID the id is stable across sessions, so re-delivery upserts instead
// of duplicating. Without one the composite fallback is best-effort
// only: sequence-based for backfill, time-disambiguated for live
// updates.
func documentID(
	accountID, folder string,
	buf *imapclient.FetchMessageBuffer,
	live bool,
	now time.Time,
) string {
	if buf.UID != 0 {
		return fmt.Sprintf("%s/%s/%d", accountID, folder, buf.UID)
	}
	if live {
		return fmt.Sprintf("%s/%s/seq-%d-%d", accountID, folder, buf.SeqNum, now.UnixMilli())
	}
	return fmt.Sprintf("%s/%s/seq-%d", accountID, folder, buf.SeqNum)
}

// htmlTagPattern matches HTML tags for stripping.
var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// stripHTML removes HTML tags from a string and decodes common
// entities, providing a basic plain-text rendering.
func stripHTML(html string) string {
	if html == "" {
		return ""
	}

	result := html
	for _, tag := range []string{
		"<br>", "<br/>", "<br />", "</p>", "</div>", "</li>",
	} {
		result = strings.ReplaceAll(result, tag, "\n")
	}

	result = htmlTagPattern.ReplaceAllString(result, "")

	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	result = replacer.Replace(result)

	for strings.Contains(result, "\n\n\n") {
		result = strings.ReplaceAll(result, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(result)
}

// extractBodies walks the MIME structure and returns the text/plain and
// text/html parts. A message that go-message cannot read at all is a
// parse failure.
func extractBodies(raw []byte) (textBody, htmlBody string, err error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return "", "", fmt.Errorf("reading MIME structure: %w", err)
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := header.ContentType()
		content, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain"):
			if textBody == "" {
				textBody = string(content)
			}
		case strings.HasPrefix(contentType, "text/html"):
			if htmlBody == "" {
				htmlBody = string(content)
			}
		}
	}

	return textBody, htmlBody, nil
}
