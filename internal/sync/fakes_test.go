package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/mailsift/mailsift/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fakeSink records upserts and serves UID watermarks.
type fakeSink struct {
	mu      gosync.Mutex
	docs    map[string]model.EmailDocument
	order   []string
	failIDs map[string]bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		docs:    make(map[string]model.EmailDocument),
		failIDs: make(map[string]bool),
	}
}

func (f *fakeSink) UpsertDocument(_ context.Context, doc model.EmailDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIDs[doc.ID] {
		return errors.New("store unavailable")
	}
	if _, seen := f.docs[doc.ID]; !seen {
		f.order = append(f.order, doc.ID)
	}
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeSink) MaxUID(_ context.Context, accountID, folder string) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var watermark uint32
	for _, doc := range f.docs {
		if doc.AccountID == accountID && doc.Folder == folder && doc.UID > watermark {
			watermark = doc.UID
		}
	}
	return watermark, nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

func (f *fakeSink) get(id string) (model.EmailDocument, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	return doc, ok
}

// fakeMessage describes one synthetic mailbox entry. A nil raw marks
// the message as malformed (no body section in the response).
type fakeMessage struct {
	seq     uint32
	uid     imap.UID
	date    time.Time
	subject string
	raw     []byte
}

// rawMessage renders a minimal RFC 822 message that go-message parses.
func rawMessage(subject, body string) []byte {
	return []byte("From: Bob <bob@example.com>\r\n" +
		"To: alice@example.com\r\n" +
		"Subject: " + subject + "\r\n" +
		"Date: Tue, 10 Mar 2026 09:30:00 +0000\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		body + "\r\n")
}

func buildBuffer(m fakeMessage) *imapclient.FetchMessageBuffer {
	buf := &imapclient.FetchMessageBuffer{
		SeqNum:       m.seq,
		UID:          m.uid,
		InternalDate: m.date,
		Envelope: &imap.Envelope{
			Subject: m.subject,
			Date:    m.date,
			From: []imap.Address{
				{Name: "Bob", Mailbox: "bob", Host: "example.com"},
			},
			To: []imap.Address{
				{Mailbox: "alice", Host: "example.com"},
			},
		},
	}
	if m.raw != nil {
		buf.BodySection = []imapclient.FetchBodySectionBuffer{{
			Section: fetchBodySection,
			Bytes:   append([]byte(nil), m.raw...),
		}}
	}
	return buf
}

// fakeIdle is a scripted IDLE command.
type fakeIdle struct {
	err  error
	done chan struct{}
	once gosync.Once
}

func newFakeIdle(err error) *fakeIdle {
	return &fakeIdle{err: err, done: make(chan struct{})}
}

func (i *fakeIdle) Close() error {
	i.once.Do(func() { close(i.done) })
	return nil
}

func (i *fakeIdle) Wait() error {
	if i.err != nil {
		return i.err
	}
	<-i.done
	return nil
}

// fakeSession is a scripted in-memory mailbox.
type fakeSession struct {
	mu       gosync.Mutex
	messages []fakeMessage
	updates  chan MailboxUpdate

	// idleErrs scripts successive Idle commands; a non-nil entry makes
	// that command fail spontaneously, simulating a dropped connection.
	// When the script is exhausted, idles block until closed.
	idleErrs []error

	searchErr error
	fetchErr  error

	searchSince []time.Time
	fetchedUIDs [][]imap.UID
	fetchRanges [][2]uint32
	closed      bool
	loggedOut   bool
}

func newFakeSession(messages ...fakeMessage) *fakeSession {
	return &fakeSession{
		messages: messages,
		updates:  make(chan MailboxUpdate, 16),
	}
}

func (s *fakeSession) SearchSince(since time.Time) ([]imap.UID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchSince = append(s.searchSince, since)
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	var uids []imap.UID
	for _, m := range s.messages {
		if !m.date.Before(since) {
			uids = append(uids, m.uid)
		}
	}
	return uids, nil
}

func (s *fakeSession) FetchUIDs(uids []imap.UID) ([]*imapclient.FetchMessageBuffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchedUIDs = append(s.fetchedUIDs, uids)
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	want := make(map[imap.UID]bool, len(uids))
	for _, uid := range uids {
		want[uid] = true
	}
	var bufs []*imapclient.FetchMessageBuffer
	for _, m := range s.messages {
		if want[m.uid] {
			bufs = append(bufs, buildBuffer(m))
		}
	}
	return bufs, nil
}

func (s *fakeSession) FetchSeqRange(start, end uint32) ([]*imapclient.FetchMessageBuffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchRanges = append(s.fetchRanges, [2]uint32{start, end})
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	var bufs []*imapclient.FetchMessageBuffer
	for _, m := range s.messages {
		if m.seq >= start && m.seq <= end {
			bufs = append(bufs, buildBuffer(m))
		}
	}
	return bufs, nil
}

func (s *fakeSession) Idle() (IdleHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if len(s.idleErrs) > 0 {
		err = s.idleErrs[0]
		s.idleErrs = s.idleErrs[1:]
	}
	return newFakeIdle(err), nil
}

func (s *fakeSession) Updates() <-chan MailboxUpdate { return s.updates }

func (s *fakeSession) NumMessages() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint32(len(s.messages))
}

func (s *fakeSession) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedOut = true
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// fakeDialer serves scripted sessions per account. The last step for an
// account repeats once the script runs out.
type fakeDialer struct {
	mu    gosync.Mutex
	steps map[string][]dialStep
	calls map[string]int
}

type dialStep struct {
	sess *fakeSession
	err  error
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		steps: make(map[string][]dialStep),
		calls: make(map[string]int),
	}
}

func (d *fakeDialer) script(account string, steps ...dialStep) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.steps[account] = steps
}

func (d *fakeDialer) Dial(
	_ context.Context,
	account model.AccountConfig,
	_ string,
) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	name := account.Name()
	d.calls[name]++
	steps := d.steps[name]
	if len(steps) == 0 {
		return nil, fmt.Errorf("no session scripted for %s", name)
	}
	step := steps[0]
	if len(steps) > 1 {
		d.steps[name] = steps[1:]
	}
	if step.err != nil {
		return nil, step.err
	}
	return step.sess, nil
}

func (d *fakeDialer) dialCount(account string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[account]
}
