package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/require"

	"github.com/mailsift/mailsift/internal/classify"
)

func testScanner(sink Indexer, cls classify.Classifier) *Scanner {
	pipeline := NewPipeline(sink, cls, nil, testLogger())
	return NewScanner(pipeline, 30, testLogger())
}

func TestScanRespectsLookbackWindow(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	sess := newFakeSession(
		fakeMessage{seq: 1, uid: 1, date: now.AddDate(0, 0, -1), subject: "fresh", raw: rawMessage("fresh", "a")},
		fakeMessage{seq: 2, uid: 2, date: now.AddDate(0, 0, -29), subject: "edge", raw: rawMessage("edge", "b")},
		fakeMessage{seq: 3, uid: 3, date: now.AddDate(0, 0, -31), subject: "stale", raw: rawMessage("stale", "c")},
		fakeMessage{seq: 4, uid: 4, date: now.AddDate(0, 0, -60), subject: "ancient", raw: rawMessage("ancient", "d")},
	)
	sink := newFakeSink()
	scanner := testScanner(sink, nil)
	scanner.now = func() time.Time { return now }

	indexed, err := scanner.Scan(context.Background(), sess, "a", "INBOX", 0)
	require.NoError(t, err)
	require.Equal(t, 2, indexed)
	require.Equal(t, 2, sink.count())

	_, ok := sink.get("a/INBOX/1")
	require.True(t, ok)
	_, ok = sink.get("a/INBOX/2")
	require.True(t, ok)
	_, ok = sink.get("a/INBOX/3")
	require.False(t, ok)
}

func TestScanIsolatesMalformedMessage(t *testing.T) {
	now := time.Now()
	sess := newFakeSession(
		fakeMessage{seq: 1, uid: 1, date: now, subject: "ok", raw: rawMessage("ok", "one")},
		fakeMessage{seq: 2, uid: 2, date: now, subject: "broken"}, // no body section
		fakeMessage{seq: 3, uid: 3, date: now, subject: "ok too", raw: rawMessage("ok too", "three")},
	)
	sink := newFakeSink()
	scanner := testScanner(sink, nil)

	indexed, err := scanner.Scan(context.Background(), sess, "a", "INBOX", 0)
	require.NoError(t, err)
	require.Equal(t, 2, indexed)
	require.Equal(t, 2, sink.count())
}

func TestScanZeroMatchesIsNoOp(t *testing.T) {
	sess := newFakeSession() // empty mailbox
	sink := newFakeSink()
	scanner := testScanner(sink, nil)

	indexed, err := scanner.Scan(context.Background(), sess, "a", "INBOX", 0)
	require.NoError(t, err)
	require.Zero(t, indexed)
	require.Len(t, sess.fetchedUIDs, 0)
}

func TestScanSkipsUIDsAtOrBelowWatermark(t *testing.T) {
	now := time.Now()
	var msgs []fakeMessage
	for i := uint32(1); i <= 5; i++ {
		msgs = append(msgs, fakeMessage{
			seq: i, uid: imap.UID(i), date: now,
			subject: "m", raw: rawMessage("m", "body"),
		})
	}
	sess := newFakeSession(msgs...)
	sink := newFakeSink()
	scanner := testScanner(sink, nil)

	indexed, err := scanner.Scan(context.Background(), sess, "a", "INBOX", 3)
	require.NoError(t, err)
	require.Equal(t, 2, indexed)
	require.Len(t, sess.fetchedUIDs, 1)
	require.Equal(t, []imap.UID{4, 5}, sess.fetchedUIDs[0])
}

func TestScanSearchErrorIsReturned(t *testing.T) {
	sess := newFakeSession()
	sess.searchErr = errors.New("server said no")
	scanner := testScanner(newFakeSink(), nil)

	_, err := scanner.Scan(context.Background(), sess, "a", "INBOX", 0)
	require.ErrorContains(t, err, "backfill query")
}

func TestScanIndexFailureSkipsOnlyThatDocument(t *testing.T) {
	now := time.Now()
	sess := newFakeSession(
		fakeMessage{seq: 1, uid: 1, date: now, subject: "x", raw: rawMessage("x", "one")},
		fakeMessage{seq: 2, uid: 2, date: now, subject: "y", raw: rawMessage("y", "two")},
	)
	sink := newFakeSink()
	sink.failIDs["a/INBOX/1"] = true
	scanner := testScanner(sink, nil)

	indexed, err := scanner.Scan(context.Background(), sess, "a", "INBOX", 0)
	require.NoError(t, err)
	require.Equal(t, 1, indexed)
}

func TestScanAppliesClassifier(t *testing.T) {
	now := time.Now()
	sess := newFakeSession(
		fakeMessage{
			seq: 1, uid: 1, date: now,
			subject: "catch up",
			raw:     rawMessage("catch up", "Let's schedule a meeting."),
		},
	)
	sink := newFakeSink()
	scanner := testScanner(sink, classify.NewKeywordClassifier())

	_, err := scanner.Scan(context.Background(), sess, "a", "INBOX", 0)
	require.NoError(t, err)
	doc, ok := sink.get("a/INBOX/1")
	require.True(t, ok)
	require.Equal(t, classify.LabelMeetingBooked, doc.Category)
}
