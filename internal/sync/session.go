// Package sync implements the per-account synchronization engine: the
// connection lifecycle state machine, the backfill scanner, the live
// update listener, and the supervisor that runs one worker per account.
package sync

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/mailsift/mailsift/internal/model"
)

// fetchBodySection is the body section requested on every fetch. The
// same value is used to look the section back up on the response buffer.
var fetchBodySection = &imap.FetchItemBodySection{Peek: true}

// MailboxUpdate is a unilateral mailbox size change pushed by the
// server while the connection is idling.
type MailboxUpdate struct {
	// NumMessages is the new total message count (EXISTS).
	NumMessages uint32
}

// IdleHandle is an in-flight IDLE command. Close stops idling; Wait
// blocks until the command ends and reports how.
type IdleHandle interface {
	Close() error
	Wait() error
}

// Session is one open, authenticated IMAP connection with the sync
// folder selected. A session is owned by exactly one worker and is
// discarded, never reused, after an error.
type Session interface {
	// SearchSince returns the UIDs of messages received at or after the
	// cutoff.
	SearchSince(since time.Time) ([]imap.UID, error)

	// FetchUIDs fetches envelope, UID, and body for the given messages.
	FetchUIDs(uids []imap.UID) ([]*imapclient.FetchMessageBuffer, error)

	// FetchSeqRange fetches the messages in the inclusive sequence range.
	FetchSeqRange(start, end uint32) ([]*imapclient.FetchMessageBuffer, error)

	// Idle starts an IDLE command.
	Idle() (IdleHandle, error)

	// Updates delivers unilateral mailbox updates observed on this
	// connection.
	Updates() <-chan MailboxUpdate

	// NumMessages returns the message count reported when the folder was
	// selected.
	NumMessages() uint32

	Logout() error
	Close() error
}

// Dialer opens a fresh Session for an account. Implementations must
// return a session with the folder already selected.
type Dialer interface {
	Dial(ctx context.Context, account model.AccountConfig, folder string) (Session, error)
}

// IMAPDialer dials real IMAP servers via go-imap's imapclient.
type IMAPDialer struct {
	// DialTimeout bounds the TCP connect. Zero means 30 seconds.
	DialTimeout time.Duration
}

// Dial connects, authenticates, and selects the folder read-only.
func (d *IMAPDialer) Dial(
	ctx context.Context,
	account model.AccountConfig,
	folder string,
) (Session, error) {
	timeout := d.DialTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	s := &imapSession{updates: make(chan MailboxUpdate, 16)}
	opts := &imapclient.Options{
		Dialer: &net.Dialer{Timeout: timeout},
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{
			Mailbox: func(data *imapclient.UnilateralDataMailbox) {
				if data.NumMessages == nil {
					return
				}
				// Non-blocking: a slow consumer drops intermediate
				// counts, and the next update carries the latest total.
				select {
				case s.updates <- MailboxUpdate{NumMessages: *data.NumMessages}:
				default:
				}
			},
		},
	}

	var client *imapclient.Client
	var err error
	if account.TLS {
		client, err = imapclient.DialTLS(account.Addr(), opts)
	} else {
		client, err = imapclient.DialStartTLS(account.Addr(), opts)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", account.Addr(), err)
	}

	if err := client.Login(account.Username, account.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		_ = client.Close()
		return nil, fmt.Errorf("authenticating %s: %w", account.Username, err)
	}

	selectData, err := client.Select(folder, &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		_ = client.Logout().Wait()
		_ = client.Close()
		return nil, fmt.Errorf("selecting %s: %w", folder, err)
	}

	s.client = client
	s.numMessages = selectData.NumMessages
	if ctx.Err() != nil {
		_ = s.Close()
		return nil, ctx.Err()
	}
	return s, nil
}

// imapSession adapts imapclient.Client to the Session interface.
type imapSession struct {
	client      *imapclient.Client
	updates     chan MailboxUpdate
	numMessages uint32
}

func (s *imapSession) SearchSince(since time.Time) ([]imap.UID, error) {
	criteria := &imap.SearchCriteria{Since: since}
	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching since %s: %w", since.Format(time.DateOnly), err)
	}
	return data.AllUIDs(), nil
}

func fetchOptions() *imap.FetchOptions {
	return &imap.FetchOptions{
		Envelope:     true,
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{fetchBodySection},
	}
}

func (s *imapSession) FetchUIDs(uids []imap.UID) ([]*imapclient.FetchMessageBuffer, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	bufs, err := s.client.Fetch(imap.UIDSetNum(uids...), fetchOptions()).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetching %d messages: %w", len(uids), err)
	}
	return bufs, nil
}

func (s *imapSession) FetchSeqRange(start, end uint32) ([]*imapclient.FetchMessageBuffer, error) {
	var seqSet imap.SeqSet
	seqSet.AddRange(start, end)
	bufs, err := s.client.Fetch(seqSet, fetchOptions()).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetching sequence range %d:%d: %w", start, end, err)
	}
	return bufs, nil
}

func (s *imapSession) Idle() (IdleHandle, error) {
	cmd, err := s.client.Idle()
	if err != nil {
		return nil, fmt.Errorf("starting idle: %w", err)
	}
	return cmd, nil
}

func (s *imapSession) Updates() <-chan MailboxUpdate {
	return s.updates
}

func (s *imapSession) NumMessages() uint32 {
	return s.numMessages
}

func (s *imapSession) Logout() error {
	return s.client.Logout().Wait()
}

func (s *imapSession) Close() error {
	return s.client.Close()
}
