package sync

import (
	"context"
	"log/slog"
	"time"
)

// idleRefresh restarts the IDLE command before servers hit the
// 29-minute inactivity limit (RFC 2177 recommends well under it).
const idleRefresh = 24 * time.Minute

// Listener holds the connection open after backfill and reacts to
// new-message notifications, fetching only the newly reported range.
type Listener struct {
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewListener builds a live update listener.
func NewListener(pipeline *Pipeline, logger *slog.Logger) *Listener {
	return &Listener{pipeline: pipeline, logger: logger}
}

// Listen idles on the session and handles mailbox updates until the
// session closes or errors, or ctx is canceled. It never returns nil on
// its own: a nil-error exit happens only through ctx cancellation.
func (l *Listener) Listen(
	ctx context.Context,
	sess Session,
	accountID, folder string,
) error {
	// Sequence watermark: everything at or below this count has been
	// seen (backfill covered the history).
	seen := sess.NumMessages()

	for {
		idle, err := sess.Idle()
		if err != nil {
			return err
		}

		idleDone := make(chan error, 1)
		go func() { idleDone <- idle.Wait() }()

		select {
		case <-ctx.Done():
			_ = idle.Close()
			<-idleDone
			return ctx.Err()

		case update := <-sess.Updates():
			if err := idle.Close(); err != nil {
				return err
			}
			if err := <-idleDone; err != nil {
				return err
			}
			seen = l.handleUpdate(ctx, sess, accountID, folder, seen, update)

		case err := <-idleDone:
			// The server ended the IDLE on its own; an error means the
			// connection is gone, otherwise just idle again.
			if err != nil {
				return err
			}

		case <-time.After(idleRefresh):
			if err := idle.Close(); err != nil {
				return err
			}
			if err := <-idleDone; err != nil {
				return err
			}
		}
	}
}

// handleUpdate fetches and indexes the newly reported sequence range.
// Returns the new sequence watermark.
func (l *Listener) handleUpdate(
	ctx context.Context,
	sess Session,
	accountID, folder string,
	seen uint32,
	update MailboxUpdate,
) uint32 {
	total := update.NumMessages
	if total <= seen {
		// Shrink means an expunge elsewhere; nothing new to fetch.
		return total
	}

	l.logger.Info("new mail",
		"account", accountID,
		"count", total-seen,
	)

	bufs, err := sess.FetchSeqRange(seen+1, total)
	if err != nil {
		// The fetch failing is not fatal to the listen loop; the next
		// update (or reconnect backfill) covers the gap.
		l.logger.Warn("fetching new messages",
			"account", accountID,
			"error", err,
		)
		return seen
	}

	l.pipeline.Process(ctx, accountID, folder, bufs, true)
	return total
}
