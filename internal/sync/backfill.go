package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-imap/v2"
)

// Scanner performs the one-time historical scan at connection start,
// bounded by the lookback window.
type Scanner struct {
	pipeline   *Pipeline
	windowDays int
	logger     *slog.Logger
	now        func() time.Time
}

// NewScanner builds a backfill scanner with the given lookback window.
func NewScanner(pipeline *Pipeline, windowDays int, logger *slog.Logger) *Scanner {
	if windowDays <= 0 {
		windowDays = 30
	}
	return &Scanner{
		pipeline:   pipeline,
		windowDays: windowDays,
		logger:     logger,
		now:        time.Now,
	}
}

// Scan enumerates messages received within the lookback window, skips
// anything at or below the UID watermark, and feeds the rest through
// the pipeline. Returns the number of documents indexed. Zero matches
// is a no-op, not an error.
func (s *Scanner) Scan(
	ctx context.Context,
	sess Session,
	accountID, folder string,
	watermark imap.UID,
) (int, error) {
	since := s.now().AddDate(0, 0, -s.windowDays)

	uids, err := sess.SearchSince(since)
	if err != nil {
		return 0, fmt.Errorf("backfill query for %s: %w", accountID, err)
	}
	if len(uids) == 0 {
		s.logger.Info("no messages found for backfill", "account", accountID)
		return 0, nil
	}

	// Resume incrementally: UIDs at or below the watermark are already
	// in the store.
	fresh := make([]imap.UID, 0, len(uids))
	for _, uid := range uids {
		if uid > watermark {
			fresh = append(fresh, uid)
		}
	}
	if len(fresh) == 0 {
		s.logger.Info("backfill already up to date",
			"account", accountID,
			"watermark", uint32(watermark),
		)
		return 0, nil
	}

	bufs, err := sess.FetchUIDs(fresh)
	if err != nil {
		return 0, fmt.Errorf("backfill fetch for %s: %w", accountID, err)
	}

	indexed := s.pipeline.Process(ctx, accountID, folder, bufs, false)
	s.logger.Info("backfill complete",
		"account", accountID,
		"matched", len(fresh),
		"indexed", indexed,
	)
	return indexed, nil
}
