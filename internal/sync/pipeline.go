package sync

import (
	"context"
	"errors"
	"log/slog"
	gosync "sync"
	"sync/atomic"

	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/mailsift/mailsift/internal/classify"
	"github.com/mailsift/mailsift/internal/metrics"
	"github.com/mailsift/mailsift/internal/model"
)

// defaultPipelineConcurrency bounds how many sibling messages of one
// batch are normalized and indexed at the same time.
const defaultPipelineConcurrency = 4

// Indexer is the index sink contract: an idempotent upsert by document
// id, safe under concurrent calls.
type Indexer interface {
	UpsertDocument(ctx context.Context, doc model.EmailDocument) error
}

// Pipeline turns batches of fetched messages into indexed documents.
// Failures are isolated per message: a parse or upsert error is logged,
// counted, and never aborts the siblings.
type Pipeline struct {
	sink        Indexer
	normalizer  *Normalizer
	classifier  classify.Classifier
	metrics     *metrics.SyncMetrics
	logger      *slog.Logger
	concurrency int
}

// NewPipeline builds a pipeline. classifier and m may be nil.
func NewPipeline(
	sink Indexer,
	classifier classify.Classifier,
	m *metrics.SyncMetrics,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		sink:        sink,
		normalizer:  NewNormalizer(),
		classifier:  classifier,
		metrics:     m,
		logger:      logger,
		concurrency: defaultPipelineConcurrency,
	}
}

// Process normalizes, classifies, and indexes every message in the
// batch, concurrently up to the pipeline's bound, and returns how many
// documents reached the sink.
func (p *Pipeline) Process(
	ctx context.Context,
	accountID, folder string,
	bufs []*imapclient.FetchMessageBuffer,
	live bool,
) int {
	if len(bufs) == 0 {
		return 0
	}

	var indexed atomic.Int64
	var wg gosync.WaitGroup
	sem := make(chan struct{}, p.concurrency)

	for _, buf := range bufs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(buf *imapclient.FetchMessageBuffer) {
			defer wg.Done()
			defer func() { <-sem }()
			if p.processOne(ctx, accountID, folder, buf, live) {
				indexed.Add(1)
			}
		}(buf)
	}
	wg.Wait()

	return int(indexed.Load())
}

// processOne runs the self-contained per-message path. Returns whether
// a document was indexed.
func (p *Pipeline) processOne(
	ctx context.Context,
	accountID, folder string,
	buf *imapclient.FetchMessageBuffer,
	live bool,
) bool {
	doc, err := p.normalizer.Normalize(accountID, folder, buf, live)
	if err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			p.metrics.ParseFailure(accountID)
			p.logger.Warn("skipping unparsable message",
				"account", accountID,
				"seq", buf.SeqNum,
				"error", err,
			)
			return false
		}
		p.logger.Error("normalizing message",
			"account", accountID,
			"seq", buf.SeqNum,
			"error", err,
		)
		return false
	}

	if p.classifier != nil {
		doc.Category = p.classifier.Classify(doc.Subject + "\n" + doc.Body)
	}

	if err := p.sink.UpsertDocument(ctx, doc); err != nil {
		// Skip-and-log keeps the account pipeline moving; the message is
		// picked up again on the next backfill if it carried a UID.
		p.metrics.IndexFailure(accountID)
		p.logger.Warn("skipping document after index failure",
			"account", accountID,
			"id", doc.ID,
			"error", err,
		)
		return false
	}

	p.metrics.DocumentIndexed(accountID)
	return true
}
