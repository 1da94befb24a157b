package sync

import (
	"context"
	"log/slog"
	"math/rand/v2"
	gosync "sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/google/uuid"

	"github.com/mailsift/mailsift/internal/metrics"
	"github.com/mailsift/mailsift/internal/model"
)

// Phase is a worker's position in the connection lifecycle.
type Phase string

const (
	PhaseConnecting       Phase = "connecting"
	PhaseBackfilling      Phase = "backfilling"
	PhaseListening        Phase = "listening"
	PhaseReconnectPending Phase = "reconnect_pending"
	PhaseStopped          Phase = "stopped"
)

// SyncState is the observable runtime state of one account worker.
type SyncState struct {
	Phase    Phase
	LastErr  error
	Failures int // consecutive failures, drives backoff
}

// WatermarkSource answers the highest provider UID already indexed for
// an account and folder. The store implements it.
type WatermarkSource interface {
	MaxUID(ctx context.Context, accountID, folder string) (uint32, error)
}

// Worker drives exactly one account's connection through its lifecycle:
// connect, backfill once, listen for live updates, and on any fatal
// error tear down and reconnect after a delay. Failures never propagate
// to other accounts.
type Worker struct {
	account    model.AccountConfig
	folder     string
	dialer     Dialer
	scanner    *Scanner
	listener   *Listener
	watermarks WatermarkSource
	metrics    *metrics.SyncMetrics
	logger     *slog.Logger

	backoffBase time.Duration
	backoffMax  time.Duration

	// onTransition observes phase changes; used by tests and wired to
	// telemetry by default.
	onTransition func(account string, from, to Phase)

	mu    gosync.Mutex
	state SyncState
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*Worker)

// WithBackoff overrides the reconnect delay policy.
func WithBackoff(base, max time.Duration) WorkerOption {
	return func(w *Worker) {
		if base > 0 {
			w.backoffBase = base
		}
		if max > 0 {
			w.backoffMax = max
		}
	}
}

// WithTransitionHook registers an observer for phase transitions.
func WithTransitionHook(hook func(account string, from, to Phase)) WorkerOption {
	return func(w *Worker) {
		w.onTransition = hook
	}
}

// NewWorker builds a lifecycle worker for one account.
func NewWorker(
	account model.AccountConfig,
	folder string,
	dialer Dialer,
	scanner *Scanner,
	listener *Listener,
	watermarks WatermarkSource,
	m *metrics.SyncMetrics,
	logger *slog.Logger,
	opts ...WorkerOption,
) *Worker {
	w := &Worker{
		account:     account,
		folder:      folder,
		dialer:      dialer,
		scanner:     scanner,
		listener:    listener,
		watermarks:  watermarks,
		metrics:     m,
		logger:      logger,
		backoffBase: 5 * time.Second,
		backoffMax:  2 * time.Minute,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// State returns a snapshot of the worker's current state.
func (w *Worker) State() SyncState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Run drives the state machine until ctx is canceled. It never returns
// under normal operation; every error path leads back to a reconnect.
func (w *Worker) Run(ctx context.Context) {
	account := w.account.Name()
	defer w.transition(PhaseStopped)

	for {
		if ctx.Err() != nil {
			return
		}

		// A fresh session per attempt; the old one is never reused.
		sessionID := uuid.NewString()[:8]
		log := w.logger.With("account", account, "session", sessionID)

		w.transition(PhaseConnecting)
		sess, err := w.dialer.Dial(ctx, w.account, w.folder)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("connect failed", "error", err)
			w.recordFailure(err)
			w.transition(PhaseReconnectPending)
			w.metrics.Reconnect(account)
			if !w.sleepBackoff(ctx) {
				return
			}
			continue
		}
		log.Info("connected", "mailbox", w.folder)
		w.recordSuccess()

		w.transition(PhaseBackfilling)
		watermark, err := w.watermarks.MaxUID(ctx, account, w.folder)
		if err != nil {
			// Without a watermark the scan falls back to the full
			// window; the idempotent upsert absorbs the overlap.
			log.Warn("reading watermark", "error", err)
			watermark = 0
		}
		if _, err := w.scanner.Scan(ctx, sess, account, w.folder, imap.UID(watermark)); err != nil {
			// Missed backfill is less harmful than no live coverage.
			log.Warn("backfill failed, continuing to live updates", "error", err)
		}

		w.transition(PhaseListening)
		err = w.listener.Listen(ctx, sess, account, w.folder)
		if ctx.Err() != nil {
			// Clean shutdown sends LOGOUT; error paths just drop the
			// connection.
			_ = sess.Logout()
			_ = sess.Close()
			return
		}
		_ = sess.Close()

		log.Warn("session ended, scheduling reconnect", "error", err)
		w.recordFailure(err)
		w.transition(PhaseReconnectPending)
		w.metrics.Reconnect(account)
		if !w.sleepBackoff(ctx) {
			return
		}
	}
}

// transition moves the worker to the next phase and notifies observers.
func (w *Worker) transition(to Phase) {
	w.mu.Lock()
	from := w.state.Phase
	w.state.Phase = to
	w.mu.Unlock()

	if from == to {
		return
	}
	w.metrics.PhaseTransition(w.account.Name(), string(to))
	if w.onTransition != nil {
		w.onTransition(w.account.Name(), from, to)
	}
}

func (w *Worker) recordFailure(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state.LastErr = err
	w.state.Failures++
}

func (w *Worker) recordSuccess() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state.LastErr = nil
	w.state.Failures = 0
}

// sleepBackoff waits out the reconnect delay for the current failure
// count: capped exponential growth with +/-20% jitter. Returns false if
// ctx is canceled while waiting.
func (w *Worker) sleepBackoff(ctx context.Context) bool {
	w.mu.Lock()
	failures := w.state.Failures
	w.mu.Unlock()

	delay := w.backoffBase
	for i := 1; i < failures && delay < w.backoffMax; i++ {
		delay *= 2
	}
	if delay > w.backoffMax {
		delay = w.backoffMax
	}
	jitter := 0.8 + 0.4*rand.Float64()
	delay = time.Duration(float64(delay) * jitter)

	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}
