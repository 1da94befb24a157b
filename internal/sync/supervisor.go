package sync

import (
	"context"
	"log/slog"
	gosync "sync"

	"github.com/mailsift/mailsift/internal/classify"
	"github.com/mailsift/mailsift/internal/credential"
	"github.com/mailsift/mailsift/internal/metrics"
	"github.com/mailsift/mailsift/internal/model"
)

// Supervisor enumerates configured accounts and runs one lifecycle
// worker per valid account. A misconfigured account is skipped with a
// warning; a failing account never affects its siblings.
type Supervisor struct {
	cfg     model.SyncConfig
	dialer  Dialer
	sink    Indexer
	marks   WatermarkSource
	cls     classify.Classifier
	metrics *metrics.SyncMetrics
	logger  *slog.Logger

	workerOpts []WorkerOption

	mu      gosync.Mutex
	workers map[string]*Worker
	wg      gosync.WaitGroup
	running bool
}

// SupervisorOption customizes supervisor behavior.
type SupervisorOption func(*Supervisor)

// WithDialer overrides the session dialer, primarily for tests.
func WithDialer(d Dialer) SupervisorOption {
	return func(s *Supervisor) {
		if d != nil {
			s.dialer = d
		}
	}
}

// WithWorkerOptions passes options through to every worker.
func WithWorkerOptions(opts ...WorkerOption) SupervisorOption {
	return func(s *Supervisor) {
		s.workerOpts = append(s.workerOpts, opts...)
	}
}

// Sink combines the two store-side capabilities the engine needs.
type Sink interface {
	Indexer
	WatermarkSource
}

// NewSupervisor builds a supervisor over the given sink. classifier and
// m may be nil.
func NewSupervisor(
	cfg model.SyncConfig,
	sink Sink,
	classifier classify.Classifier,
	m *metrics.SyncMetrics,
	logger *slog.Logger,
	opts ...SupervisorOption,
) *Supervisor {
	s := &Supervisor{
		cfg:     cfg,
		dialer:  &IMAPDialer{},
		sink:    sink,
		marks:   sink,
		cls:     classifier,
		metrics: m,
		logger:  logger,
		workers: make(map[string]*Worker),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches one worker goroutine per valid account. Accounts with
// incomplete configuration are skipped, not fatal.
func (s *Supervisor) Start(ctx context.Context, accounts []model.AccountConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	folder := s.cfg.Folder
	if folder == "" {
		folder = "INBOX"
	}

	for _, account := range accounts {
		account := s.resolveCredentials(account)
		if err := account.Validate(); err != nil {
			s.logger.Warn("skipping account", "error", err)
			continue
		}

		pipeline := NewPipeline(s.sink, s.cls, s.metrics, s.logger)
		scanner := NewScanner(pipeline, s.cfg.WindowDays, s.logger)
		listener := NewListener(pipeline, s.logger)

		opts := append([]WorkerOption{
			WithBackoff(s.cfg.ReconnectBase(), s.cfg.ReconnectMax()),
		}, s.workerOpts...)

		worker := NewWorker(
			account, folder,
			s.dialer, scanner, listener,
			s.marks, s.metrics, s.logger,
			opts...,
		)
		s.workers[account.Name()] = worker

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			worker.Run(ctx)
		}()
	}

	s.logger.Info("sync supervisor started", "workers", len(s.workers))
}

// Wait blocks until every worker has stopped (after the Start ctx is
// canceled).
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// States returns a snapshot of every worker's current state.
func (s *Supervisor) States() map[string]SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := make(map[string]SyncState, len(s.workers))
	for name, w := range s.workers {
		states[name] = w.State()
	}
	return states
}

// resolveCredentials fills a missing password from the system keyring.
func (s *Supervisor) resolveCredentials(account model.AccountConfig) model.AccountConfig {
	if account.Password != "" {
		return account
	}
	secret, err := credential.Get(credential.AccountKey(account.Name()))
	if err != nil {
		s.logger.Debug("no keyring credential", "account", account.Name(), "error", err)
		return account
	}
	account.Password = secret
	return account
}
