// Package services holds background processes that keep the backends in
// step with each other.
package services

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"finscope/internal/core"
	"finscope/internal/log"
	"finscope/internal/source"
)

// Replica is a writable store the mirror copies the upstream dataset into.
type Replica interface {
	source.Source
	UpsertTransactions(ctx context.Context, txs []core.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error
	ReplaceCategoryTree(ctx context.Context, tree core.CategoryTree) error
}

// Notifier announces that the replica changed.
type Notifier interface {
	PublishDatasetChanged(ctx context.Context, source, reason string) error
}

// MirrorConfig holds configuration for the mirror
type MirrorConfig struct {
	// PollInterval is how often the upstream is read (default: 5m)
	PollInterval time.Duration

	// Name identifies the replica in change notifications (default: sqlite)
	Name string
}

// DefaultMirrorConfig returns sensible defaults
func DefaultMirrorConfig() MirrorConfig {
	return MirrorConfig{
		PollInterval: 5 * time.Minute,
		Name:         "sqlite",
	}
}

// MirrorResult describes one pass.
type MirrorResult struct {
	Upserted     int
	Deleted      int
	TreeReplaced bool
}

func (r MirrorResult) Changed() bool {
	return r.Upserted > 0 || r.Deleted > 0 || r.TreeReplaced
}

func (r MirrorResult) String() string {
	return fmt.Sprintf("upserted=%d deleted=%d tree_replaced=%t", r.Upserted, r.Deleted, r.TreeReplaced)
}

// Mirror periodically copies an upstream source (usually the spreadsheet)
// into a replica (usually SQLite) and notifies servers when anything changed.
type Mirror struct {
	upstream source.Source
	replica  Replica
	notifier Notifier
	config   MirrorConfig
	logger   *log.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewMirror creates a mirror. notifier may be nil.
func NewMirror(upstream source.Source, replica Replica, notifier Notifier, config MirrorConfig, logger *log.Logger) *Mirror {
	def := DefaultMirrorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.Name == "" {
		config.Name = def.Name
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Mirror{
		upstream: upstream,
		replica:  replica,
		notifier: notifier,
		config:   config,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// Start begins the polling loop. Returns an error if already running.
func (m *Mirror) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("mirror is already running")
	}
	m.running = true
	stopCh, doneCh := make(chan struct{}), make(chan struct{})
	m.stopCh, m.doneCh = stopCh, doneCh
	m.mu.Unlock()

	go m.runLoop(ctx, stopCh, doneCh)

	m.logger.InfoContext(ctx, "Mirror started", "poll_interval", m.config.PollInterval)
	return nil
}

// Stop gracefully stops the mirror and waits for the current pass.
func (m *Mirror) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	stopCh, doneCh := m.stopCh, m.doneCh
	m.running = false
	m.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		m.logger.InfoContext(ctx, "Mirror stopped gracefully")
		return nil
	case <-ctx.Done():
		m.logger.WarnContext(ctx, "Mirror stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the mirror is currently running
func (m *Mirror) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// runLoop exits on Stop or when ctx ends; either way the mirror is marked
// stopped so it can be started again.
func (m *Mirror) runLoop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer func() {
		m.mu.Lock()
		if m.doneCh == doneCh {
			m.running = false
		}
		m.mu.Unlock()
		close(doneCh)
	}()

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	m.pass(ctx)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pass(ctx)
		}
	}
}

func (m *Mirror) pass(ctx context.Context) {
	if _, err := m.SyncOnce(ctx); err != nil {
		m.logger.ErrorContext(ctx, "Mirror pass failed", log.FieldError, err)
	}
}

// SyncOnce brings the replica in line with the upstream: new and changed
// transactions are upserted, vanished ones deleted, and the category tree
// replaced when it differs. The notifier is only called on change.
func (m *Mirror) SyncOnce(ctx context.Context) (MirrorResult, error) {
	var (
		res             MirrorResult
		upTxs, repTxs   []core.Transaction
		upTree, repTree core.CategoryTree
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		upTxs, err = m.upstream.ListTransactions(gctx)
		return wrap("list upstream transactions", err)
	})
	g.Go(func() (err error) {
		upTree, err = m.upstream.ReadCategoryTree(gctx)
		return wrap("read upstream category tree", err)
	})
	g.Go(func() (err error) {
		repTxs, err = m.replica.ListTransactions(gctx)
		return wrap("list replica transactions", err)
	})
	g.Go(func() (err error) {
		repTree, err = m.replica.ReadCategoryTree(gctx)
		return wrap("read replica category tree", err)
	})
	if err := g.Wait(); err != nil {
		return res, err
	}

	if !slices.Equal(source.Flatten(upTree), source.Flatten(repTree)) {
		if err := m.replica.ReplaceCategoryTree(ctx, upTree); err != nil {
			return res, err
		}
		res.TreeReplaced = true
	}

	existing := make(map[string]core.Transaction, len(repTxs))
	for _, tx := range repTxs {
		existing[tx.ID] = tx
	}
	var changed []core.Transaction
	for _, tx := range upTxs {
		if old, ok := existing[tx.ID]; !ok || !sameTransaction(old, tx) {
			changed = append(changed, tx)
		}
		delete(existing, tx.ID)
	}
	if len(changed) > 0 {
		if err := m.replica.UpsertTransactions(ctx, changed); err != nil {
			return res, err
		}
		res.Upserted = len(changed)
	}

	stale := make([]string, 0, len(existing))
	for id := range existing {
		stale = append(stale, id)
	}
	slices.Sort(stale)
	for _, id := range stale {
		if err := m.replica.DeleteTransaction(ctx, id); err != nil {
			return res, err
		}
		res.Deleted++
	}

	if !res.Changed() {
		m.logger.DebugContext(ctx, "Mirror up to date", log.FieldTransactions, len(upTxs))
		return res, nil
	}

	m.logger.InfoContext(ctx, "Mirror applied changes",
		log.FieldOperation, log.OpReload,
		"upserted", res.Upserted,
		"deleted", res.Deleted,
		"tree_replaced", res.TreeReplaced)

	if m.notifier != nil {
		if err := m.notifier.PublishDatasetChanged(ctx, m.config.Name, "mirror: "+res.String()); err != nil {
			// The replica is already written; the next pass will not notify again.
			m.logger.WarnContext(ctx, "Failed to publish dataset changed", log.FieldError, err)
		}
	}
	return res, nil
}

// sameTransaction compares what the replica stores; amounts are kept in cents.
func sameTransaction(a, b core.Transaction) bool {
	return a.ID == b.ID &&
		a.PostedAt.Equal(b.PostedAt) &&
		core.Cents(a.Amount) == core.Cents(b.Amount) &&
		a.MainCategory == b.MainCategory &&
		a.Category == b.Category &&
		a.Subcategory == b.Subcategory &&
		a.Owner == b.Owner &&
		a.AccountType == b.AccountType &&
		a.Description == b.Description
}

func wrap(what string, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}
