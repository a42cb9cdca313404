// Package dataset holds the loaded transactions and category tree shared by
// every timeline view, and reloads them from a source on demand.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"finscope/internal/core"
	"finscope/internal/log"
	"finscope/internal/source"
)

// ErrNotLoaded is returned by Current before the first successful load.
var ErrNotLoaded = errors.New("dataset not loaded")

// loadTimeout bounds a shared reload, which outlives any single caller.
const loadTimeout = 30 * time.Second

// Dataset is an immutable, versioned snapshot. Views key their caches on
// Version, so a reload always produces a larger one.
type Dataset struct {
	Version      uint64
	Transactions []core.Transaction
	Tree         core.CategoryTree
	LoadedAt     time.Time
}

// Store owns the current dataset. Reloads are deduplicated: concurrent
// callers share one load.
type Store struct {
	txs     source.TransactionLister
	tree    source.CategoryTreeReader
	backend string
	logger  *log.Logger
	slog    *log.StructuredLogger
	now     func() time.Time

	loadTimeout time.Duration
	group       singleflight.Group

	mu        sync.RWMutex
	current   Dataset
	loaded    bool
	listeners []func(Dataset)
}

// NewStore creates a store reading from src. backend is only used in logs.
func NewStore(src source.Source, backend string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Discard()
	}
	return &Store{
		txs:     src,
		tree:    src,
		backend: backend,
		logger:  logger.WithComponent(log.ComponentDataset),
		slog:    log.NewStructuredLogger(logger),
		now:     time.Now,

		loadTimeout: loadTimeout,
	}
}

// Current returns the last loaded dataset.
func (s *Store) Current() (Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return Dataset{}, ErrNotLoaded
	}
	return s.current, nil
}

// Loaded reports whether a dataset is available.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Subscribe registers fn to be called after every successful reload.
func (s *Store) Subscribe(fn func(Dataset)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Reload fetches transactions and the category tree in parallel and swaps
// them in. On failure the previous dataset stays current.
//
// The load is shared by every concurrent caller, so it runs detached from
// ctx's cancellation under its own timeout. A cancelled caller stops
// waiting without failing the others.
func (s *Store) Reload(ctx context.Context) (Dataset, error) {
	ch := s.group.DoChan("reload", func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()
		return s.load(lctx)
	})
	select {
	case <-ctx.Done():
		return Dataset{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Dataset{}, res.Err
		}
		return res.Val.(Dataset), nil
	}
}

func (s *Store) load(ctx context.Context) (Dataset, error) {
	start := s.now()

	var (
		txs  []core.Transaction
		tree core.CategoryTree
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txs, err = s.txs.ListTransactions(gctx)
		if err != nil {
			return fmt.Errorf("list transactions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		tree, err = s.tree.ReadCategoryTree(gctx)
		if err != nil {
			return fmt.Errorf("read category tree: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		s.slog.LogError(ctx, "Dataset load failed", err, log.ComponentDataset, log.OpLoad, log.NewFields())
		return Dataset{}, err
	}

	if err := validate(txs, tree); err != nil {
		s.slog.LogError(ctx, "Dataset rejected", err, log.ComponentDataset, log.OpValidate, log.NewFields())
		return Dataset{}, err
	}

	s.mu.Lock()
	ds := Dataset{
		Version:      s.current.Version + 1,
		Transactions: txs,
		Tree:         tree,
		LoadedAt:     s.now(),
	}
	s.current = ds
	s.loaded = true
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	s.slog.LogDatasetLoaded(ctx, s.backend, ds.Version, len(txs), countNodes(tree), s.now().Sub(start).Milliseconds())
	for _, fn := range listeners {
		fn(ds)
	}
	return ds, nil
}

func validate(txs []core.Transaction, tree core.CategoryTree) error {
	if err := tree.Validate(); err != nil {
		return fmt.Errorf("invalid category tree: %w", err)
	}
	for i, tx := range txs {
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("invalid transaction %d (%q): %w", i, tx.ID, err)
		}
	}
	return nil
}

func countNodes(tree core.CategoryTree) int {
	n := 0
	for _, typ := range tree {
		n++
		for _, cat := range typ.Children {
			n += 1 + len(cat.Children)
		}
	}
	return n
}
