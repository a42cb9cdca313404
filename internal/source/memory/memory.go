// Package memory is an in-process source, optionally seeded from JSON files.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"finscope/internal/core"
	"finscope/internal/source"
)

const (
	TransactionsFile = "transactions.json"
	CategoriesFile   = "categories.json"
)

var _ source.Source = (*Store)(nil)

type Store struct {
	mu   sync.RWMutex
	txs  []core.Transaction
	tree core.CategoryTree
}

func New(txs []core.Transaction, tree core.CategoryTree) *Store {
	return &Store{txs: txs, tree: tree}
}

// NewFromFiles loads transactions.json and categories.json from dir. A
// missing transactions file yields an empty list; a missing categories file
// yields DefaultTree.
func NewFromFiles(dir string, loc *time.Location) (*Store, error) {
	var records []source.Record
	if err := readJSON(filepath.Join(dir, TransactionsFile), &records); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	txs := make([]core.Transaction, 0, len(records))
	for _, r := range records {
		tx, err := r.Transaction(loc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", TransactionsFile, err)
		}
		txs = append(txs, tx)
	}

	tree := DefaultTree()
	var nodes []core.CategoryNode
	err := readJSON(filepath.Join(dir, CategoriesFile), &nodes)
	switch {
	case err == nil:
		tree = core.CategoryTree(nodes)
	case !errors.Is(err, fs.ErrNotExist):
		return nil, err
	}
	if err := tree.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", CategoriesFile, err)
	}
	return New(txs, tree), nil
}

// DefaultTree has one type node per main category and no categories.
func DefaultTree() core.CategoryTree {
	return core.CategoryTree{
		{ID: "income", Name: string(core.Income)},
		{ID: "expenses", Name: string(core.Expenses)},
		{ID: "transfers", Name: string(core.Transfers)},
		{ID: "targets", Name: string(core.Targets)},
	}
}

func (s *Store) ListTransactions(_ context.Context) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Transaction(nil), s.txs...), nil
}

func (s *Store) ReadCategoryTree(_ context.Context) (core.CategoryTree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree, nil
}

// Replace swaps the whole content, as a file watcher or test would.
func (s *Store) Replace(txs []core.Transaction, tree core.CategoryTree) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = txs
	if tree != nil {
		s.tree = tree
	}
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
