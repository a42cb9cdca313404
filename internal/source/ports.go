// Package source defines the ports the dataset is loaded through.
// Implementations live in the subpackages.
package source

import (
	"context"
	"errors"

	"finscope/internal/core"
)

// ErrNotFound is returned when the backing store has no data at all, as
// opposed to an empty data set.
var ErrNotFound = errors.New("source: not found")

// Ports for outbound adapters.
type (
	// TransactionLister returns the full, already paginated transaction list.
	TransactionLister interface {
		ListTransactions(ctx context.Context) ([]core.Transaction, error)
	}

	// CategoryTreeReader returns the type → category → subcategory tree.
	CategoryTreeReader interface {
		ReadCategoryTree(ctx context.Context) (core.CategoryTree, error)
	}

	// Source is a backend serving both halves of the dataset.
	Source interface {
		TransactionLister
		CategoryTreeReader
	}
)
