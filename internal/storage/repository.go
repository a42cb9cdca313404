// Package storage is the SQLite-backed transaction source.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"finscope/internal/core"
	"finscope/internal/log"
	"finscope/internal/source"
)

var _ source.Source = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db     *sql.DB
	loc    *time.Location
	logger *log.Logger
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// migrates it. Timestamps are returned in loc.
func NewSQLiteRepository(dbPath string, loc *time.Location, logger *log.Logger) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &SQLiteRepository{db: db, loc: loc, logger: logger.WithComponent(log.ComponentStorage)}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the connection, for readiness probes.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const listTransactions = `
SELECT id, posted_at, amount_cents, main_category, category, subcategory, owner, account_type, description
FROM transactions
ORDER BY posted_at, id`

// ListTransactions implements source.TransactionLister
func (r *SQLiteRepository) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, listTransactions)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := []core.Transaction{}
	for rows.Next() {
		var (
			tx       core.Transaction
			postedAt string
			cents    int64
			mc       string
		)
		if err := rows.Scan(&tx.ID, &postedAt, &cents, &mc, &tx.Category, &tx.Subcategory, &tx.Owner, &tx.AccountType, &tx.Description); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, postedAt)
		if err != nil {
			return nil, fmt.Errorf("transaction %q: %w", tx.ID, err)
		}
		tx.PostedAt = t.In(r.loc)
		tx.Amount = core.AmountFromCents(cents)
		tx.MainCategory = core.MainCategory(mc)
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

const listCategoryNodes = `
SELECT id, name, color, COALESCE(parent_id, '')
FROM category_nodes
ORDER BY position`

// ReadCategoryTree implements source.CategoryTreeReader
func (r *SQLiteRepository) ReadCategoryTree(ctx context.Context) (core.CategoryTree, error) {
	rows, err := r.db.QueryContext(ctx, listCategoryNodes)
	if err != nil {
		return nil, fmt.Errorf("list category nodes: %w", err)
	}
	defer rows.Close()

	var flat []source.FlatNode
	for rows.Next() {
		var n source.FlatNode
		if err := rows.Scan(&n.ID, &n.Name, &n.Color, &n.ParentID); err != nil {
			return nil, fmt.Errorf("scan category node: %w", err)
		}
		flat = append(flat, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category nodes: %w", err)
	}
	return source.BuildTree(flat)
}

const upsertTransaction = `
INSERT INTO transactions (id, posted_at, amount_cents, main_category, category, subcategory, owner, account_type, description)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    posted_at     = excluded.posted_at,
    amount_cents  = excluded.amount_cents,
    main_category = excluded.main_category,
    category      = excluded.category,
    subcategory   = excluded.subcategory,
    owner         = excluded.owner,
    account_type  = excluded.account_type,
    description   = excluded.description,
    updated_at    = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`

// UpsertTransactions inserts or updates txs in one database transaction.
// Amounts are stored in cents.
func (r *SQLiteRepository) UpsertTransactions(ctx context.Context, txs []core.Transaction) error {
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("transaction %q: %w", tx.ID, err)
		}
	}
	return r.inTx(ctx, func(dbtx *sql.Tx) error {
		stmt, err := dbtx.PrepareContext(ctx, upsertTransaction)
		if err != nil {
			return fmt.Errorf("prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, tx := range txs {
			_, err := stmt.ExecContext(ctx,
				tx.ID, tx.PostedAt.UTC().Format(time.RFC3339Nano), core.Cents(tx.Amount), string(tx.MainCategory),
				tx.Category, tx.Subcategory, tx.Owner, tx.AccountType, tx.Description)
			if err != nil {
				return fmt.Errorf("upsert transaction %q: %w", tx.ID, err)
			}
		}
		r.logger.InfoContext(ctx, "Transactions upserted", log.FieldTransactions, len(txs))
		return nil
	})
}

// DeleteTransaction removes one transaction. Deleting a missing id returns
// source.ErrNotFound.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction %q: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("transaction %q: %w", id, source.ErrNotFound)
	}
	return nil
}

// ReplaceCategoryTree swaps the stored tree for tree.
func (r *SQLiteRepository) ReplaceCategoryTree(ctx context.Context, tree core.CategoryTree) error {
	if err := tree.Validate(); err != nil {
		return fmt.Errorf("invalid category tree: %w", err)
	}
	return r.inTx(ctx, func(dbtx *sql.Tx) error {
		if _, err := dbtx.ExecContext(ctx, `DELETE FROM category_nodes`); err != nil {
			return fmt.Errorf("clear category nodes: %w", err)
		}
		for i, n := range source.Flatten(tree) {
			var parent any
			if n.ParentID != "" {
				parent = n.ParentID
			}
			_, err := dbtx.ExecContext(ctx,
				`INSERT INTO category_nodes (id, name, color, parent_id, position) VALUES (?, ?, ?, ?, ?)`,
				n.ID, n.Name, n.Color, parent, i)
			if err != nil {
				return fmt.Errorf("insert category node %q: %w", n.ID, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := dbtx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()
	if err = fn(dbtx); err != nil {
		return err
	}
	if err = dbtx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
