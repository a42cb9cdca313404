package google

import (
	"fmt"
	"strings"
	"time"

	"finscope/internal/core"
	"finscope/internal/source"
)

var transactionColumns = []string{"id", "posted_at", "amount", "main_category", "category"}

// parseTransactions converts a values matrix into transactions. Fully blank
// rows are skipped and counted; any other malformed row fails the parse.
func parseTransactions(values [][]interface{}, loc *time.Location) ([]core.Transaction, int, error) {
	if len(values) == 0 {
		return []core.Transaction{}, 0, nil
	}
	cols := source.HeaderColumns(toStrings(values[0]))
	if err := cols.Require(transactionColumns...); err != nil {
		return nil, 0, fmt.Errorf("unexpected header %v: %w", toStrings(values[0]), err)
	}

	out := make([]core.Transaction, 0, len(values)-1)
	skipped := 0
	for i, raw := range values[1:] {
		row := toStrings(raw)
		if blank(row) {
			skipped++
			continue
		}
		rec := source.Record{
			ID:           cols.Get(row, "id"),
			PostedAt:     cols.Get(row, "posted_at"),
			Amount:       cols.Get(row, "amount"),
			MainCategory: cols.Get(row, "main_category"),
			Category:     cols.Get(row, "category"),
			Subcategory:  cols.Get(row, "subcategory"),
			Owner:        cols.Get(row, "owner"),
			AccountType:  cols.Get(row, "account_type"),
			Description:  cols.Get(row, "description"),
		}
		tx, err := rec.Transaction(loc)
		if err != nil {
			return nil, 0, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, tx)
	}
	return out, skipped, nil
}

func parseCategories(values [][]interface{}) (core.CategoryTree, error) {
	if len(values) == 0 {
		return core.CategoryTree{}, nil
	}
	cols := source.HeaderColumns(toStrings(values[0]))
	if err := cols.Require("id", "name"); err != nil {
		return nil, fmt.Errorf("unexpected header %v: %w", toStrings(values[0]), err)
	}
	rows := make([]source.FlatNode, 0, len(values)-1)
	for _, raw := range values[1:] {
		row := toStrings(raw)
		if blank(row) {
			continue
		}
		rows = append(rows, source.FlatNode{
			ID:       cols.Get(row, "id"),
			Name:     cols.Get(row, "name"),
			Color:    cols.Get(row, "color"),
			ParentID: cols.Get(row, "parent_id"),
		})
	}
	return source.BuildTree(rows)
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func blank(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}
