package source

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"finscope/internal/core"
)

var (
	ErrOrphanNode    = errors.New("category node references unknown parent")
	ErrInvalidDate   = errors.New("invalid date")
	ErrMissingColumn = errors.New("missing column")
)

// FlatNode is a category tree node stored as a row with a parent reference.
// Types have an empty ParentID.
type FlatNode struct {
	ID       string
	Name     string
	Color    string
	ParentID string
}

// BuildTree nests flat rows into a tree, keeping row order among siblings.
// Parents may appear after their children.
func BuildTree(rows []FlatNode) (core.CategoryTree, error) {
	byID := make(map[string]FlatNode, len(rows))
	for _, r := range rows {
		if _, dup := byID[r.ID]; dup {
			return nil, fmt.Errorf("%w: %s", core.ErrDuplicateNodeID, r.ID)
		}
		byID[r.ID] = r
	}
	children := make(map[string][]FlatNode)
	var roots []FlatNode
	for _, r := range rows {
		if r.ParentID == "" {
			roots = append(roots, r)
			continue
		}
		if _, ok := byID[r.ParentID]; !ok {
			return nil, fmt.Errorf("%w: %s -> %s", ErrOrphanNode, r.ID, r.ParentID)
		}
		children[r.ParentID] = append(children[r.ParentID], r)
	}

	var build func(r FlatNode, depth int) (core.CategoryNode, error)
	build = func(r FlatNode, depth int) (core.CategoryNode, error) {
		n := core.CategoryNode{ID: r.ID, Name: r.Name, Color: r.Color}
		kids := children[r.ID]
		if len(kids) > 0 && depth >= 2 {
			return n, core.ErrTreeTooDeep
		}
		for _, k := range kids {
			child, err := build(k, depth+1)
			if err != nil {
				return n, err
			}
			n.Children = append(n.Children, child)
		}
		return n, nil
	}

	tree := make(core.CategoryTree, 0, len(roots))
	for _, r := range roots {
		n, err := build(r, 0)
		if err != nil {
			return nil, err
		}
		tree = append(tree, n)
	}
	return tree, nil
}

// Flatten is the inverse of BuildTree.
func Flatten(tree core.CategoryTree) []FlatNode {
	var out []FlatNode
	var walk func(nodes []core.CategoryNode, parent string)
	walk = func(nodes []core.CategoryNode, parent string) {
		for _, n := range nodes {
			out = append(out, FlatNode{ID: n.ID, Name: n.Name, Color: n.Color, ParentID: parent})
			walk(n.Children, n.ID)
		}
	}
	walk(tree, "")
	return out
}

var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", time.DateOnly, "02/01/2006"}

// ParseDate accepts RFC 3339, ISO dates and day-first dd/mm/yyyy. Dates
// without a zone are read in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// Record is one transaction row in its textual form, as stored in sheets
// and JSON seed files.
type Record struct {
	ID           string `json:"id"`
	PostedAt     string `json:"posted_at"`
	Amount       string `json:"amount"`
	MainCategory string `json:"main_category"`
	Category     string `json:"category"`
	Subcategory  string `json:"subcategory,omitempty"`
	Owner        string `json:"owner,omitempty"`
	AccountType  string `json:"account_type,omitempty"`
	Description  string `json:"description,omitempty"`
}

// Transaction parses and validates the record.
func (r Record) Transaction(loc *time.Location) (core.Transaction, error) {
	posted, err := ParseDate(r.PostedAt, loc)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %q: %w", r.ID, err)
	}
	amount, err := core.ParseAmount(r.Amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %q: %w", r.ID, err)
	}
	mc, err := core.ParseMainCategory(r.MainCategory)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %q: %w: %q", r.ID, err, r.MainCategory)
	}
	tx := core.Transaction{
		ID:           strings.TrimSpace(r.ID),
		PostedAt:     posted,
		Amount:       amount,
		MainCategory: mc,
		Category:     strings.TrimSpace(r.Category),
		Subcategory:  strings.TrimSpace(r.Subcategory),
		Owner:        strings.TrimSpace(r.Owner),
		AccountType:  strings.TrimSpace(r.AccountType),
		Description:  strings.TrimSpace(r.Description),
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %q: %w", r.ID, err)
	}
	return tx, nil
}

// RecordOf is the inverse of Record.Transaction.
func RecordOf(tx core.Transaction) Record {
	return Record{
		ID:           tx.ID,
		PostedAt:     tx.PostedAt.Format(time.RFC3339),
		Amount:       tx.Amount.String(),
		MainCategory: tx.MainCategory.String(),
		Category:     tx.Category,
		Subcategory:  tx.Subcategory,
		Owner:        tx.Owner,
		AccountType:  tx.AccountType,
		Description:  tx.Description,
	}
}

// Columns maps lower-cased header names to indexes.
type Columns map[string]int

// HeaderColumns indexes a header row. Names are trimmed, lower-cased and
// spaces become underscores, so "Posted At" matches "posted_at".
func HeaderColumns(header []string) Columns {
	cols := make(Columns, len(header))
	for i, h := range header {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
		if _, ok := cols[key]; !ok {
			cols[key] = i
		}
	}
	return cols
}

// Require reports the first missing column name.
func (c Columns) Require(names ...string) error {
	for _, n := range names {
		if _, ok := c[n]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingColumn, n)
		}
	}
	return nil
}

// Get returns the cell under column name, or "".
func (c Columns) Get(row []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
