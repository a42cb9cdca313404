package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income    MainCategory = "INCOME"
	Expenses  MainCategory = "EXPENSES"
	Transfers MainCategory = "TRANSFERS"
	Targets   MainCategory = "TARGETS"
)

// Uncategorized is the display name used when a transaction carries neither
// a category nor a subcategory.
const Uncategorized = "Uncategorized"

type (
	MainCategory string

	Transaction struct {
		ID           string
		PostedAt     time.Time
		Amount       decimal.Decimal // negative for outflow, positive for inflow
		MainCategory MainCategory
		Category     string
		Subcategory  string // empty when the transaction is booked on the category itself
		Owner        string
		AccountType  string
		Description  string
	}

	// CategoryNode is one node of the category tree: a type at depth 0,
	// a category at depth 1 and a subcategory at depth 2.
	CategoryNode struct {
		ID       string         `json:"id"`
		Name     string         `json:"name"`
		Color    string         `json:"color,omitempty"`
		Children []CategoryNode `json:"children,omitempty"`
	}

	// CategoryTree is the ordered list of type nodes.
	CategoryTree []CategoryNode
)

var (
	ErrEmptyID             = errors.New("empty transaction id")
	ErrZeroDate            = errors.New("posted date cannot be zero")
	ErrInvalidMainCategory = errors.New("invalid main category")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrTreeTooDeep         = errors.New("category tree deeper than 3 levels")
	ErrDuplicateNodeID     = errors.New("duplicate category node id")
)

// ParseMainCategory accepts the canonical upper-case names, case-insensitively.
func ParseMainCategory(s string) (MainCategory, error) {
	mc := MainCategory(strings.ToUpper(strings.TrimSpace(s)))
	if !mc.IsValid() {
		return "", ErrInvalidMainCategory
	}
	return mc, nil
}

func (m MainCategory) IsValid() bool {
	switch m {
	case Income, Expenses, Transfers, Targets:
		return true
	default:
		return false
	}
}

func (m MainCategory) String() string {
	return string(m)
}

// Validate checks the input contract sources must honour before handing
// transactions to the timeline.
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrEmptyID
	}
	if t.PostedAt.IsZero() {
		return ErrZeroDate
	}
	if !t.MainCategory.IsValid() {
		return ErrInvalidMainCategory
	}
	return nil
}

// DisplayCategory returns subcategory ?? category ?? Uncategorized.
func (t Transaction) DisplayCategory() string {
	if t.Subcategory != "" {
		return t.Subcategory
	}
	if t.Category != "" {
		return t.Category
	}
	return Uncategorized
}

// Validate checks depth and id uniqueness across the whole tree.
func (tree CategoryTree) Validate() error {
	seen := map[string]struct{}{}
	var walk func(nodes []CategoryNode, depth int) error
	walk = func(nodes []CategoryNode, depth int) error {
		if depth > 2 && len(nodes) > 0 {
			return ErrTreeTooDeep
		}
		for _, n := range nodes {
			if _, ok := seen[n.ID]; ok {
				return fmt.Errorf("%w: %s", ErrDuplicateNodeID, n.ID)
			}
			seen[n.ID] = struct{}{}
			if err := walk(n.Children, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(tree, 0)
}

// Type returns the type node named after the given main category.
func (tree CategoryTree) Type(mc MainCategory) (*CategoryNode, bool) {
	for i := range tree {
		if strings.EqualFold(tree[i].Name, string(mc)) {
			return &tree[i], true
		}
	}
	return nil, false
}

// Category finds a category by name below the given type.
func (tree CategoryTree) Category(mc MainCategory, name string) (*CategoryNode, bool) {
	typ, ok := tree.Type(mc)
	if !ok || name == "" {
		return nil, false
	}
	return typ.Child(name)
}

// Subcategory finds a subcategory by name. When category is empty every
// category of the type is searched and the first match wins.
func (tree CategoryTree) Subcategory(mc MainCategory, category, name string) (sub *CategoryNode, parent *CategoryNode, ok bool) {
	if name == "" {
		return nil, nil, false
	}
	typ, found := tree.Type(mc)
	if !found {
		return nil, nil, false
	}
	for i := range typ.Children {
		cat := &typ.Children[i]
		if category != "" && cat.Name != category {
			continue
		}
		if s, found := cat.Child(name); found {
			return s, cat, true
		}
	}
	return nil, nil, false
}

// Child returns the direct child with the given name.
func (n *CategoryNode) Child(name string) (*CategoryNode, bool) {
	for i := range n.Children {
		if n.Children[i].Name == name {
			return &n.Children[i], true
		}
	}
	return nil, false
}

// FindByID searches the whole tree. The returned path lists the ancestors
// of the node, root first.
func (tree CategoryTree) FindByID(id string) (node *CategoryNode, path []*CategoryNode, ok bool) {
	var walk func(nodes []CategoryNode, trail []*CategoryNode) bool
	walk = func(nodes []CategoryNode, trail []*CategoryNode) bool {
		for i := range nodes {
			n := &nodes[i]
			if n.ID == id {
				node = n
				path = append([]*CategoryNode(nil), trail...)
				return true
			}
			if walk(n.Children, append(trail, n)) {
				return true
			}
		}
		return false
	}
	ok = walk(tree, nil)
	return node, path, ok
}
