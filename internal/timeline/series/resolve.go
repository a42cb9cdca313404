package series

import (
	"finscope/internal/core"
	"finscope/internal/timeline/visibility"
)

// NeutralColor is used for names the category tree does not know.
const NeutralColor = "#9e9e9e"

// Resolution is the outcome of mapping a transaction onto the visible tree.
type Resolution struct {
	// Name is the display name the transaction is aggregated under.
	Name  string
	Color string
	// Visible is false when the transaction must be left out entirely.
	Visible bool
	// Known is false when the category lookup missed and Name is the raw
	// category name.
	Known bool
}

// Resolve maps tx to its display name under the current visibility.
//
// A hidden type excludes the transaction. A subcategory is shown under its
// own name only when its parent category is visible and expanded (and the
// subcategory itself is visible); under a visible collapsed parent it rolls
// up to the parent's name; under a hidden parent it is excluded. A
// transaction booked directly on a category is gated by that category.
// Lookup misses are kept under their raw name and the neutral color, gated
// only by their type.
func Resolve(tx core.Transaction, vis *visibility.State, tree core.CategoryTree) Resolution {
	typ, typeKnown := tree.Type(tx.MainCategory)
	if typeKnown && !vis.IsTypeVisible(typ.ID) {
		return Resolution{}
	}

	if tx.Subcategory != "" {
		if sub, parent, ok := tree.Subcategory(tx.MainCategory, tx.Category, tx.Subcategory); ok {
			if !vis.IsCategoryVisible(parent.ID) {
				return Resolution{}
			}
			if !vis.IsExpanded(parent.ID) {
				return Resolution{Name: parent.Name, Color: colorOf(parent.Color), Visible: true, Known: true}
			}
			if !vis.IsSubcategoryVisible(sub.ID) {
				return Resolution{}
			}
			return Resolution{Name: sub.Name, Color: colorOf(sub.Color, parent.Color), Visible: true, Known: true}
		}
	}

	if tx.Category != "" {
		if cat, ok := tree.Category(tx.MainCategory, tx.Category); ok {
			if !vis.IsCategoryVisible(cat.ID) {
				return Resolution{}
			}
			name := cat.Name
			if tx.Subcategory != "" && vis.IsExpanded(cat.ID) {
				name = tx.Subcategory
			}
			return Resolution{Name: name, Color: colorOf(cat.Color), Visible: true, Known: true}
		}
	}

	return Resolution{Name: tx.DisplayCategory(), Color: NeutralColor, Visible: true}
}

func colorOf(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return NeutralColor
}
