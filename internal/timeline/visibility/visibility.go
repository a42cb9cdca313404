// Package visibility tracks which nodes of a category tree are shown on the
// timeline and which categories are expanded into their subcategories.
//
// Visibility is plain set membership with explicit cascades, not an
// inherited tri-state:
//
//   - hiding a type removes every descendant category and subcategory from
//     the visible sets; showing it again re-adds all of them;
//   - hiding a category removes its subcategories; showing it re-adds all of
//     them;
//   - type visibility is checked independently of category visibility and
//     gates everything beneath it.
package visibility

import (
	"sort"

	"finscope/internal/core"
)

// State is the mutable visibility context of one view. It is not safe for
// concurrent use; the owning view serializes access.
type State struct {
	tree          core.CategoryTree
	types         map[string]struct{}
	categories    map[string]struct{}
	subcategories map[string]struct{}
	expanded      map[string]struct{}
}

// Snapshot is a sorted, immutable copy of the sets, suitable for
// fingerprinting and serialization.
type Snapshot struct {
	Types         []string `json:"types"`
	Categories    []string `json:"categories"`
	Subcategories []string `json:"subcategories"`
	Expanded      []string `json:"expanded"`
}

// New returns a state with every type visible and nothing else seeded.
// Call Initialize to show the categories of the tree.
func New(tree core.CategoryTree) *State {
	s := &State{
		tree:          tree,
		types:         make(map[string]struct{}),
		categories:    make(map[string]struct{}),
		subcategories: make(map[string]struct{}),
		expanded:      make(map[string]struct{}),
	}
	for _, typ := range tree {
		s.types[typ.ID] = struct{}{}
	}
	return s
}

// Initialize seeds every category and subcategory of tree as visible and
// adopts tree for subsequent cascades. Types and expansion are untouched,
// except that newly appearing types become visible.
func (s *State) Initialize(tree core.CategoryTree) {
	known := make(map[string]struct{}, len(s.tree))
	for _, typ := range s.tree {
		known[typ.ID] = struct{}{}
	}
	s.tree = tree
	for _, typ := range tree {
		if _, ok := known[typ.ID]; !ok {
			s.types[typ.ID] = struct{}{}
		}
		for _, cat := range typ.Children {
			s.categories[cat.ID] = struct{}{}
			for _, sub := range cat.Children {
				s.subcategories[sub.ID] = struct{}{}
			}
		}
	}
}

// Adopt switches to tree while keeping the current membership. Nodes that
// did not exist in the previous tree start out visible.
func (s *State) Adopt(tree core.CategoryTree) {
	known := make(map[string]struct{})
	for _, typ := range s.tree {
		known[typ.ID] = struct{}{}
		for _, cat := range typ.Children {
			known[cat.ID] = struct{}{}
			for _, sub := range cat.Children {
				known[sub.ID] = struct{}{}
			}
		}
	}
	s.tree = tree
	for _, typ := range tree {
		if _, ok := known[typ.ID]; !ok {
			s.types[typ.ID] = struct{}{}
		}
		for _, cat := range typ.Children {
			if _, ok := known[cat.ID]; !ok {
				s.categories[cat.ID] = struct{}{}
			}
			for _, sub := range cat.Children {
				if _, ok := known[sub.ID]; !ok {
					s.subcategories[sub.ID] = struct{}{}
				}
			}
		}
	}
}

// Tree returns the tree the state cascades over.
func (s *State) Tree() core.CategoryTree {
	return s.tree
}

func (s *State) IsTypeVisible(id string) bool        { return has(s.types, id) }
func (s *State) IsCategoryVisible(id string) bool    { return has(s.categories, id) }
func (s *State) IsSubcategoryVisible(id string) bool { return has(s.subcategories, id) }
func (s *State) IsExpanded(id string) bool           { return has(s.expanded, id) }

// ToggleType flips a type and cascades onto all of its descendants.
func (s *State) ToggleType(id string) {
	show := !has(s.types, id)
	set(s.types, id, show)
	for _, typ := range s.tree {
		if typ.ID != id {
			continue
		}
		for _, cat := range typ.Children {
			set(s.categories, cat.ID, show)
			for _, sub := range cat.Children {
				set(s.subcategories, sub.ID, show)
			}
		}
	}
}

// ToggleCategory flips a category and cascades onto its subcategories.
func (s *State) ToggleCategory(id string) {
	show := !has(s.categories, id)
	set(s.categories, id, show)
	if cat := s.category(id); cat != nil {
		for _, sub := range cat.Children {
			set(s.subcategories, sub.ID, show)
		}
	}
}

// ToggleSubcategory flips a single subcategory.
func (s *State) ToggleSubcategory(id string) {
	set(s.subcategories, id, !has(s.subcategories, id))
}

// ToggleExpanded switches a category between drill-down and roll-up display.
func (s *State) ToggleExpanded(id string) {
	set(s.expanded, id, !has(s.expanded, id))
}

// ShowAll makes every node of the tree visible. Expansion is untouched.
func (s *State) ShowAll() {
	for _, typ := range s.tree {
		s.types[typ.ID] = struct{}{}
	}
	s.Initialize(s.tree)
}

// HideAll empties every visible set. Expansion is untouched.
func (s *State) HideAll() {
	clear(s.types)
	clear(s.categories)
	clear(s.subcategories)
}

// Snapshot returns the sets as sorted slices.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Types:         sorted(s.types),
		Categories:    sorted(s.categories),
		Subcategories: sorted(s.subcategories),
		Expanded:      sorted(s.expanded),
	}
}

// Clone returns an independent copy sharing the (read-only) tree.
func (s *State) Clone() *State {
	return &State{
		tree:          s.tree,
		types:         copySet(s.types),
		categories:    copySet(s.categories),
		subcategories: copySet(s.subcategories),
		expanded:      copySet(s.expanded),
	}
}

func (s *State) category(id string) *core.CategoryNode {
	for i := range s.tree {
		for j := range s.tree[i].Children {
			if s.tree[i].Children[j].ID == id {
				return &s.tree[i].Children[j]
			}
		}
	}
	return nil
}

func has(m map[string]struct{}, id string) bool {
	_, ok := m[id]
	return ok
}

func set(m map[string]struct{}, id string, on bool) {
	if on {
		m[id] = struct{}{}
	} else {
		delete(m, id)
	}
}

func sorted(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func copySet(m map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}
