// Package timeline ties grouping, visibility, breakdown, zoom, series
// assembly and axis scaling together behind one stateful View.
package timeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"finscope/internal/cache"
	"finscope/internal/core"
	"finscope/internal/dataset"
	"finscope/internal/log"
	"finscope/internal/timeline/axis"
	"finscope/internal/timeline/breakdown"
	"finscope/internal/timeline/hover"
	"finscope/internal/timeline/period"
	"finscope/internal/timeline/series"
	"finscope/internal/timeline/visibility"
	"finscope/internal/timeline/zoom"
)

var (
	ErrPeriodOutOfRange = errors.New("period index out of range")
	ErrNothingToPin     = errors.New("no hovered period to pin")
)

type (
	// Snapshot is the pipeline output for one state. It is shared between
	// callers and must not be modified.
	Snapshot struct {
		Version     uint64
		Fingerprint string
		Granularity period.Granularity
		ZoomLevel   int
		Window      zoom.Window
		Buckets     []period.Bucket
		Series      []series.Series
		Range       axis.Range
	}

	// NodeState is a category tree node annotated with view state.
	NodeState struct {
		ID       string      `json:"id"`
		Name     string      `json:"name"`
		Color    string      `json:"color,omitempty"`
		Visible  bool        `json:"visible"`
		Expanded bool        `json:"expanded,omitempty"`
		Children []NodeState `json:"children,omitempty"`
	}

	// BreakdownState is the selection plus the keys available to pick from.
	BreakdownState struct {
		Selection         breakdown.Selection `json:"selection"`
		AvailableOwners   []string            `json:"available_owners"`
		AvailableAccounts []string            `json:"available_accounts"`
	}

	Option func(*View)
)

func WithClock(now func() time.Time) Option {
	return func(v *View) { v.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(v *View) { v.logger = log.NewStructuredLogger(l) }
}

// WithSession tags log records with a session id.
func WithSession(id string) Option {
	return func(v *View) { v.session = id }
}

// View is the state mutation surface of one timeline. Mutations only record
// state; the pipeline runs on the next Snapshot, so a burst of toggles costs
// one recomputation. A View is safe for concurrent use.
type View struct {
	mu      sync.Mutex
	session string
	now     func() time.Time
	logger  *log.StructuredLogger

	ds       dataset.Dataset
	loaded   bool
	defaults bool

	vis   *visibility.State
	sel   breakdown.Selection
	zoom  *zoom.Controller
	memo  cache.Memo[*Snapshot]
	hover hover.Tracker
}

// New returns an empty view in All mode at the default zoom level.
func New(opts ...Option) *View {
	v := &View{
		now:    time.Now,
		logger: log.NewStructuredLogger(log.Discard()),
		vis:    visibility.New(nil),
		sel:    breakdown.Selection{Mode: breakdown.All, Owners: []string{}, Accounts: []string{}},
	}
	for _, opt := range opts {
		opt(v)
	}
	v.zoom = zoom.New(v.now)
	return v
}

// Load swaps in a dataset. Stale versions are ignored. The first load shows
// every category and selects one default owner and account; later loads keep
// the user's toggles and only show nodes that are new.
func (v *View) Load(ds dataset.Dataset) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.loaded && ds.Version <= v.ds.Version {
		return
	}
	if v.loaded {
		v.vis.Adopt(ds.Tree)
	} else {
		v.vis.Initialize(ds.Tree)
	}
	v.ds = ds
	v.loaded = true

	if !v.defaults && len(ds.Transactions) > 0 {
		v.sel = breakdown.DefaultSelection(ds.Transactions, v.sel.Mode)
		v.defaults = true
	}
	v.hover.Invalidate()
}

// Version returns the loaded dataset version, 0 before the first load.
func (v *View) Version() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ds.Version
}

func (v *View) ToggleType(id string) {
	v.mutate(func() { v.vis.ToggleType(id) })
}

func (v *View) ToggleCategory(id string) {
	v.mutate(func() { v.vis.ToggleCategory(id) })
}

func (v *View) ToggleSubcategory(id string) {
	v.mutate(func() { v.vis.ToggleSubcategory(id) })
}

func (v *View) ToggleExpanded(id string) {
	v.mutate(func() { v.vis.ToggleExpanded(id) })
}

func (v *View) ShowAll() {
	v.mutate(v.vis.ShowAll)
}

func (v *View) HideAll() {
	v.mutate(v.vis.HideAll)
}

// SetBreakdownMode switches mode; the selections of both keyed modes are kept.
func (v *View) SetBreakdownMode(m breakdown.Mode) {
	v.mutate(func() { v.sel.Mode = m })
}

// SetSelectedOwners replaces the owner selection. An empty selection shows
// every owner.
func (v *View) SetSelectedOwners(keys []string) {
	v.mutate(func() { v.sel.Owners = canonical(keys) })
}

// SetSelectedAccounts replaces the account selection. An empty selection
// shows every account.
func (v *View) SetSelectedAccounts(keys []string) {
	v.mutate(func() { v.sel.Accounts = canonical(keys) })
}

func (v *View) ZoomIn()    { v.mutate(v.zoom.ZoomIn) }
func (v *View) ZoomOut()   { v.mutate(v.zoom.ZoomOut) }
func (v *View) ResetZoom() { v.mutate(v.zoom.Reset) }

// SetGranularity jumps to the zoom level that groups by g.
func (v *View) SetGranularity(g period.Granularity) {
	v.mutate(func() { v.zoom.SetLevel(zoom.LevelFor(g)) })
}

// SetWindow overrides the visible window; a zero window restores the policy.
func (v *View) SetWindow(w zoom.Window) {
	v.mutate(func() { v.zoom.SetWindow(w) })
}

func (v *View) mutate(fn func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fn()
}

// Snapshot runs the pipeline for the current state, or returns the previous
// result unchanged when nothing it depends on has changed.
func (v *View) Snapshot() *Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

func (v *View) snapshotLocked() *Snapshot {
	fp := v.fingerprintLocked()
	return v.memo.GetOrBuild(fp, func() *Snapshot { return v.computeLocked(fp) })
}

func (v *View) fingerprintLocked() string {
	custom := zoom.Window{}
	if v.zoom.HasCustomWindow() {
		custom = v.zoom.Window(nil)
	}
	return Fingerprint(v.vis.Snapshot(), v.sel, v.zoom.Granularity(), v.ds.Version, custom, v.now())
}

func (v *View) computeLocked(fp string) *Snapshot {
	txs := v.ds.Transactions
	g := v.zoom.Granularity()

	buckets := period.Group(breakdown.Filter(txs, v.sel), g)
	all := series.Assemble(series.Input{
		Transactions: txs,
		Buckets:      buckets,
		Granularity:  g,
		Visibility:   v.vis,
		Breakdown:    v.sel,
		Tree:         v.ds.Tree,
	})
	window := v.zoom.Window(txs)

	v.logger.LogRecompute(context.Background(), v.session, g.String(), v.zoom.Level(), string(v.sel.Mode), len(all))
	return &Snapshot{
		Version:     v.ds.Version,
		Fingerprint: fp,
		Granularity: g,
		ZoomLevel:   v.zoom.Level(),
		Window:      window,
		Buckets:     buckets,
		Series:      all,
		Range:       axis.Compute(all, buckets, window),
	}
}

// Hover returns the exact detail of the bucket at index of the current
// snapshot. While pinned, the pinned detail is returned for any index.
func (v *View) Hover(index int) (map[string]hover.Detail, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.hover.Pinned() {
		_, detail, _ := v.hover.Current()
		return detail, nil
	}
	snap := v.snapshotLocked()
	if index < 0 || index >= len(snap.Buckets) {
		return nil, ErrPeriodOutOfRange
	}
	start := snap.Buckets[index].Start
	return v.hover.Hover(index, snap.Fingerprint, func() map[string]hover.Detail {
		return hover.Resolve(start, snap.Granularity, v.ds.Transactions, v.sel, v.vis, v.ds.Tree)
	}), nil
}

// PeriodIndex returns the index of the bucket whose period contains t.
func (v *View) PeriodIndex(t time.Time) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	snap := v.snapshotLocked()
	if i := period.Index(snap.Buckets, period.Start(t, snap.Granularity)); i >= 0 {
		return i, nil
	}
	return -1, ErrPeriodOutOfRange
}

// Pin freezes the last hovered detail until Unpin.
func (v *View) Pin() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.hover.Pin() {
		return ErrNothingToPin
	}
	return nil
}

func (v *View) Unpin() {
	v.mutate(v.hover.Unpin)
}

// Pinned returns the pinned period index, if any.
func (v *View) Pinned() (int, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.hover.Pinned() {
		return 0, false
	}
	idx, _, _ := v.hover.Current()
	return idx, true
}

// Visibility returns the sorted visibility sets.
func (v *View) Visibility() visibility.Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.vis.Snapshot()
}

// Categories returns the loaded tree annotated with visibility.
func (v *View) Categories() []NodeState {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]NodeState, 0, len(v.ds.Tree))
	for _, typ := range v.ds.Tree {
		tn := NodeState{ID: typ.ID, Name: typ.Name, Color: typ.Color, Visible: v.vis.IsTypeVisible(typ.ID)}
		for _, cat := range typ.Children {
			cn := NodeState{
				ID: cat.ID, Name: cat.Name, Color: cat.Color,
				Visible:  v.vis.IsCategoryVisible(cat.ID),
				Expanded: v.vis.IsExpanded(cat.ID),
			}
			for _, sub := range cat.Children {
				cn.Children = append(cn.Children, NodeState{
					ID: sub.ID, Name: sub.Name, Color: sub.Color,
					Visible: v.vis.IsSubcategoryVisible(sub.ID),
				})
			}
			tn.Children = append(tn.Children, cn)
		}
		out = append(out, tn)
	}
	return out
}

// Breakdown returns the selection and the keys present in the dataset.
func (v *View) Breakdown() BreakdownState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return BreakdownState{
		Selection: breakdown.Selection{
			Mode:     v.sel.Mode,
			Owners:   append([]string{}, v.sel.Owners...),
			Accounts: append([]string{}, v.sel.Accounts...),
		},
		AvailableOwners:   breakdown.AvailableOwners(v.ds.Transactions),
		AvailableAccounts: breakdown.AvailableAccounts(v.ds.Transactions),
	}
}

// Summary describes the loaded dataset.
func (v *View) Summary() core.Summary {
	v.mu.Lock()
	defer v.mu.Unlock()
	return core.Summarize(v.ds.Transactions)
}

// canonical dedupes and sorts keys so equal selections fingerprint equally.
func canonical(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok || k == "" {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
