package hover

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finscope/internal/core"
	"finscope/internal/timeline/breakdown"
	"finscope/internal/timeline/period"
	"finscope/internal/timeline/visibility"
)

var tree = core.CategoryTree{
	{ID: "t-exp", Name: "EXPENSES", Children: []core.CategoryNode{
		{ID: "c-food", Name: "Food", Color: "#e53935", Children: []core.CategoryNode{
			{ID: "s-groc", Name: "Groceries"},
			{ID: "s-rest", Name: "Restaurants"},
		}},
	}},
	{ID: "t-inc", Name: "INCOME", Children: []core.CategoryNode{
		{ID: "c-sal", Name: "Salary"},
	}},
	{ID: "t-tr", Name: "TRANSFERS"},
}

func day(m, d int) time.Time { return time.Date(2024, time.Month(m), d, 12, 0, 0, 0, time.UTC) }

func txs() []core.Transaction {
	return []core.Transaction{
		{ID: "1", PostedAt: day(1, 15), Amount: decimal.NewFromInt(-50), MainCategory: core.Expenses, Category: "Food", Subcategory: "Groceries", Owner: "alice"},
		{ID: "2", PostedAt: day(1, 20), Amount: decimal.NewFromInt(-20), MainCategory: core.Expenses, Category: "Food", Subcategory: "Restaurants", Owner: "bob"},
		{ID: "3", PostedAt: day(1, 5), Amount: decimal.NewFromInt(2000), MainCategory: core.Income, Category: "Salary", Owner: "alice"},
		{ID: "4", PostedAt: day(1, 6), Amount: decimal.NewFromInt(-300), MainCategory: core.Transfers, Category: "Savings", Owner: "alice"},
		{ID: "5", PostedAt: day(2, 1), Amount: decimal.NewFromInt(-999), MainCategory: core.Expenses, Category: "Food", Owner: "alice"},
	}
}

func vis() *visibility.State {
	v := visibility.New(tree)
	v.Initialize(tree)
	return v
}

func TestResolveKeepsRawNamesWhileCollapsed(t *testing.T) {
	got := Resolve(day(1, 1).Truncate(24*time.Hour), period.Month, txs(), breakdown.Selection{Mode: breakdown.All}, vis(), tree)
	d, ok := got[breakdown.AllKey]
	if !ok || len(got) != 1 {
		t.Fatalf("expected a single all entry, got %v", got)
	}
	if !d.Totals.Expenses.Equal(decimal.NewFromInt(70)) || !d.Totals.Income.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("unexpected totals %+v", d.Totals)
	}
	if !d.Totals.TransfersOut.Equal(decimal.NewFromInt(300)) || !d.Totals.TransfersIn.IsZero() {
		t.Fatalf("unexpected transfer totals %+v", d.Totals)
	}
	if !d.Net.Equal(decimal.NewFromInt(1630)) {
		t.Fatalf("net = %s, want 1630", d.Net)
	}

	names := map[string]bool{}
	for _, l := range d.Lines {
		names[l.Name] = true
	}
	if !names["Groceries"] || !names["Restaurants"] || names["Food"] {
		t.Fatalf("hover lines must use raw subcategory names, got %+v", d.Lines)
	}
}

func TestResolvePerOwner(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	got := Resolve(start, period.Month, txs(), breakdown.Selection{Mode: breakdown.ByOwner, Owners: []string{"bob"}}, vis(), tree)
	if len(got) != 1 {
		t.Fatalf("expected only the selected owner, got %v", got)
	}
	bob := got["bob"]
	if !bob.Totals.Expenses.Equal(decimal.NewFromInt(20)) || !bob.Totals.Income.IsZero() {
		t.Fatalf("unexpected bob totals %+v", bob.Totals)
	}
}

func TestResolveSkipsHidden(t *testing.T) {
	v := vis()
	v.ToggleType("t-inc")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d := Resolve(start, period.Month, txs(), breakdown.Selection{Mode: breakdown.All}, v, tree)[breakdown.AllKey]
	if !d.Totals.Income.IsZero() {
		t.Fatalf("hidden income must not be counted, got %s", d.Totals.Income)
	}
}

func TestResolveEmptyPeriod(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	d, ok := Resolve(start, period.Month, txs(), breakdown.Selection{Mode: breakdown.All}, vis(), tree)[breakdown.AllKey]
	if !ok || len(d.Lines) != 0 || !d.Net.IsZero() {
		t.Fatalf("expected an empty detail, got %+v", d)
	}
}

func TestTrackerRecomputesOnlyOnChange(t *testing.T) {
	var tr Tracker
	calls := 0
	compute := func() map[string]Detail {
		calls++
		return map[string]Detail{"all": {Key: "all"}}
	}

	tr.Hover(0, "fp1", compute)
	tr.Hover(0, "fp1", compute)
	if calls != 1 {
		t.Fatalf("same period and fingerprint must not recompute, calls=%d", calls)
	}
	tr.Hover(1, "fp1", compute)
	tr.Hover(1, "fp2", compute)
	if calls != 3 {
		t.Fatalf("expected a recompute per change, calls=%d", calls)
	}
}

func TestTrackerPin(t *testing.T) {
	var tr Tracker
	if tr.Pin() {
		t.Fatalf("pinning before any hover must fail")
	}
	tr.Hover(2, "fp", func() map[string]Detail { return map[string]Detail{"all": {Key: "frozen"}} })
	if !tr.Pin() || !tr.Pinned() {
		t.Fatalf("expected pinned tracker")
	}

	got := tr.Hover(5, "other", func() map[string]Detail {
		t.Fatalf("pinned tracker must not recompute")
		return nil
	})
	if got["all"].Key != "frozen" {
		t.Fatalf("pinned output changed: %+v", got)
	}
	tr.Invalidate()
	if idx, _, ok := tr.Current(); !ok || idx != 2 {
		t.Fatalf("invalidate must not drop a pinned detail")
	}

	tr.Unpin()
	calls := 0
	tr.Hover(5, "other", func() map[string]Detail { calls++; return nil })
	if calls != 1 {
		t.Fatalf("unpinned tracker must recompute")
	}
}
