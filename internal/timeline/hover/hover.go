// Package hover computes exact per-period detail for the tooltip panel,
// straight from raw transactions rather than from the displayed series.
package hover

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"finscope/internal/core"
	"finscope/internal/timeline/breakdown"
	"finscope/internal/timeline/period"
	"finscope/internal/timeline/series"
	"finscope/internal/timeline/visibility"
)

type (
	// Line is the signed sum of one raw category inside a period.
	Line struct {
		Name         string
		MainCategory core.MainCategory
		Color        string
		Amount       decimal.Decimal
	}

	// Detail is the breakdown of one breakdown key for one period.
	Detail struct {
		Key    string
		Start  time.Time
		Totals period.Totals
		Net    decimal.Decimal
		Lines  []Line
	}
)

// Resolve returns the detail of the period starting at start, per effective
// breakdown key. Hidden transactions are left out, but lines keep raw
// category names so rolled-up chart series can still be inspected exactly.
// Every effective key gets an entry, even when it has no transactions.
func Resolve(start time.Time, g period.Granularity, txs []core.Transaction, sel breakdown.Selection, vis *visibility.State, tree core.CategoryTree) map[string]Detail {
	filtered := breakdown.Filter(txs, sel)

	out := make(map[string]Detail)
	lines := make(map[string]map[lineKey]*Line)
	for _, key := range breakdown.EffectiveKeys(filtered, sel) {
		out[key] = Detail{Key: key, Start: start, Lines: []Line{}}
		lines[key] = make(map[lineKey]*Line)
	}
	if vis == nil {
		return out
	}

	for _, tx := range filtered {
		if !period.Contains(start, tx.PostedAt, g) {
			continue
		}
		key, ok := breakdown.KeyOf(tx, sel.Mode)
		if !ok {
			continue
		}
		d, ok := out[key]
		if !ok {
			continue
		}
		res := series.Resolve(tx, vis, tree)
		if !res.Visible {
			continue
		}
		d.Totals.Add(tx)
		out[key] = d

		lk := lineKey{mc: tx.MainCategory, name: tx.DisplayCategory()}
		l, ok := lines[key][lk]
		if !ok {
			l = &Line{Name: lk.name, MainCategory: lk.mc, Color: res.Color, Amount: decimal.Zero}
			lines[key][lk] = l
		}
		l.Amount = l.Amount.Add(tx.Amount)
	}

	for key, d := range out {
		for _, l := range lines[key] {
			d.Lines = append(d.Lines, *l)
		}
		sort.Slice(d.Lines, func(i, j int) bool {
			if d.Lines[i].MainCategory != d.Lines[j].MainCategory {
				return d.Lines[i].MainCategory < d.Lines[j].MainCategory
			}
			return d.Lines[i].Name < d.Lines[j].Name
		})
		d.Net = d.Totals.Net()
		out[key] = d
	}
	return out
}

type lineKey struct {
	mc   core.MainCategory
	name string
}
