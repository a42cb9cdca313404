// Package series assembles chart-ready stacked series from transactions,
// period buckets, visibility and breakdown state.
package series

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"finscope/internal/core"
	"finscope/internal/timeline/breakdown"
	"finscope/internal/timeline/period"
	"finscope/internal/timeline/visibility"
)

const (
	KindExpenses     Kind = "expenses"
	KindIncome       Kind = "income"
	KindTransfersOut Kind = "transfers_out"
	KindTransfersIn  Kind = "transfers_in"
)

// kinds lists sign classes in emission order.
var kinds = []Kind{KindExpenses, KindIncome, KindTransfersOut, KindTransfersIn}

type (
	// Kind is the sign class of a series.
	Kind string

	Point struct {
		Start time.Time
		Value decimal.Decimal
	}

	// Series is one stacked bar series. Points are dense: one per bucket.
	Series struct {
		Label        string
		DisplayName  string
		BreakdownKey string
		StackGroup   string
		Kind         Kind
		Color        string
		Points       []Point
	}

	// Input is the explicit context the assembler works from.
	Input struct {
		Transactions []core.Transaction
		Buckets      []period.Bucket
		Granularity  period.Granularity
		Visibility   *visibility.State
		Breakdown    breakdown.Selection
		Tree         core.CategoryTree
	}
)

// colorKey identifies a series color independently of the breakdown key.
type colorKey struct {
	kind Kind
	name string
}

// accumulator: breakdown key -> kind -> display name -> period start -> amount.
type accumulator map[string]map[Kind]map[string]map[int64]decimal.Decimal

func (a accumulator) add(key string, kind Kind, name string, start time.Time, v decimal.Decimal) {
	byKind, ok := a[key]
	if !ok {
		byKind = make(map[Kind]map[string]map[int64]decimal.Decimal)
		a[key] = byKind
	}
	byName, ok := byKind[kind]
	if !ok {
		byName = make(map[string]map[int64]decimal.Decimal)
		byKind[kind] = byName
	}
	byStart, ok := byName[name]
	if !ok {
		byStart = make(map[int64]decimal.Decimal)
		byName[name] = byStart
	}
	k := start.UnixNano()
	byStart[k] = byStart[k].Add(v)
}

// Assemble builds one series per (breakdown key, display name, sign class).
// Expenses and transfers out are negative so they stack below zero; income
// and transfers in are positive. Transfer series are only emitted when at
// least one point is non-zero. Series are ordered by breakdown key, then
// sign class, then display name.
func Assemble(in Input) []Series {
	if in.Visibility == nil || len(in.Buckets) == 0 {
		return []Series{}
	}

	txs := breakdown.Filter(in.Transactions, in.Breakdown)
	acc := accumulator{}
	colors := map[colorKey]string{}

	for _, tx := range txs {
		kind, value, ok := classify(tx)
		if !ok {
			continue
		}
		res := Resolve(tx, in.Visibility, in.Tree)
		if !res.Visible {
			continue
		}
		key, ok := breakdown.KeyOf(tx, in.Breakdown.Mode)
		if !ok {
			continue
		}
		ck := colorKey{kind, res.Name}
		if _, seen := colors[ck]; !seen {
			colors[ck] = res.Color
		}
		acc.add(key, kind, res.Name, period.Start(tx.PostedAt, in.Granularity), value)
	}

	keyed := in.Breakdown.Mode == breakdown.ByOwner || in.Breakdown.Mode == breakdown.ByAccount
	out := []Series{}
	for _, key := range breakdown.EffectiveKeys(txs, in.Breakdown) {
		byKind := acc[key]
		for _, kind := range kinds {
			byName := byKind[kind]
			names := make([]string, 0, len(byName))
			for name := range byName {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				points := densePoints(in.Buckets, byName[name])
				if (kind == KindTransfersIn || kind == KindTransfersOut) && allZero(points) {
					continue
				}
				out = append(out, Series{
					Label:        label(name, kind, key, keyed),
					DisplayName:  name,
					BreakdownKey: key,
					StackGroup:   key,
					Kind:         kind,
					Color:        colors[colorKey{kind, name}],
					Points:       points,
				})
			}
		}
	}
	return out
}

// classify returns the sign class and signed stacking value of tx.
// TARGETS are not cash flow and are never charted.
func classify(tx core.Transaction) (Kind, decimal.Decimal, bool) {
	abs := tx.Amount.Abs()
	switch tx.MainCategory {
	case core.Expenses:
		return KindExpenses, abs.Neg(), true
	case core.Income:
		return KindIncome, abs, true
	case core.Transfers:
		if tx.Amount.IsNegative() {
			return KindTransfersOut, abs.Neg(), true
		}
		return KindTransfersIn, abs, true
	}
	return "", decimal.Zero, false
}

func label(name string, kind Kind, key string, keyed bool) string {
	switch kind {
	case KindTransfersIn:
		name += " (In)"
	case KindTransfersOut:
		name += " (Out)"
	}
	if keyed {
		name += " - " + key
	}
	return name
}

func densePoints(buckets []period.Bucket, amounts map[int64]decimal.Decimal) []Point {
	points := make([]Point, len(buckets))
	for i, b := range buckets {
		points[i] = Point{Start: b.Start, Value: amounts[b.Start.UnixNano()]}
	}
	return points
}

func allZero(points []Point) bool {
	for _, p := range points {
		if !p.Value.IsZero() {
			return false
		}
	}
	return true
}
