// Package period buckets transactions into fixed-width calendar periods and
// rolls up their totals.
package period

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finscope/internal/core"
)

const (
	Month Granularity = iota
	Quarter
	Year
)

type (
	Granularity int

	// Totals holds absolute amounts per sign class.
	Totals struct {
		Income       decimal.Decimal
		Expenses     decimal.Decimal
		TransfersIn  decimal.Decimal
		TransfersOut decimal.Decimal
	}

	// Bucket is one period of the timeline. Buckets are built by Group and
	// never mutated afterwards.
	Bucket struct {
		Start      time.Time
		Totals     Totals
		ByCategory map[string]decimal.Decimal
	}
)

func (g Granularity) String() string {
	switch g {
	case Month:
		return "month"
	case Quarter:
		return "quarter"
	case Year:
		return "year"
	default:
		return fmt.Sprintf("granularity(%d)", int(g))
	}
}

// ParseGranularity accepts "month", "quarter" or "year".
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "month":
		return Month, nil
	case "quarter":
		return Quarter, nil
	case "year":
		return Year, nil
	}
	return Month, fmt.Errorf("invalid granularity %q", s)
}

// Start returns the first instant of the period containing t, in t's location.
func Start(t time.Time, g Granularity) time.Time {
	y, m, _ := t.Date()
	switch g {
	case Year:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, t.Location())
	case Quarter:
		qm := time.Month((int(m)-1)/3*3 + 1)
		return time.Date(y, qm, 1, 0, 0, 0, 0, t.Location())
	default:
		return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
	}
}

// End returns the exclusive end of the period starting at start.
func End(start time.Time, g Granularity) time.Time {
	switch g {
	case Year:
		return start.AddDate(1, 0, 0)
	case Quarter:
		return start.AddDate(0, 3, 0)
	default:
		return start.AddDate(0, 1, 0)
	}
}

// Contains reports whether t falls into the period starting at start.
func Contains(start, t time.Time, g Granularity) bool {
	return Start(t, g).Equal(start)
}

// Add accumulates the absolute amount of tx into the totals. TARGETS do not
// contribute to any sign class; transfers split on the sign of the amount.
func (t *Totals) Add(tx core.Transaction) {
	abs := tx.Amount.Abs()
	switch tx.MainCategory {
	case core.Income:
		t.Income = t.Income.Add(abs)
	case core.Expenses:
		t.Expenses = t.Expenses.Add(abs)
	case core.Transfers:
		if tx.Amount.IsNegative() {
			t.TransfersOut = t.TransfersOut.Add(abs)
		} else {
			t.TransfersIn = t.TransfersIn.Add(abs)
		}
	}
}

// Net is income plus transfers in minus expenses and transfers out.
func (t Totals) Net() decimal.Decimal {
	return t.Income.Add(t.TransfersIn).Sub(t.Expenses).Sub(t.TransfersOut)
}

// Group buckets transactions by period. Buckets are sorted ascending by
// start; periods without transactions are not synthesized. The result does
// not depend on the order of txs.
func Group(txs []core.Transaction, g Granularity) []Bucket {
	if len(txs) == 0 {
		return []Bucket{}
	}

	byStart := make(map[int64]*Bucket)
	for _, tx := range txs {
		start := Start(tx.PostedAt, g)
		key := start.UnixNano()
		b, ok := byStart[key]
		if !ok {
			b = &Bucket{Start: start, ByCategory: make(map[string]decimal.Decimal)}
			byStart[key] = b
		}
		b.Totals.Add(tx)
		name := tx.DisplayCategory()
		b.ByCategory[name] = b.ByCategory[name].Add(tx.Amount.Abs())
	}

	out := make([]Bucket, 0, len(byStart))
	for _, b := range byStart {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Starts returns the start of every bucket, in order.
func Starts(buckets []Bucket) []time.Time {
	out := make([]time.Time, len(buckets))
	for i, b := range buckets {
		out[i] = b.Start
	}
	return out
}

// Index returns the position of the bucket starting at start, or -1.
func Index(buckets []Bucket, start time.Time) int {
	i := sort.Search(len(buckets), func(i int) bool { return !buckets[i].Start.Before(start) })
	if i < len(buckets) && buckets[i].Start.Equal(start) {
		return i
	}
	return -1
}
