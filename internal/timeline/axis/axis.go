// Package axis computes the y-axis range for signed stacked series.
package axis

import (
	"time"

	"github.com/shopspring/decimal"

	"finscope/internal/timeline/period"
	"finscope/internal/timeline/series"
	"finscope/internal/timeline/zoom"
)

// Headroom is applied to both extremes so the tallest stack does not touch
// the plot edge.
var Headroom = decimal.RequireFromString("1.15")

// Range holds the stacked extremes of the visible window. MaxNegative is a
// magnitude.
type Range struct {
	MaxPositive decimal.Decimal
	MaxNegative decimal.Decimal
	HasPositive bool
	HasNegative bool
}

// Compute sums positive and negative values separately per stack group and
// bucket, restricted to buckets whose start lies in w, and returns the
// largest stack on each side inflated by Headroom. A zero window means no
// restriction.
func Compute(all []series.Series, buckets []period.Bucket, w zoom.Window) Range {
	inWindow := make(map[int64]bool, len(buckets))
	for _, b := range buckets {
		if w.IsZero() || w.Contains(b.Start) {
			inWindow[b.Start.UnixNano()] = true
		}
	}

	type cell struct {
		group string
		start int64
	}
	pos := map[cell]decimal.Decimal{}
	neg := map[cell]decimal.Decimal{}
	for _, s := range all {
		for _, p := range s.Points {
			k := p.Start.UnixNano()
			if !inWindow[k] {
				continue
			}
			c := cell{group: s.StackGroup, start: k}
			switch p.Value.Sign() {
			case 1:
				pos[c] = pos[c].Add(p.Value)
			case -1:
				neg[c] = neg[c].Add(p.Value.Neg())
			}
		}
	}

	var r Range
	r.MaxPositive, r.HasPositive = extreme(pos)
	r.MaxNegative, r.HasNegative = extreme(neg)
	r.MaxPositive = r.MaxPositive.Mul(Headroom)
	r.MaxNegative = r.MaxNegative.Mul(Headroom)
	return r
}

func extreme[K comparable](m map[K]decimal.Decimal) (decimal.Decimal, bool) {
	best := decimal.Zero
	for _, v := range m {
		if v.GreaterThan(best) {
			best = v
		}
	}
	return best, best.IsPositive()
}

// Bounds returns explicit y-axis min and max: [0, max] when only positive
// stacks exist, [-neg, 0] when only negative ones do, a symmetric range
// around zero when both do and [0, 0] for no data.
func (r Range) Bounds() (lo, hi decimal.Decimal) {
	switch {
	case r.HasPositive && r.HasNegative:
		m := decimal.Max(r.MaxPositive, r.MaxNegative)
		return m.Neg(), m
	case r.HasPositive:
		return decimal.Zero, r.MaxPositive
	case r.HasNegative:
		return r.MaxNegative.Neg(), decimal.Zero
	}
	return decimal.Zero, decimal.Zero
}

// XBounds returns the x-axis limits of the window in unix milliseconds.
func XBounds(w zoom.Window) (lo, hi int64) {
	return w.Start.UnixMilli(), w.End.Add(-time.Millisecond).UnixMilli()
}
