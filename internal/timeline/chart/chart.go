// Package chart shapes assembled series into the contract the rendering
// sink consumes.
package chart

import (
	"finscope/internal/core"
	"finscope/internal/timeline/axis"
	"finscope/internal/timeline/series"
	"finscope/internal/timeline/zoom"
)

type (
	Point struct {
		X int64   `json:"x"`
		Y float64 `json:"y"`
	}

	Series struct {
		Name  string  `json:"name"`
		Type  string  `json:"type"`
		Data  []Point `json:"data"`
		Color string  `json:"color"`
		Group string  `json:"group"`
	}

	Bounds struct {
		Min float64 `json:"min"`
		Max float64 `json:"max"`
	}

	Options struct {
		XAxis Bounds `json:"xaxis"`
		YAxis Bounds `json:"yaxis"`
	}
)

// Bars converts series to bar series. X is the period start in unix
// milliseconds.
func Bars(all []series.Series) []Series {
	out := make([]Series, len(all))
	for i, s := range all {
		data := make([]Point, len(s.Points))
		for j, p := range s.Points {
			data[j] = Point{X: p.Start.UnixMilli(), Y: core.Float(p.Value)}
		}
		out[i] = Series{Name: s.Label, Type: "bar", Data: data, Color: s.Color, Group: s.StackGroup}
	}
	return out
}

// OptionsFor returns explicit axis limits for the window and range.
func OptionsFor(w zoom.Window, r axis.Range) Options {
	lo, hi := r.Bounds()
	xlo, xhi := axis.XBounds(w)
	return Options{
		XAxis: Bounds{Min: float64(xlo), Max: float64(xhi)},
		YAxis: Bounds{Min: core.Float(lo), Max: core.Float(hi)},
	}
}
