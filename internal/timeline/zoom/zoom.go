// Package zoom maps discrete zoom levels to a grouping granularity and a
// visible date window. How many points are drawn (granularity) and which
// range is visible (window) are decided independently.
package zoom

import (
	"time"

	"finscope/internal/core"
	"finscope/internal/timeline/period"
)

const (
	MinLevel     = -1
	DefaultLevel = 0
	MaxLevel     = 1
)

// Window is a half-open date range [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t lies in the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// IsZero reports whether the window is unset.
func (w Window) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Controller holds the zoom level and an optional caller-supplied window.
type Controller struct {
	level  int
	custom Window
	now    func() time.Time
}

// New returns a controller at the default level. now may be nil.
func New(now func() time.Time) *Controller {
	if now == nil {
		now = time.Now
	}
	return &Controller{level: DefaultLevel, now: now}
}

func (c *Controller) Level() int { return c.level }

// ZoomIn moves one level towards month granularity; no-op at MaxLevel.
func (c *Controller) ZoomIn() {
	if c.level < MaxLevel {
		c.level++
	}
}

// ZoomOut moves one level towards year granularity; no-op at MinLevel.
func (c *Controller) ZoomOut() {
	if c.level > MinLevel {
		c.level--
	}
}

// SetLevel clamps level into [MinLevel, MaxLevel].
func (c *Controller) SetLevel(level int) {
	c.level = max(MinLevel, min(MaxLevel, level))
}

// Reset returns to the default level and drops any custom window.
func (c *Controller) Reset() {
	c.level = DefaultLevel
	c.custom = Window{}
}

// SetWindow overrides the window policy until cleared or reset. A zero or
// inverted window clears the override.
func (c *Controller) SetWindow(w Window) {
	if w.IsZero() || !w.End.After(w.Start) {
		c.custom = Window{}
		return
	}
	c.custom = w
}

// HasCustomWindow reports whether a caller-supplied window is active.
func (c *Controller) HasCustomWindow() bool {
	return !c.custom.IsZero()
}

// Granularity returns the grouping granularity of the current level.
func (c *Controller) Granularity() period.Granularity {
	return GranularityFor(c.level)
}

// GranularityFor maps -1 to year, 0 to quarter and 1 to month.
func GranularityFor(level int) period.Granularity {
	switch {
	case level <= MinLevel:
		return period.Year
	case level >= MaxLevel:
		return period.Month
	default:
		return period.Quarter
	}
}

// LevelFor is the inverse of GranularityFor.
func LevelFor(g period.Granularity) int {
	switch g {
	case period.Year:
		return MinLevel
	case period.Month:
		return MaxLevel
	default:
		return DefaultLevel
	}
}

// Window returns the visible window for the dataset. At the coarsest level
// it spans from the year of the first transaction to two years past the
// month of the last one. At finer levels it is a fixed two-year window
// starting on Jan 1 of an even year: the even year containing today or the
// last data year, whichever is earlier.
func (c *Controller) Window(txs []core.Transaction) Window {
	if !c.custom.IsZero() {
		return c.custom
	}
	now := c.now()
	sum := core.Summarize(txs)
	loc := now.Location()
	if sum.Count > 0 {
		loc = sum.Last.Location()
	}

	if c.level <= MinLevel {
		if sum.Count == 0 {
			start := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, loc)
			return Window{Start: start, End: start.AddDate(2, 0, 0)}
		}
		start := period.Start(sum.First, period.Year)
		end := period.Start(sum.Last, period.Month).AddDate(2, 1, 0)
		return Window{Start: start, End: end}
	}

	year := now.Year()
	if sum.Count > 0 && sum.Last.Year() < year {
		year = sum.Last.Year()
	}
	year -= year % 2
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
	return Window{Start: start, End: start.AddDate(2, 0, 0)}
}
