package zoom

import (
	"testing"
	"time"

	"finscope/internal/core"
	"finscope/internal/timeline/period"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func fixed(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestZoomClamps(t *testing.T) {
	c := New(nil)
	if c.Level() != DefaultLevel || c.Granularity() != period.Quarter {
		t.Fatalf("unexpected default level %d / %v", c.Level(), c.Granularity())
	}

	c.ZoomIn()
	if c.Level() != 1 || c.Granularity() != period.Month {
		t.Fatalf("expected month level, got %d", c.Level())
	}
	c.ZoomIn()
	if c.Level() != 1 {
		t.Fatalf("ZoomIn at level 1 must be a no-op, got %d", c.Level())
	}

	c.ZoomOut()
	c.ZoomOut()
	if c.Level() != -1 || c.Granularity() != period.Year {
		t.Fatalf("expected year level, got %d", c.Level())
	}
	c.ZoomOut()
	if c.Level() != -1 {
		t.Fatalf("ZoomOut at level -1 must be a no-op, got %d", c.Level())
	}

	c.SetLevel(9)
	if c.Level() != MaxLevel {
		t.Fatalf("SetLevel must clamp, got %d", c.Level())
	}
}

func TestLevelForInvertsGranularityFor(t *testing.T) {
	for level := MinLevel; level <= MaxLevel; level++ {
		if got := LevelFor(GranularityFor(level)); got != level {
			t.Fatalf("LevelFor(GranularityFor(%d)) = %d", level, got)
		}
	}
}

func TestCoarseWindowSpansDataPlusTwoYears(t *testing.T) {
	c := New(fixed(date(2026, 10, 18)))
	c.ZoomOut()

	txs := []core.Transaction{{PostedAt: date(2021, 3, 10)}, {PostedAt: date(2024, 6, 2)}}
	w := c.Window(txs)
	if !w.Start.Equal(date(2021, 1, 1)) {
		t.Fatalf("unexpected start %v", w.Start)
	}
	if !w.End.Equal(date(2026, 7, 1)) {
		t.Fatalf("unexpected end %v", w.End)
	}
	if !w.Contains(date(2026, 6, 30)) || w.Contains(date(2026, 7, 1)) {
		t.Fatalf("window should be half-open")
	}
}

func TestFineWindowSnapsToEvenYear(t *testing.T) {
	cases := []struct {
		name  string
		now   time.Time
		last  time.Time
		start time.Time
	}{
		{"data ends before today in odd year", date(2026, 10, 18), date(2025, 5, 1), date(2024, 1, 1)},
		{"data ends before today in even year", date(2026, 10, 18), date(2024, 5, 1), date(2024, 1, 1)},
		{"data runs past today", date(2027, 3, 1), date(2030, 1, 1), date(2026, 1, 1)},
		{"today even", date(2026, 10, 18), date(2026, 9, 1), date(2026, 1, 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := New(fixed(tc.now))
			w := c.Window([]core.Transaction{{PostedAt: date(2020, 1, 1)}, {PostedAt: tc.last}})
			if !w.Start.Equal(tc.start) || !w.End.Equal(tc.start.AddDate(2, 0, 0)) {
				t.Fatalf("window = %v..%v, want %v + 2y", w.Start, w.End, tc.start)
			}
		})
	}
}

func TestWindowWithoutData(t *testing.T) {
	c := New(fixed(date(2027, 4, 1)))
	w := c.Window(nil)
	if !w.Start.Equal(date(2026, 1, 1)) || !w.End.Equal(date(2028, 1, 1)) {
		t.Fatalf("unexpected empty-data window %v..%v", w.Start, w.End)
	}
	c.ZoomOut()
	if w := c.Window(nil); w.IsZero() {
		t.Fatalf("coarse window without data must not be zero")
	}
}

func TestCustomWindowOverridesUntilReset(t *testing.T) {
	c := New(fixed(date(2026, 1, 1)))
	custom := Window{Start: date(2022, 1, 1), End: date(2022, 7, 1)}
	c.SetWindow(custom)
	if !c.HasCustomWindow() || c.Window(nil) != custom {
		t.Fatalf("custom window not applied")
	}
	c.ZoomIn()
	if c.Window(nil) != custom {
		t.Fatalf("custom window must survive zoom changes")
	}
	c.Reset()
	if c.HasCustomWindow() || c.Level() != DefaultLevel {
		t.Fatalf("reset must clear custom window and level")
	}

	c.SetWindow(Window{Start: date(2023, 1, 1), End: date(2022, 1, 1)})
	if c.HasCustomWindow() {
		t.Fatalf("inverted window must clear the override")
	}
}
