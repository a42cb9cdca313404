package cache

import (
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestLRU(size int, ttl time.Duration) (*LRUCache[string], *clock) {
	clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](size, ttl)
	c.now = clk.now
	return c, clk
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestLRU(2, time.Hour)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Get("a")
	c.Set("c", "3")

	if _, ok := c.Get("b"); ok {
		t.Fatalf("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Fatalf("a should survive, got %q %v", v, ok)
	}
	if c.Size() != 2 {
		t.Fatalf("size = %d, want 2", c.Size())
	}
}

func TestLRUExpiryAndTouch(t *testing.T) {
	c, clk := newTestLRU(10, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")

	clk.t = clk.t.Add(50 * time.Second)
	if !c.Touch("a") {
		t.Fatalf("touch on a live entry must succeed")
	}
	clk.t = clk.t.Add(30 * time.Second)

	if _, ok := c.Get("b"); ok {
		t.Fatalf("b should have expired")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("touched entry should still be live")
	}
	if got := c.Values(); len(got) != 1 || got[0] != "1" {
		t.Fatalf("unexpected live values %v", got)
	}

	clk.t = clk.t.Add(time.Hour)
	if n := c.CleanExpired(); n != 1 || c.Size() != 0 {
		t.Fatalf("CleanExpired removed %d, size %d", n, c.Size())
	}
	if c.Touch("a") {
		t.Fatalf("touch on a missing entry must fail")
	}
}

func TestManagerCleanNow(t *testing.T) {
	c, clk := newTestLRU(10, time.Minute)
	c.Set("a", "1")
	clk.t = clk.t.Add(2 * time.Minute)

	m := NewManager(nil)
	m.Register(c)
	if n := m.CleanNow(); n != 1 {
		t.Fatalf("CleanNow = %d, want 1", n)
	}

	m.StartCleanup(time.Millisecond)
	m.Stop()
	m.Stop()
}

func TestMemoReturnsSameValueForSameFingerprint(t *testing.T) {
	var m Memo[[]int]
	build := func() []int { return []int{1, 2, 3} }

	first := m.GetOrBuild("fp", build)
	second := m.GetOrBuild("fp", build)
	if &first[0] != &second[0] {
		t.Fatalf("hit must return the same backing array")
	}
	if m.Builds() != 1 {
		t.Fatalf("builds = %d, want 1", m.Builds())
	}

	third := m.GetOrBuild("other", build)
	if &third[0] == &first[0] || m.Builds() != 2 {
		t.Fatalf("a new fingerprint must rebuild")
	}

	m.Reset()
	m.GetOrBuild("other", build)
	if m.Builds() != 3 {
		t.Fatalf("reset must force a rebuild")
	}
}
