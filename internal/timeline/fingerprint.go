package timeline

import (
	"encoding/json"
	"sort"
	"time"

	"finscope/internal/timeline/breakdown"
	"finscope/internal/timeline/period"
	"finscope/internal/timeline/visibility"
	"finscope/internal/timeline/zoom"
)

type fingerprintKey struct {
	Version       uint64         `json:"v"`
	Granularity   string         `json:"g"`
	Types         []string       `json:"t"`
	Categories    []string       `json:"c"`
	Subcategories []string       `json:"s"`
	Expanded      []string       `json:"e"`
	Mode          breakdown.Mode `json:"m"`
	Owners        []string       `json:"o"`
	Accounts      []string       `json:"a"`
	WindowStart   int64          `json:"ws,omitempty"`
	WindowEnd     int64          `json:"we,omitempty"`
	Today         string         `json:"d,omitempty"`
}

// Fingerprint serializes everything the pipeline output depends on. Two
// states with equal fingerprints produce identical snapshots. The window is
// only part of the key when it is a caller override; otherwise today's date
// stands in for the clock-dependent window policy.
func Fingerprint(vis visibility.Snapshot, sel breakdown.Selection, g period.Granularity, version uint64, custom zoom.Window, today time.Time) string {
	key := fingerprintKey{
		Version:       version,
		Granularity:   g.String(),
		Types:         vis.Types,
		Categories:    vis.Categories,
		Subcategories: vis.Subcategories,
		Expanded:      vis.Expanded,
		Mode:          sel.Mode,
		Owners:        sortedCopy(sel.Owners),
		Accounts:      sortedCopy(sel.Accounts),
	}
	if custom.IsZero() {
		key.Today = today.Format(time.DateOnly)
	} else {
		key.WindowStart = custom.Start.UnixNano()
		key.WindowEnd = custom.End.UnixNano()
	}
	// Marshalling plain strings and slices cannot fail.
	b, _ := json.Marshal(key)
	return string(b)
}

func sortedCopy(in []string) []string {
	out := append([]string{}, in...)
	sort.Strings(out)
	return out
}
