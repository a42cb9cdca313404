package hover

// Tracker remembers the last hovered period and an optional pin. While
// pinned, hovering returns the frozen detail unchanged.
type Tracker struct {
	index       int
	fingerprint string
	detail      map[string]Detail
	valid       bool
	pinned      bool
}

// Hover returns the detail of the period at index, calling compute only when
// the period or the state fingerprint differs from the last call.
func (t *Tracker) Hover(index int, fingerprint string, compute func() map[string]Detail) map[string]Detail {
	if t.pinned {
		return t.detail
	}
	if t.valid && t.index == index && t.fingerprint == fingerprint {
		return t.detail
	}
	t.index, t.fingerprint = index, fingerprint
	t.detail = compute()
	t.valid = true
	return t.detail
}

// Pin freezes the current detail. It reports false when nothing has been
// hovered yet.
func (t *Tracker) Pin() bool {
	if !t.valid {
		return false
	}
	t.pinned = true
	return true
}

func (t *Tracker) Unpin() { t.pinned = false }

func (t *Tracker) Pinned() bool { return t.pinned }

// Current returns the last hovered index and its detail.
func (t *Tracker) Current() (int, map[string]Detail, bool) {
	return t.index, t.detail, t.valid
}

// Invalidate drops the cached detail unless it is pinned.
func (t *Tracker) Invalidate() {
	if t.pinned {
		return
	}
	t.valid = false
	t.detail = nil
}
