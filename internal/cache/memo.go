package cache

import "sync"

// Memo holds a single value keyed by a fingerprint. A hit returns the very
// value that was built, so slices and maps keep their identity.
type Memo[T any] struct {
	mu          sync.Mutex
	fingerprint string
	value       T
	valid       bool
	builds      int
}

// GetOrBuild returns the cached value when fingerprint matches the stored
// one, and otherwise replaces it with build().
func (m *Memo[T]) GetOrBuild(fingerprint string, build func() T) T {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.valid && m.fingerprint == fingerprint {
		return m.value
	}
	m.value = build()
	m.fingerprint = fingerprint
	m.valid = true
	m.builds++
	return m.value
}

// Reset drops the stored value.
func (m *Memo[T]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	m.value = zero
	m.fingerprint = ""
	m.valid = false
}

// Builds reports how many times build has run.
func (m *Memo[T]) Builds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.builds
}
