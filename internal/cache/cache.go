package cache

import (
	"sync"
	"time"

	"finscope/internal/log"
)

// Cache is a bounded keyed store
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	// Size returns the current number of items in the cache
	Size() int
}

// Cleaner interface for caches that support cleanup
type Cleaner interface {
	CleanExpired() int
}

// Manager runs periodic expiry over registered caches
type Manager struct {
	mu          sync.Mutex
	caches      []Cleaner
	logger      *log.Logger
	stopCleanup chan struct{}
	cleanupDone chan struct{}
	started     bool
}

// NewManager creates a new cache manager. logger may be nil.
func NewManager(logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Discard()
	}
	return &Manager{logger: logger.WithComponent(log.ComponentCache)}
}

// Register adds a cache to the manager for cleanup
func (m *Manager) Register(cache Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches = append(m.caches, cache)
}

// StartCleanup begins periodic cleanup of all registered caches
func (m *Manager) StartCleanup(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	m.stopCleanup = make(chan struct{})
	m.cleanupDone = make(chan struct{})
	go m.cleanup(interval, m.stopCleanup, m.cleanupDone)
}

// CleanNow runs one cleanup pass and returns the number of removed entries.
func (m *Manager) CleanNow() int {
	m.mu.Lock()
	caches := append([]Cleaner(nil), m.caches...)
	m.mu.Unlock()

	total := 0
	for _, c := range caches {
		total += c.CleanExpired()
	}
	return total
}

func (m *Manager) cleanup(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.CleanNow(); n > 0 {
				m.logger.Debug("Expired cache entries removed", log.FieldOperation, log.OpCleanup, log.FieldEvicted, n)
			}
		case <-stop:
			return
		}
	}
}

// Stop gracefully stops the cleanup routine
func (m *Manager) Stop() {
	m.mu.Lock()
	started := m.started
	stop, done := m.stopCleanup, m.cleanupDone
	m.started = false
	m.mu.Unlock()
	if !started {
		return
	}
	close(stop)
	<-done
}
