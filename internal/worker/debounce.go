package worker

import (
	"sync"
	"time"
)

// Debouncer runs fn once a burst of Trigger calls has been quiet for wait.
type Debouncer struct {
	wait time.Duration
	fn   func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func NewDebouncer(wait time.Duration, fn func()) *Debouncer {
	return &Debouncer{wait: wait, fn: fn}
}

// Trigger (re)starts the quiescence window. With a non-positive wait fn runs
// synchronously.
func (d *Debouncer) Trigger() {
	if d.wait <= 0 {
		d.mu.Lock()
		stopped := d.stopped
		d.mu.Unlock()
		if !stopped {
			d.fn()
		}
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.wait, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()
	d.fn()
}

// Stop drops any pending call. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
