package sync

import (
	stdsync "sync"
	"time"
)

// debouncer collapses bursts of triggers into one call after the delay.
// Stop cancels an in-flight timer; a stopped debouncer never fires
// again, which is what keeps refetches from running against a torn-down
// store.
type debouncer struct {
	mu      stdsync.Mutex
	delay   time.Duration
	fn      func()
	timer   *time.Timer
	stopped bool
}

func newDebouncer(delay time.Duration, fn func()) *debouncer {
	return &debouncer{delay: delay, fn: fn}
}

// Trigger (re)arms the timer.
func (d *debouncer) Trigger() {
	d.TriggerAfter(d.delay)
}

// TriggerAfter arms the timer with a caller-chosen delay, keeping the
// latest request when one is already pending.
func (d *debouncer) TriggerAfter(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(delay, d.fn)
}

// Stop cancels any pending fire permanently.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
