// Package debounce collapses bursts of triggers into a single action.
package debounce

import (
	"sync"
	"time"
)

// Timer is the part of *time.Timer the debouncer needs
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d and returns a handle to cancel it
type AfterFunc func(d time.Duration, f func()) Timer

// Option configures a Debouncer
type Option func(*Debouncer)

// WithAfterFunc replaces the timer factory. Used by tests to control time.
func WithAfterFunc(fn AfterFunc) Option {
	return func(d *Debouncer) {
		d.afterFunc = fn
	}
}

// Debouncer runs an action once a quiet interval has passed since the last Trigger.
// An interval of zero runs the action synchronously on every Trigger.
type Debouncer struct {
	interval  time.Duration
	action    func()
	afterFunc AfterFunc

	mu      sync.Mutex
	timer   Timer
	gen     uint64
	stopped bool

	// run serializes action calls between the timer goroutine and Flush
	run sync.Mutex
}

// New creates a debouncer for action
func New(interval time.Duration, action func(), opts ...Option) *Debouncer {
	d := &Debouncer{
		interval: interval,
		action:   action,
		afterFunc: func(delay time.Duration, f func()) Timer {
			return time.AfterFunc(delay, f)
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Trigger (re)arms the timer. Non-blocking unless the interval is zero.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}

	if d.interval <= 0 {
		d.mu.Unlock()
		d.execute()
		return
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.afterFunc(d.interval, func() {
		d.fire(gen)
	})
	d.mu.Unlock()
}

// Pending reports whether an action is armed but has not run yet
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Flush runs a pending action immediately. Returns false if nothing was pending.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	if d.timer == nil || d.stopped {
		d.mu.Unlock()
		return false
	}
	d.timer.Stop()
	d.timer = nil
	d.gen++
	d.mu.Unlock()

	d.execute()
	return true
}

// Stop cancels any pending action. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	// a newer Trigger or a Flush superseded this timer
	if gen != d.gen || d.stopped {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	d.execute()
}

func (d *Debouncer) execute() {
	d.run.Lock()
	defer d.run.Unlock()
	d.action()
}
