// Package debounce coalesces bursts of calls into a single delayed call per key.
package debounce

import (
	"sync"
	"time"

	"github.com/listnote/listnote-core/internal/clock"
)

// Style decides what happens when a call arrives while one is pending
type Style int

const (
	// ResetOnNew restarts the wait and replaces the pending function
	ResetOnNew Style = iota
	// IgnoreNew keeps the pending call and drops the new one
	IgnoreNew
)

// Debouncer runs at most one pending function per key
type Debouncer struct {
	clock clock.Clock

	mu      sync.Mutex
	gen     uint64
	pending map[string]*entry
}

type entry struct {
	timer clock.Timer
	gen   uint64
}

// New creates a debouncer driven by the given clock
func New(c clock.Clock) *Debouncer {
	if c == nil {
		c = clock.New()
	}
	return &Debouncer{
		clock:   c,
		pending: make(map[string]*entry),
	}
}

// Call schedules fn under key after delay, following the given style
func (d *Debouncer) Call(key string, fn func(), delay time.Duration, style Style) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.pending[key]
	if ok && style == IgnoreNew {
		return
	}
	if !ok {
		e = &entry{}
		d.pending[key] = e
	} else {
		e.timer.Stop()
	}

	d.gen++
	gen := d.gen
	e.gen = gen
	e.timer = d.clock.AfterFunc(delay, func() {
		d.mu.Lock()
		current, ok := d.pending[key]
		if !ok || current.gen != gen {
			d.mu.Unlock()
			return
		}
		delete(d.pending, key)
		d.mu.Unlock()

		fn()
	})
}

// Cancel drops the pending call for key. Returns true if one was pending.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.pending[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(d.pending, key)
	return true
}

// Pending reports whether a call is waiting under key
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}
