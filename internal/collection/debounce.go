package collection

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Timer is the part of *time.Timer the debouncer uses.
type Timer interface {
	Stop() bool
}

// Clock schedules deferred calls. Tests substitute a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock is the wall clock.
var SystemClock Clock = realClock{}

// Debouncer commits a search query once input has been idle for the delay.
// Non-empty input shorter than minLen cancels any pending commit and waits
// for more; empty input commits so clearing the box clears the search.
type Debouncer struct {
	clock  Clock
	delay  time.Duration
	minLen int
	commit func(string)

	mu      sync.Mutex
	timer   Timer
	gen     uint64
	pending bool
	stopped bool
}

// NewDebouncer returns a debouncer calling commit. A nil clock means SystemClock.
func NewDebouncer(delay time.Duration, minLen int, clock Clock, commit func(string)) *Debouncer {
	if clock == nil {
		clock = SystemClock
	}
	return &Debouncer{clock: clock, delay: delay, minLen: minLen, commit: commit}
}

// Push records new input.
func (d *Debouncer) Push(q string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.cancelLocked()
	if n := utf8.RuneCountInString(strings.TrimSpace(q)); n > 0 && n < d.minLen {
		return
	}
	gen := d.gen
	d.pending = true
	d.timer = d.clock.AfterFunc(d.delay, func() { d.fire(gen, q) })
}

// Pending reports whether a commit is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Stop cancels any pending commit; later pushes are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.cancelLocked()
}

func (d *Debouncer) cancelLocked() {
	d.gen++
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) fire(gen uint64, q string) {
	d.mu.Lock()
	if d.stopped || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.pending = false
	d.mu.Unlock()
	d.commit(q)
}
