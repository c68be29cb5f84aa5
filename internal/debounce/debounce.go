// Package debounce rate-limits query execution against user keystrokes and
// defers index scans off the caller's path so interactive input is never
// blocked by a scan.
package debounce

import (
	"sync"
	"time"
)

// Default delays. Product search tolerates a slightly longer settle window
// than the command palette.
const (
	DefaultProductDelay = 150 * time.Millisecond
	DefaultPaletteDelay = 100 * time.Millisecond
)

// Debouncer emits an input value only after it has been stable for the
// configured delay. Any new input within the window cancels the pending emit
// and restarts the timer.
type Debouncer struct {
	delay time.Duration

	mu    sync.Mutex
	timer *time.Timer
	seq   uint64
	out   chan string
}

// NewDebouncer constructs a debouncer with the given settle delay.
func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultProductDelay
	}
	return &Debouncer{
		delay: delay,
		out:   make(chan string, 1),
	}
}

// Set feeds a new input value. It never blocks. Each call bumps the emit
// sequence, so a timer that already fired cannot deliver a superseded value.
func (d *Debouncer) Set(value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.timer = time.AfterFunc(d.delay, func() {
		d.emit(seq, value)
	})
}

// C delivers debounced values. Only the most recent settled value is
// retained; an unread value is replaced, never queued behind.
func (d *Debouncer) C() <-chan string {
	return d.out
}

// Stop cancels any pending emit, including a timer that fired but has not
// delivered yet.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
}

// emit delivers under the same lock Set bumps the sequence under, so a
// superseded timer returns without sending.
func (d *Debouncer) emit(seq uint64, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if seq != d.seq {
		return
	}
	for {
		select {
		case d.out <- value:
			return
		default:
			// Drop the stale unread value and retry with the new one.
			select {
			case <-d.out:
			default:
			}
		}
	}
}
