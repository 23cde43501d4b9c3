// Package trigger coalesces change notifications into planning passes.
// A burst of edits produces exactly one pass shortly after the burst
// ends, instead of one pass per edit.
package trigger

import (
	"context"
	"sync"
	"time"
)

// Debouncer invokes fn once the notification stream has been quiet for
// the configured interval. Notify never blocks.
type Debouncer struct {
	quiet time.Duration
	fn    func()

	mu    sync.Mutex
	timer *time.Timer
	done  bool
}

func NewDebouncer(quiet time.Duration, fn func()) *Debouncer {
	return &Debouncer{quiet: quiet, fn: fn}
}

// Notify records a change. The pending fire, if any, is pushed back to a
// full quiet interval from now.
func (d *Debouncer) Notify() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quiet, d.fn)
}

// Close cancels any pending fire and rejects further notifications.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.done = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Run pumps notifications from a channel into the debouncer until the
// context ends. It exists for brokers that deliver change events on a
// subscription channel.
func (d *Debouncer) Run(ctx context.Context, ch <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			d.Close()
			return
		case _, ok := <-ch:
			if !ok {
				d.Close()
				return
			}
			d.Notify()
		}
	}
}
