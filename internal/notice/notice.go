// Package notice holds the transient confirmation message ("toast") a view
// shows after a user action.
package notice

import (
	"sync"
	"time"

	"storefront/internal/timer"
)

// DefaultDuration is how long a notice stays visible.
const DefaultDuration = time.Second

// Board shows one message at a time. A new message replaces the current
// one and restarts the dismissal timer.
type Board struct {
	mu       sync.Mutex
	message  string
	dismiss  *timer.Debouncer
	onChange func(message string)
}

// NewBoard creates a Board that clears each message after d. sched may be
// nil to use the runtime clock.
func NewBoard(d time.Duration, sched timer.Scheduler) *Board {
	if d <= 0 {
		d = DefaultDuration
	}
	return &Board{dismiss: timer.NewDebouncer(d, sched)}
}

// OnChange registers fn to be called with every new message and with ""
// on dismissal. fn runs without the Board's lock held.
func (b *Board) OnChange(fn func(message string)) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

// Show displays message until the dismissal delay elapses.
func (b *Board) Show(message string) {
	b.set(message)
	b.dismiss.Trigger(func() { b.set("") })
}

// Current returns the visible message, or "" when none is shown.
func (b *Board) Current() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.message
}

func (b *Board) set(message string) {
	b.mu.Lock()
	b.message = message
	fn := b.onChange
	b.mu.Unlock()

	if fn != nil {
		fn(message)
	}
}
