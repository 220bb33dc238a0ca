// Package watchdog schedules the periodic self-restart of the node.
package watchdog

import (
	"sync"
	"time"
)

// ExitCode is the process status used for a scheduled restart.
// It is EX_TEMPFAIL so a supervisor treats it as "restart me".
const ExitCode = 75

// Watchdog fires a callback once after a fixed delay unless stopped.
type Watchdog struct {
	mu       sync.Mutex
	timer    *time.Timer
	deadline time.Time
	done     bool
}

// Start arms a watchdog. A non-positive delay returns a disarmed watchdog
// that never fires.
func Start(after time.Duration, now time.Time, fire func()) *Watchdog {
	w := &Watchdog{}
	if after <= 0 {
		return w
	}
	w.deadline = now.Add(after)
	w.timer = time.AfterFunc(after, func() {
		w.mu.Lock()
		w.done = true
		w.mu.Unlock()
		fire()
	})
	return w
}

// Stop disarms the watchdog. It reports whether a pending restart was
// cancelled.
func (w *Watchdog) Stop() bool {
	if w == nil || w.timer == nil {
		return false
	}
	w.mu.Lock()
	w.done = true
	w.mu.Unlock()
	return w.timer.Stop()
}

// Armed reports whether the watchdog will fire in the future.
func (w *Watchdog) Armed() bool {
	if w == nil || w.timer == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.done
}

// Deadline returns when the watchdog fires; zero if disarmed.
func (w *Watchdog) Deadline() time.Time {
	if w == nil {
		return time.Time{}
	}
	return w.deadline
}
