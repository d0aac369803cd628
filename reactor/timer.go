package reactor

import (
	"sync"
	"time"
)

// Timer describes when a timer callback should run. It is owned by the
// caller, armed with one of the Arm methods, then scheduled with
// [Reactor.SetTimer]. Arming a timer that is already scheduled has no effect
// until SetTimer is called again.
//
// The zero value is an unarmed timer. A Timer is safe for concurrent use.
type Timer struct {
	deadline time.Time
	period   time.Duration
	mu       sync.Mutex
	repeat   bool
	armed    bool
}

// ArmOnce arms the timer to fire once, d from now.
func (t *Timer) ArmOnce(d time.Duration) {
	t.arm(time.Now().Add(d), 0, false)
}

// ArmAt arms the timer to fire once, at the given time. A deadline in the
// past fires on the next iteration.
func (t *Timer) ArmAt(deadline time.Time) {
	t.arm(deadline, 0, false)
}

// ArmInterval arms the timer to fire every period, starting one period from
// now. Each subsequent deadline is the previous deadline plus period, so late
// iterations don't accumulate drift. A non-positive period is rejected by
// SetTimer.
func (t *Timer) ArmInterval(period time.Duration) {
	t.arm(time.Now().Add(period), period, true)
}

func (t *Timer) arm(deadline time.Time, period time.Duration, repeat bool) {
	t.mu.Lock()
	t.deadline = deadline
	t.period = period
	t.repeat = repeat
	t.armed = true
	t.mu.Unlock()
}

// Armed reports whether one of the Arm methods has been called.
func (t *Timer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

// Deadline returns the next time the timer is due. For a scheduled repeating
// timer, it advances each time the timer fires.
func (t *Timer) Deadline() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deadline
}

// Period returns the repeat interval, or zero for a one-shot timer.
func (t *Timer) Period() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.period
}

// Repeat reports whether the timer was armed with ArmInterval.
func (t *Timer) Repeat() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.repeat
}

// schedule snapshots the armed configuration.
func (t *Timer) schedule() (deadline time.Time, period time.Duration, repeat, armed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deadline, t.period, t.repeat, t.armed
}

// advance records the rescheduled deadline of a repeating timer.
func (t *Timer) advance(deadline time.Time) {
	t.mu.Lock()
	t.deadline = deadline
	t.mu.Unlock()
}
