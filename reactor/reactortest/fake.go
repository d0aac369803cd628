// Package reactortest provides an in-memory [reactor.Registrar], for testing
// collaborators of a reactor without real handles or wall clock time.
package reactortest

import (
	"slices"
	"sync"
	"time"

	"github.com/joeycumines/go-reactor/reactor"
)

// Fake is a deterministic reactor.Registrar. Readiness is injected using
// Trigger, and time only moves when Advance is called. Callbacks run on the
// calling goroutine, outside the lock, so they may use the Fake.
//
// Timer deadlines are read from the Timer when SetTimer is called. Use ArmAt
// relative to Now for exact control.
type Fake struct {
	now     time.Time
	regs    map[reactor.Handle]*fakeReg
	timers  map[*reactor.Timer]*fakeTimer
	failSet error
	mu      sync.Mutex
	seq     uint64
	stops   int
}

type fakeReg struct {
	cb       reactor.IOCallback
	interest reactor.Interest
	flags    reactor.Flags
}

type fakeTimer struct {
	deadline time.Time
	cb       func()
	period   time.Duration
	seq      uint64
	repeat   bool
}

var _ reactor.Registrar = (*Fake)(nil)

// New returns a Fake with its clock set to the current time.
func New() *Fake {
	return &Fake{
		now:    time.Now(),
		regs:   make(map[reactor.Handle]*fakeReg),
		timers: make(map[*reactor.Timer]*fakeTimer),
	}
}

// Now returns the fake clock.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set implements reactor.Registrar.
func (f *Fake) Set(h reactor.Handle, interest reactor.Interest, flags reactor.Flags, cb reactor.IOCallback) error {
	switch {
	case !h.Valid():
		return reactor.ErrInvalidHandle
	case interest == 0 || interest&^reactor.ReadWrite != 0:
		return reactor.ErrInvalidInterest
	case flags&^(reactor.FlagOnce|reactor.FlagEdge) != 0:
		return reactor.ErrInvalidFlags
	case cb == nil:
		return reactor.ErrNilCallback
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failSet; err != nil {
		f.failSet = nil
		return err
	}

	f.regs[h] = &fakeReg{cb: cb, interest: interest, flags: flags}
	return nil
}

// Del implements reactor.Registrar.
func (f *Fake) Del(h reactor.Handle) error {
	if !h.Valid() {
		return reactor.ErrInvalidHandle
	}
	f.mu.Lock()
	delete(f.regs, h)
	f.mu.Unlock()
	return nil
}

// SetTimer implements reactor.Registrar.
func (f *Fake) SetTimer(t *reactor.Timer, cb func()) error {
	if t == nil {
		return reactor.ErrNilTimer
	}
	if cb == nil {
		return reactor.ErrNilCallback
	}
	if !t.Armed() {
		return reactor.ErrTimerNotArmed
	}
	deadline, period, repeat := t.Deadline(), t.Period(), t.Repeat()
	if repeat && period <= 0 {
		return reactor.ErrInvalidPeriod
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	f.timers[t] = &fakeTimer{
		deadline: deadline,
		cb:       cb,
		period:   period,
		seq:      f.seq,
		repeat:   repeat,
	}
	return nil
}

// DelTimer implements reactor.Registrar.
func (f *Fake) DelTimer(t *reactor.Timer) error {
	if t == nil {
		return reactor.ErrNilTimer
	}
	f.mu.Lock()
	delete(f.timers, t)
	f.mu.Unlock()
	return nil
}

// Stop implements reactor.Registrar, recording the call.
func (f *Fake) Stop() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
}

// Stops returns the number of times Stop was called.
func (f *Fake) Stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

// FailNextSet causes the next valid call to Set to return err, leaving any
// existing registration in place.
func (f *Fake) FailNextSet(err error) {
	f.mu.Lock()
	f.failSet = err
	f.mu.Unlock()
}

// Registered returns the interest and flags h is registered with.
func (f *Fake) Registered(h reactor.Handle) (reactor.Interest, reactor.Flags, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if reg, ok := f.regs[h]; ok {
		return reg.interest, reg.flags, true
	}
	return 0, 0, false
}

// Len returns the number of registered handles.
func (f *Fake) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.regs)
}

// Timers returns the number of scheduled timers.
func (f *Fake) Timers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

// Trigger delivers readiness to h, masked by its registered interest, the
// way a real backend would. Closed is always delivered, together with
// Readable if read interest is registered. It returns false if h is not
// registered, or nothing remained after masking.
func (f *Fake) Trigger(h reactor.Handle, kind reactor.EventKind) bool {
	f.mu.Lock()
	reg, ok := f.regs[h]
	if !ok {
		f.mu.Unlock()
		return false
	}
	var masked reactor.EventKind
	if kind&reactor.Readable != 0 && reg.interest&reactor.Read != 0 {
		masked |= reactor.Readable
	}
	if kind&reactor.Writable != 0 && reg.interest&reactor.Write != 0 {
		masked |= reactor.Writable
	}
	if kind&reactor.Closed != 0 {
		masked |= reactor.Closed
		if reg.interest&reactor.Read != 0 {
			masked |= reactor.Readable
		}
	}
	if masked == 0 {
		f.mu.Unlock()
		return false
	}
	if reg.flags&reactor.FlagOnce != 0 {
		delete(f.regs, h)
	}
	f.mu.Unlock()

	reg.cb(masked)
	return true
}

// Advance moves the clock forward by d, firing due timers in deadline order
// as the clock passes them. A repeating timer fires once per elapsed period.
// It returns the number of callbacks invoked.
func (f *Fake) Advance(d time.Duration) int {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	var fired int
	for {
		f.mu.Lock()
		t, ft := f.nextDueLocked(target)
		if ft == nil {
			f.now = target
			f.mu.Unlock()
			return fired
		}
		if ft.deadline.After(f.now) {
			f.now = ft.deadline
		}
		if ft.repeat {
			ft.deadline = ft.deadline.Add(ft.period)
		} else {
			delete(f.timers, t)
		}
		cb := ft.cb
		f.mu.Unlock()

		cb()
		fired++
	}
}

func (f *Fake) nextDueLocked(target time.Time) (*reactor.Timer, *fakeTimer) {
	var (
		due []*reactor.Timer
	)
	for t, ft := range f.timers {
		if !ft.deadline.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil, nil
	}
	t := slices.MinFunc(due, func(a, b *reactor.Timer) int {
		x, y := f.timers[a], f.timers[b]
		if c := x.deadline.Compare(y.deadline); c != 0 {
			return c
		}
		if x.seq < y.seq {
			return -1
		}
		return 1
	})
	return t, f.timers[t]
}
