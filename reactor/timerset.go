package reactor

import (
	"container/heap"
	"sync"
	"time"
)

type (
	// timerSet merges the scheduled timers into a single next deadline, and
	// fires those that are due. It has its own lock, so timers may be
	// scheduled from any goroutine without touching registration state.
	timerSet struct {
		entries map[*Timer]*timerEntry
		heap    timerHeap
		due     []timerFire
		mu      sync.Mutex
		seq     uint64
	}

	timerEntry struct {
		deadline time.Time
		timer    *Timer
		cb       func()
		period   time.Duration
		// seq orders entries with equal deadlines, by arm order
		seq uint64
		// gen changes each time the entry is armed or disarmed
		gen    uint64
		index  int
		repeat bool
	}

	// timerFire is a snapshot of a due entry, taken by fireDue.
	timerFire struct {
		entry *timerEntry
		gen   uint64
	}

	// timerHeap is a min-heap ordered by (deadline, seq).
	timerHeap []*timerEntry
)

func newTimerSet() *timerSet {
	return &timerSet{entries: make(map[*Timer]*timerEntry)}
}

// arm schedules t per its current configuration, replacing any existing
// schedule for t.
func (s *timerSet) arm(t *Timer, cb func()) error {
	if t == nil {
		return ErrNilTimer
	}
	if cb == nil {
		return ErrNilCallback
	}
	deadline, period, repeat, armed := t.schedule()
	if !armed {
		return ErrTimerNotArmed
	}
	if repeat && period <= 0 {
		return ErrInvalidPeriod
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++

	e, ok := s.entries[t]
	if !ok {
		e = &timerEntry{timer: t, index: -1}
		s.entries[t] = e
	}
	e.deadline = deadline
	e.period = period
	e.repeat = repeat
	e.cb = cb
	e.seq = s.seq
	e.gen = s.seq

	if e.index < 0 {
		heap.Push(&s.heap, e)
	} else {
		heap.Fix(&s.heap, e.index)
	}

	return nil
}

// disarm removes t, reporting whether it was scheduled. It is idempotent, and
// prevents a pending fire of t that was already snapshot by an in-progress
// fireDue.
func (s *timerSet) disarm(t *Timer) (bool, error) {
	if t == nil {
		return false, ErrNilTimer
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[t]
	if !ok {
		return false, nil
	}
	delete(s.entries, t)
	s.seq++
	e.gen = s.seq
	if e.index >= 0 {
		heap.Remove(&s.heap, e.index)
	}
	return true, nil
}

// len returns the number of scheduled timers.
func (s *timerSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// nextDeadline returns the time until the earliest timer is due, clamped to
// zero, or false if no timer is scheduled.
func (s *timerSet) nextDeadline(now time.Time) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.heap) == 0 {
		return 0, false
	}
	d := s.heap[0].deadline.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

// fireDue runs (via run) the callback of every timer due at now, in ascending
// deadline order, returning the number fired.
//
// The due set is snapshot first, so each timer fires at most once per call,
// and repeating timers are rescheduled at deadline+period before any callback
// runs. Callbacks run without the lock held, and an entry disarmed or re-armed
// by an earlier callback in the same call is skipped.
//
// Must only be called by the goroutine driving the reactor.
func (s *timerSet) fireDue(now time.Time, run func(cb func())) int {
	s.mu.Lock()
	due := s.due[:0]
	for len(s.heap) != 0 && !s.heap[0].deadline.After(now) {
		e := heap.Pop(&s.heap).(*timerEntry)
		due = append(due, timerFire{entry: e, gen: e.gen})
	}
	for _, f := range due {
		e := f.entry
		if !e.repeat {
			// stays in entries (out of the heap) until it fires, so disarm
			// can still cancel it
			continue
		}
		e.deadline = e.deadline.Add(e.period)
		e.timer.advance(e.deadline)
		heap.Push(&s.heap, e)
	}
	s.due = due
	s.mu.Unlock()

	var fired int
	for i := range due {
		if cb := s.claim(due[i]); cb != nil {
			fired++
			run(cb)
		}
		due[i] = timerFire{}
	}
	return fired
}

// claim re-validates a snapshot entry, returning its callback if it should
// still fire. One-shot entries are removed.
func (s *timerSet) claim(f timerFire) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := f.entry
	if e.gen != f.gen || s.entries[e.timer] != e {
		return nil
	}
	if !e.repeat && e.index < 0 {
		delete(s.entries, e.timer)
	}
	return e.cb
}

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
