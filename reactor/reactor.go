// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
)

// Registrar is the registration surface of a [Reactor], implemented by
// *Reactor and by the reactortest.Fake test double. Collaborators (e.g.
// connection objects) should accept a Registrar rather than a *Reactor.
type Registrar interface {
	Set(h Handle, interest Interest, flags Flags, cb IOCallback) error
	Del(h Handle) error
	SetTimer(t *Timer, cb func()) error
	DelTimer(t *Timer) error
	Stop()
}

var _ Registrar = (*Reactor)(nil)

// PollStatus is the outcome of a single [Reactor.Poll] iteration.
type PollStatus int

const (
	// PollProgressed means at least one timer or I/O callback ran.
	PollProgressed PollStatus = iota
	// PollTimedOut means the wait elapsed with nothing to dispatch.
	PollTimedOut
	// PollInterrupted means the wait was cut short, by a signal or by a
	// wake from another goroutine, with nothing to dispatch.
	PollInterrupted
	// PollStopped means Stop was called, or the reactor was closed.
	PollStopped
)

// String returns a human-readable representation of the status.
func (s PollStatus) String() string {
	switch s {
	case PollProgressed:
		return "Progressed"
	case PollTimedOut:
		return "TimedOut"
	case PollInterrupted:
		return "Interrupted"
	case PollStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

type (
	// Reactor multiplexes readiness for registered handles with software
	// timers, dispatching callbacks on the goroutine driving Run or Poll.
	//
	// See the package documentation for thread safety.
	Reactor struct { // betteralign:ignore
		drv     driver
		regs    map[Handle]*registration
		timers  *timerSet
		metrics *metrics
		log     reactorLog

		// owned by the driving goroutine
		events []event
		batch  []dispatchSlot

		counters counters
		state    fastState

		// mu guards regs and gen, and serialises backend registration
		mu  sync.Mutex
		gen uint64

		loopGoroutineID atomic.Uint64
		stopRequested   atomic.Bool
		wakePending     atomic.Bool
	}

	registration struct {
		cb       IOCallback
		gen      uint64
		interest Interest
		flags    Flags
	}

	// dispatchSlot is a batch entry, validated against the registration
	// captured when the batch was built.
	dispatchSlot struct {
		reg    *registration
		gen    uint64
		handle Handle
		kind   EventKind
	}
)

var reactorIDs atomic.Uint64

// New creates a reactor using the backend selected at build time. It returns
// [ErrUnsupportedPlatform] where no backend exists.
func New(opts ...Option) (*Reactor, error) {
	cfg, err := resolveReactorOptions(opts)
	if err != nil {
		return nil, err
	}

	limiter, err := newLogLimiter(cfg.logRateLimits)
	if err != nil {
		return nil, err
	}

	drv, err := newDriver(cfg.eventBufferSize)
	if err != nil {
		return nil, err
	}

	return newReactor(cfg, limiter, drv), nil
}

func newReactor(cfg *reactorOptions, limiter *catrate.Limiter, drv driver) *Reactor {
	r := &Reactor{
		drv:    drv,
		regs:   make(map[Handle]*registration),
		timers: newTimerSet(),
		log: reactorLog{
			logger:  cfg.logger,
			limiter: limiter,
			id:      reactorIDs.Add(1),
		},
		events: make([]event, cfg.eventBufferSize),
		batch:  make([]dispatchSlot, 0, cfg.eventBufferSize),
	}
	if cfg.metricsEnabled {
		r.metrics = newMetrics()
	}
	return r
}

// Backend returns the name of the kernel facility in use: "epoll", "kqueue"
// or "poll".
func (r *Reactor) Backend() string {
	return r.drv.name()
}

// State returns the current lifecycle state.
func (r *Reactor) State() State {
	return r.state.Load()
}

// Set registers h, replacing any existing registration for it. The callback
// is invoked on the reactor goroutine with the readiness observed, per the
// given interest and flags. Readiness already reported for a replaced
// registration is not delivered.
//
// If the backend rejects the registration, the previous registration (if any)
// is left in place, and the error (an *OpError) is returned.
func (r *Reactor) Set(h Handle, interest Interest, flags Flags, cb IOCallback) error {
	switch {
	case !h.Valid():
		return ErrInvalidHandle
	case !interest.valid():
		return ErrInvalidInterest
	case flags&^flagsMask != 0:
		return ErrInvalidFlags
	case cb == nil:
		return ErrNilCallback
	}

	if err := r.set(h, interest, flags, cb); err != nil {
		return err
	}

	r.wakeup()
	return nil
}

func (r *Reactor) set(h Handle, interest Interest, flags Flags, cb IOCallback) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed() {
		return ErrClosed
	}

	prev, hadPrev := r.regs[h]

	r.gen++
	r.regs[h] = &registration{
		cb:       cb,
		gen:      r.gen,
		interest: interest,
		flags:    flags,
	}

	if err := r.drv.register(h, interest, flags); err != nil {
		if hadPrev {
			r.regs[h] = prev
		} else {
			delete(r.regs, h)
		}
		return err
	}

	return nil
}

// Del removes the registration for h, if any. Once Del returns, the callback
// for h will not be invoked, even if readiness for it was already reported.
// Removing an unregistered handle is not an error.
func (r *Reactor) Del(h Handle) error {
	if !h.Valid() {
		return ErrInvalidHandle
	}

	removed, err := r.del(h)
	if err != nil {
		return err
	}
	if removed {
		r.wakeup()
	}
	return nil
}

func (r *Reactor) del(h Handle) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed() {
		return false, ErrClosed
	}

	reg, ok := r.regs[h]
	if !ok {
		return false, nil
	}

	delete(r.regs, h)
	if err := r.drv.unregister(h); err != nil {
		r.regs[h] = reg
		return false, err
	}

	return true, nil
}

// SetTimer schedules t, which must have been armed, replacing any existing
// schedule for t. The callback runs on the reactor goroutine, before I/O
// callbacks of the same iteration.
func (r *Reactor) SetTimer(t *Timer, cb func()) error {
	if r.closed() {
		return ErrClosed
	}
	if err := r.timers.arm(t, cb); err != nil {
		return err
	}
	r.wakeup()
	return nil
}

// DelTimer unschedules t. Once DelTimer returns, the callback for t will not
// be invoked. Removing an unscheduled timer is not an error.
func (r *Reactor) DelTimer(t *Timer) error {
	if r.closed() {
		return ErrClosed
	}
	removed, err := r.timers.disarm(t)
	if err != nil {
		return err
	}
	if removed {
		// the wait may be bounded by its deadline
		r.wakeup()
	}
	return nil
}

// Stop causes the current (or next) Poll to return PollStopped, and Run to
// return nil. A Stop with nothing driving the reactor is observed by the next
// Poll or Run. It does not block.
func (r *Reactor) Stop() {
	r.stopRequested.Store(true)
	r.wakeup()
}

// Close releases the backend. If the reactor is being driven, it is stopped,
// and the driving goroutine completes the release before Run or Poll returns.
// Registrations are dropped, and handles are not closed.
func (r *Reactor) Close() error {
	for {
		if r.state.TryTransition(StateIdle, StateTerminating) {
			return r.release()
		}
		if r.state.TransitionAny(runningStates, StateTerminating) {
			// the driving goroutine may have released the backend already,
			// in which case the wake is refused
			r.counters.wakeups.Add(1)
			_ = r.drv.wake()
			return nil
		}
		if r.closed() {
			return ErrClosed
		}
	}
}

// Poll runs a single iteration: it waits for readiness, for up to timeout
// (forever if negative), or until the next timer is due, whichever is sooner.
// Due timers then run, in deadline order, followed by I/O callbacks, in the
// order the backend reported them.
//
// An error is returned only if the reactor could not be driven (e.g.
// [ErrRunning], [ErrClosed]), or the backend failed.
func (r *Reactor) Poll(timeout time.Duration) (PollStatus, error) {
	if err := r.acquire(); err != nil {
		return PollStopped, err
	}
	defer r.done()
	return r.poll(context.Background(), timeout)
}

// Run drives the reactor until Stop or Close is called, which returns nil,
// or ctx is cancelled, which returns ctx.Err(). A backend failure is returned
// as-is. Interrupted and timed out iterations continue the loop.
//
// The goroutine is locked to its OS thread while running.
func (r *Reactor) Run(ctx context.Context) error {
	if err := r.acquire(); err != nil {
		return err
	}
	defer r.done()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	r.log.running(r.drv.name())

	// wake the loop on cancellation
	ctxDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			r.counters.wakeups.Add(1)
			_ = r.drv.wake()
		case <-ctxDone:
		}
	}()
	defer close(ctxDone)

	for {
		status, err := r.poll(ctx, -1)
		if err != nil {
			r.log.stopped("error")
			return err
		}
		if status == PollStopped {
			if err := ctx.Err(); err != nil {
				r.log.stopped("context")
				return err
			}
			r.log.stopped("stop")
			return nil
		}
	}
}

// Stats returns a snapshot of activity counters, plus latency and rate
// metrics if enabled.
func (r *Reactor) Stats() Stats {
	r.mu.Lock()
	registrations := len(r.regs)
	r.mu.Unlock()

	stats := Stats{
		Backend:       r.drv.name(),
		Polls:         r.counters.polls.Load(),
		Events:        r.counters.events.Load(),
		StaleEvents:   r.counters.staleEvents.Load(),
		TimersFired:   r.counters.timersFired.Load(),
		Wakeups:       r.counters.wakeups.Load(),
		Panics:        r.counters.panics.Load(),
		Registrations: registrations,
		Timers:        r.timers.len(),
	}

	if r.metrics != nil {
		stats.WaitLatency = r.metrics.wait.Snapshot()
		stats.DispatchLatency = r.metrics.dispatch.Snapshot()
		stats.EventRate = r.metrics.rate.Rate()
	}

	return stats
}

// acquire claims the reactor for the calling goroutine.
func (r *Reactor) acquire() error {
	if r.isLoopThread() {
		return ErrReentrant
	}
	if !r.state.TryTransition(StateIdle, StateDispatching) {
		switch r.state.Load() {
		case StateTerminated, StateTerminating:
			return ErrClosed
		default:
			return ErrRunning
		}
	}
	r.loopGoroutineID.Store(getGoroutineID())
	return nil
}

// done releases the claim made by acquire, completing Close if it was called
// while running.
func (r *Reactor) done() {
	r.loopGoroutineID.Store(0)
	if r.state.TryTransition(StateDispatching, StateIdle) {
		return
	}
	if err := r.release(); err != nil {
		r.log.closeFailed(err)
	}
}

// release closes the backend. The state must be StateTerminating.
func (r *Reactor) release() error {
	r.mu.Lock()
	clear(r.regs)
	err := r.drv.close()
	r.state.Store(StateTerminated)
	r.mu.Unlock()
	return opError(r.drv.name(), "close", InvalidHandle, err)
}

func (r *Reactor) closed() bool {
	state := r.state.Load()
	return state == StateTerminating || state == StateTerminated
}

// poll implements a single iteration. The state must be StateDispatching.
func (r *Reactor) poll(ctx context.Context, timeout time.Duration) (PollStatus, error) {
	// the transition must precede checking for work, see wakeup
	if !r.state.TryTransition(StateDispatching, StateWaiting) {
		return PollStopped, nil
	}

	if r.stopRequested.Swap(false) || ctx.Err() != nil {
		r.state.TryTransition(StateWaiting, StateDispatching)
		return PollStopped, nil
	}

	now := time.Now()
	if d, ok := r.timers.nextDeadline(now); ok && (timeout < 0 || d < timeout) {
		timeout = d
	}

	res, err := r.drv.wait(timeout, r.events)
	if res.woke {
		r.wakePending.Store(false)
	}
	if r.metrics != nil {
		r.metrics.wait.Record(time.Since(now))
	}

	if !r.state.TryTransition(StateWaiting, StateDispatching) {
		// closed while waiting
		return PollStopped, nil
	}

	r.counters.polls.Add(1)

	if err != nil {
		r.log.waitFailed(r.drv.name(), err)
		return PollStopped, err
	}

	dispatchStart := time.Now()

	batch := r.snapshot(r.events[:res.n])

	dispatched := r.timers.fireDue(dispatchStart, r.runTimer)
	r.counters.timersFired.Add(uint64(dispatched))

	for i := range batch {
		if r.closed() {
			break
		}
		if r.dispatch(&batch[i]) {
			dispatched++
		}
		batch[i] = dispatchSlot{}
	}

	if r.metrics != nil {
		r.metrics.dispatch.Record(time.Since(dispatchStart))
	}

	switch {
	case r.stopRequested.Swap(false), ctx.Err() != nil, r.closed():
		return PollStopped, nil
	case dispatched != 0:
		return PollProgressed, nil
	case res.interrupted, res.woke:
		return PollInterrupted, nil
	default:
		return PollTimedOut, nil
	}
}

// snapshot captures the registration for each event, so that dispatch can
// detect removal or replacement by an earlier callback.
func (r *Reactor) snapshot(events []event) []dispatchSlot {
	batch := r.batch[:0]

	r.mu.Lock()
	for _, ev := range events {
		reg, ok := r.regs[ev.handle]
		if !ok {
			// removed after the backend reported it
			r.counters.staleEvents.Add(1)
			r.log.staleEvent(ev.handle, ev.kind)
			continue
		}
		batch = append(batch, dispatchSlot{
			reg:    reg,
			gen:    reg.gen,
			handle: ev.handle,
			kind:   ev.kind,
		})
	}
	r.mu.Unlock()

	r.batch = batch
	return batch
}

// dispatch invokes the callback for a batch entry, if its registration is
// unchanged, returning true if it was invoked.
func (r *Reactor) dispatch(slot *dispatchSlot) bool {
	cb := r.claim(slot)
	if cb == nil {
		r.counters.staleEvents.Add(1)
		r.log.staleEvent(slot.handle, slot.kind)
		return false
	}

	r.counters.events.Add(1)
	if r.metrics != nil {
		r.metrics.rate.Add(1)
	}

	r.runIO(slot.handle, cb, slot.kind)
	return true
}

// claim validates a batch entry, returning its callback. A once registration
// is removed before its callback is returned.
func (r *Reactor) claim(slot *dispatchSlot) IOCallback {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.regs[slot.handle]
	if !ok || reg != slot.reg || reg.gen != slot.gen {
		return nil
	}

	if reg.flags&FlagOnce != 0 {
		delete(r.regs, slot.handle)
		if err := r.drv.unregister(slot.handle); err != nil {
			r.log.onceRemoveFailed(slot.handle, err)
		}
	}

	return reg.cb
}

func (r *Reactor) runIO(h Handle, cb IOCallback, kind EventKind) {
	defer func() {
		if v := recover(); v != nil {
			r.counters.panics.Add(1)
			r.log.callbackPanic(h, v)
		}
	}()
	cb(kind)
}

func (r *Reactor) runTimer(cb func()) {
	defer func() {
		if v := recover(); v != nil {
			r.counters.panics.Add(1)
			r.log.callbackPanic(InvalidHandle, v)
		}
	}()
	cb()
}

// wakeup interrupts a wait in progress on another goroutine, so that it
// observes a mutation made by the caller. The mutation must happen before
// calling wakeup: the driving goroutine enters StateWaiting before checking
// for work, so either it observes the mutation, or wakeup observes it
// waiting. Signals are coalesced until the backend consumes one.
func (r *Reactor) wakeup() {
	if r.state.Load() != StateWaiting || r.isLoopThread() {
		return
	}
	if !r.wakePending.CompareAndSwap(false, true) {
		return
	}
	r.counters.wakeups.Add(1)
	if err := r.drv.wake(); err != nil {
		r.wakePending.Store(false)
	}
}

// isLoopThread checks if we're on the goroutine driving the reactor.
func (r *Reactor) isLoopThread() bool {
	loopID := r.loopGoroutineID.Load()
	if loopID == 0 {
		return false
	}
	return getGoroutineID() == loopID
}

// getGoroutineID parses the current goroutine's ID from its stack header.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
