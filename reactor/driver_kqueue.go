//go:build darwin || freebsd

package reactor

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// kqueueWakeIdent is the EVFILT_USER identifier used as the wake channel.
// Identifiers are scoped per filter, so it can't collide with a descriptor.
const kqueueWakeIdent = 0

// kqueueReg is the driver's view of a registration, needed because kqueue
// models read and write interest as independent filters.
type kqueueReg struct {
	interest Interest
	flags    Flags
}

// readClear reports whether the read filter uses EV_CLEAR. Write-only
// registrations still arm EVFILT_READ, as it is the only way to observe
// EV_EOF, but edge-triggered so that unread data can't spin the loop.
func (x kqueueReg) readClear() bool {
	return x.flags&FlagEdge != 0 || x.interest&Read == 0
}

func (x kqueueReg) writeClear() bool {
	return x.flags&FlagEdge != 0
}

// kqueueDriver implements driver using kqueue(2), with an EVFILT_USER event
// as the wake channel.
type kqueueDriver struct { // betteralign:ignore
	regs     map[Handle]kqueueReg
	merge    map[Handle]int
	eventBuf []unix.Kevent_t
	// ctl applies changes to the queue, see keventCtl
	ctl func(kq int, changes []unix.Kevent_t) error
	mu  sync.Mutex
	kq  int
	// wakeMu is held for reading while signalling, and for writing by close
	wakeMu sync.RWMutex
	closed atomic.Bool
}

func newKqueueDriver(bufSize int) (*kqueueDriver, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, opError("kqueue", "create", InvalidHandle, err)
	}
	unix.CloseOnExec(kq)

	d := &kqueueDriver{
		regs:     make(map[Handle]kqueueReg),
		merge:    make(map[Handle]int),
		eventBuf: make([]unix.Kevent_t, bufSize),
		ctl:      keventCtl,
		kq:       kq,
	}

	if err := d.change(kqueueWakeIdent, unix.EVFILT_USER, unix.EV_ADD|unix.EV_CLEAR, 0); err != nil {
		_ = unix.Close(kq)
		return nil, opError("kqueue", "create", InvalidHandle, err)
	}

	return d, nil
}

func (d *kqueueDriver) name() string { return "kqueue" }

func (d *kqueueDriver) register(h Handle, interest Interest, flags Flags) error {
	if d.closed.Load() {
		return ErrClosed
	}

	// hold the lock across kevent, to stay consistent with concurrent calls
	d.mu.Lock()
	defer d.mu.Unlock()

	old, known := d.regs[h]
	reg := kqueueReg{interest: interest, flags: flags}

	if err := d.apply(h, old, known, reg); err != nil {
		d.restore(h, old, known)
		return opError(d.name(), "register", h, err)
	}

	d.regs[h] = reg
	return nil
}

// apply moves the filters for h from old (if known) to reg. Narrowing is
// applied first, so a failure there leaves the read filter untouched.
func (d *kqueueDriver) apply(h Handle, old kqueueReg, known bool, reg kqueueReg) error {
	if known && old.interest&Write != 0 &&
		(reg.interest&Write == 0 || old.writeClear() != reg.writeClear()) {
		if err := d.remove(h, unix.EVFILT_WRITE); err != nil {
			return err
		}
	}

	// EV_ADD on an existing knote won't change its trigger mode
	if known && old.readClear() != reg.readClear() {
		if err := d.remove(h, unix.EVFILT_READ); err != nil {
			return err
		}
	}
	if err := d.change(h, unix.EVFILT_READ, readFlags(reg), 0); err != nil {
		return err
	}

	if reg.interest&Write != 0 {
		return d.change(h, unix.EVFILT_WRITE, writeFlags(reg), 0)
	}
	return nil
}

// restore puts back the filters for old after a failed apply, or removes
// everything if h was not registered. Failures are ignored, as the original
// error is what gets reported.
func (d *kqueueDriver) restore(h Handle, old kqueueReg, known bool) {
	_ = d.remove(h, unix.EVFILT_WRITE)
	_ = d.remove(h, unix.EVFILT_READ)
	if !known {
		return
	}
	_ = d.change(h, unix.EVFILT_READ, readFlags(old), 0)
	if old.interest&Write != 0 {
		_ = d.change(h, unix.EVFILT_WRITE, writeFlags(old), 0)
	}
}

func (d *kqueueDriver) unregister(h Handle) error {
	if d.closed.Load() {
		return ErrClosed
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	reg, ok := d.regs[h]
	if !ok {
		return nil
	}

	if err := d.remove(h, unix.EVFILT_READ); err != nil {
		return opError(d.name(), "unregister", h, err)
	}
	if reg.interest&Write != 0 {
		if err := d.remove(h, unix.EVFILT_WRITE); err != nil {
			return opError(d.name(), "unregister", h, err)
		}
	}

	delete(d.regs, h)
	return nil
}

func (d *kqueueDriver) wait(timeout time.Duration, events []event) (waitResult, error) {
	var res waitResult

	if d.closed.Load() {
		return res, ErrClosed
	}

	var ts *unix.Timespec
	if timeout >= 0 {
		v := unix.NsecToTimespec(int64(timeout))
		ts = &v
	}

	// the kernel only dequeues what fits, so nothing is lost by limiting
	buf := d.eventBuf
	if len(events) < len(buf) {
		buf = buf[:len(events)]
	}

	n, err := unix.Kevent(d.kq, nil, buf, ts)
	if err != nil {
		if err == unix.EINTR {
			res.interrupted = true
			return res, nil
		}
		return res, opError(d.name(), "wait", InvalidHandle, err)
	}

	clear(d.merge)

	d.mu.Lock()
	defer d.mu.Unlock()

	for i := 0; i < n; i++ {
		kev := &buf[i]

		if kev.Filter == unix.EVFILT_USER {
			// EV_CLEAR resets the trigger on retrieval
			res.woke = true
			continue
		}

		h := Handle(kev.Ident)
		reg, ok := d.regs[h]
		if !ok {
			continue
		}

		kind := keventToKind(reg.interest, kev)
		if kind == 0 {
			continue
		}

		// read and write filters arrive as separate records
		if idx, ok := d.merge[h]; ok {
			events[idx].kind |= kind
			continue
		}
		d.merge[h] = res.n
		events[res.n] = event{handle: h, kind: kind}
		res.n++
	}

	return res, nil
}

func (d *kqueueDriver) wake() error {
	d.wakeMu.RLock()
	defer d.wakeMu.RUnlock()
	if d.closed.Load() {
		return ErrClosed
	}
	return opError(d.name(), "wake", InvalidHandle, d.change(kqueueWakeIdent, unix.EVFILT_USER, 0, unix.NOTE_TRIGGER))
}

func (d *kqueueDriver) close() error {
	d.wakeMu.Lock()
	defer d.wakeMu.Unlock()
	if d.closed.Swap(true) {
		return nil
	}
	return unix.Close(d.kq)
}

// change applies a single kevent change.
func (d *kqueueDriver) change(h Handle, filter, flags int, fflags uint32) error {
	var changes [1]unix.Kevent_t
	unix.SetKevent(&changes[0], int(h), filter, flags)
	changes[0].Fflags = fflags
	return d.ctl(d.kq, changes[:])
}

// keventCtl submits changes without receiving events.
func keventCtl(kq int, changes []unix.Kevent_t) error {
	for {
		_, err := unix.Kevent(kq, changes, nil, nil)
		if err != unix.EINTR {
			return err
		}
	}
}

// remove deletes a filter, treating one the kernel already dropped (e.g. the
// descriptor was closed) as success.
func (d *kqueueDriver) remove(h Handle, filter int) error {
	switch err := d.change(h, filter, unix.EV_DELETE, 0); err {
	case nil, unix.ENOENT, unix.EBADF:
		return nil
	default:
		return err
	}
}

func readFlags(reg kqueueReg) int {
	flags := unix.EV_ADD | unix.EV_ENABLE
	if reg.readClear() {
		flags |= unix.EV_CLEAR
	}
	return flags
}

func writeFlags(reg kqueueReg) int {
	flags := unix.EV_ADD | unix.EV_ENABLE
	if reg.writeClear() {
		flags |= unix.EV_CLEAR
	}
	return flags
}

// keventToKind converts a kqueue record to a portable EventKind.
func keventToKind(interest Interest, kev *unix.Kevent_t) EventKind {
	closed := kev.Flags&(unix.EV_EOF|unix.EV_ERROR) != 0
	switch kev.Filter {
	case unix.EVFILT_READ:
		return kindFor(interest, true, false, closed)
	case unix.EVFILT_WRITE:
		return kindFor(interest, false, true, closed)
	default:
		return 0
	}
}
