//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

package reactor

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// pollDriver implements driver using poll(2).
//
// poll has no kernel-side registration, so the table lives here, guarded by
// mu, and is snapshot at the start of each wait. A mutation made while a wait
// is in progress is picked up by the next snapshot, which the reactor forces
// by waking the driver.
//
// Edge is accepted but ignored: poll is level-triggered only.
type pollDriver struct { // betteralign:ignore
	waker   *pipeWaker
	regs    map[Handle]Interest
	fds     []unix.PollFd
	handles []Handle
	mu      sync.Mutex
	// wakeMu is held for reading while signalling, and for writing by close
	wakeMu sync.RWMutex
	closed atomic.Bool
}

func newPollDriver(bufSize int) (*pollDriver, error) {
	waker, err := newPipeWaker()
	if err != nil {
		return nil, opError("poll", "create", InvalidHandle, err)
	}
	return &pollDriver{
		waker:   waker,
		regs:    make(map[Handle]Interest),
		fds:     make([]unix.PollFd, 0, bufSize+1),
		handles: make([]Handle, 0, bufSize+1),
	}, nil
}

func (d *pollDriver) name() string { return "poll" }

func (d *pollDriver) register(h Handle, interest Interest, _ Flags) error {
	if d.closed.Load() {
		return ErrClosed
	}
	d.mu.Lock()
	d.regs[h] = interest
	d.mu.Unlock()
	return nil
}

func (d *pollDriver) unregister(h Handle) error {
	if d.closed.Load() {
		return ErrClosed
	}
	d.mu.Lock()
	delete(d.regs, h)
	d.mu.Unlock()
	return nil
}

func (d *pollDriver) wait(timeout time.Duration, events []event) (waitResult, error) {
	var res waitResult

	if d.closed.Load() {
		return res, ErrClosed
	}

	fds, handles := d.snapshot()

	n, err := unix.Poll(fds, timeoutMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			res.interrupted = true
			return res, nil
		}
		return res, opError(d.name(), "wait", InvalidHandle, err)
	}
	if n == 0 {
		return res, nil
	}

	if fds[0].Revents != 0 {
		d.waker.consume()
		res.woke = true
	}

	for i := 1; i < len(fds) && res.n < len(events); i++ {
		if fds[i].Revents == 0 {
			continue
		}
		// the field width differs across platforms
		kind := pollToKind(pollInterest(uint32(uint16(fds[i].Events))), uint32(uint16(fds[i].Revents)))
		if kind == 0 {
			continue
		}
		events[res.n] = event{handle: handles[i], kind: kind}
		res.n++
	}

	return res, nil
}

// snapshot rebuilds the pollfd table, with the wake pipe at index 0.
func (d *pollDriver) snapshot() ([]unix.PollFd, []Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fds := append(d.fds[:0], unix.PollFd{Fd: int32(d.waker.r), Events: unix.POLLIN})
	handles := append(d.handles[:0], d.waker.handle())

	for h, interest := range d.regs {
		pfd := unix.PollFd{Fd: int32(h)}
		if interest&Read != 0 {
			pfd.Events |= unix.POLLIN
		}
		if interest&Write != 0 {
			pfd.Events |= unix.POLLOUT
		}
		fds = append(fds, pfd)
		handles = append(handles, h)
	}

	d.fds, d.handles = fds, handles
	return fds, handles
}

func (d *pollDriver) wake() error {
	d.wakeMu.RLock()
	defer d.wakeMu.RUnlock()
	if d.closed.Load() {
		return ErrClosed
	}
	return opError(d.name(), "wake", InvalidHandle, d.waker.signal())
}

func (d *pollDriver) close() error {
	d.wakeMu.Lock()
	defer d.wakeMu.Unlock()
	if d.closed.Swap(true) {
		return nil
	}
	return d.waker.close()
}

// pollInterest recovers the portable interest from requested poll events.
func pollInterest(events uint32) Interest {
	var interest Interest
	if events&unix.POLLIN != 0 {
		interest |= Read
	}
	if events&unix.POLLOUT != 0 {
		interest |= Write
	}
	return interest
}

// pollToKind converts returned poll events to a portable EventKind.
func pollToKind(interest Interest, revents uint32) EventKind {
	return kindFor(
		interest,
		revents&unix.POLLIN != 0,
		revents&unix.POLLOUT != 0,
		revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0,
	)
}
