//go:build linux

package reactor

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// epollDriver implements driver using epoll(7).
//
// epoll_ctl is safe to call concurrently with epoll_wait, so no locking is
// needed around registration. The portable interest is stored in the spare
// word of each epoll_event, to normalise results without a lookup.
type epollDriver struct { // betteralign:ignore
	waker    *eventfdWaker
	eventBuf []unix.EpollEvent
	epfd     int
	// wakeMu is held for reading while signalling, and for writing by close,
	// so a wake never lands on a released (and possibly reused) descriptor
	wakeMu sync.RWMutex
	closed atomic.Bool
}

func newEpollDriver(bufSize int) (_ *epollDriver, err error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, opError("epoll", "create", InvalidHandle, err)
	}
	defer func() {
		if err != nil {
			_ = unix.Close(epfd)
		}
	}()

	waker, err := newEventfdWaker()
	if err != nil {
		return nil, opError("epoll", "create", InvalidHandle, err)
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(waker.fd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, waker.fd, &ev); err != nil {
		_ = waker.close()
		return nil, opError("epoll", "create", InvalidHandle, err)
	}

	return &epollDriver{
		waker:    waker,
		eventBuf: make([]unix.EpollEvent, bufSize),
		epfd:     epfd,
	}, nil
}

func (d *epollDriver) name() string { return "epoll" }

func (d *epollDriver) register(h Handle, interest Interest, flags Flags) error {
	if d.closed.Load() {
		return ErrClosed
	}

	ev := unix.EpollEvent{
		Events: interestToEpoll(interest, flags),
		Fd:     int32(h),
		Pad:    int32(interest),
	}

	err := unix.EpollCtl(d.epfd, unix.EPOLL_CTL_ADD, int(h), &ev)
	if err == unix.EEXIST {
		err = unix.EpollCtl(d.epfd, unix.EPOLL_CTL_MOD, int(h), &ev)
	}
	return opError(d.name(), "register", h, err)
}

func (d *epollDriver) unregister(h Handle) error {
	if d.closed.Load() {
		return ErrClosed
	}

	err := unix.EpollCtl(d.epfd, unix.EPOLL_CTL_DEL, int(h), nil)
	switch err {
	case nil, unix.ENOENT, unix.EBADF:
		// the kernel drops closed descriptors from the interest list
		return nil
	default:
		return opError(d.name(), "unregister", h, err)
	}
}

func (d *epollDriver) wait(timeout time.Duration, events []event) (waitResult, error) {
	var res waitResult

	if d.closed.Load() {
		return res, ErrClosed
	}

	// the kernel only dequeues what fits, so nothing is lost by limiting
	buf := d.eventBuf
	if len(events) < len(buf) {
		buf = buf[:len(events)]
	}

	n, err := unix.EpollWait(d.epfd, buf, timeoutMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			res.interrupted = true
			return res, nil
		}
		return res, opError(d.name(), "wait", InvalidHandle, err)
	}

	for i := 0; i < n; i++ {
		raw := &buf[i]
		if int(raw.Fd) == d.waker.fd {
			d.waker.consume()
			res.woke = true
			continue
		}
		kind := epollToKind(Interest(raw.Pad), raw.Events)
		if kind == 0 {
			continue
		}
		events[res.n] = event{handle: Handle(raw.Fd), kind: kind}
		res.n++
	}

	return res, nil
}

func (d *epollDriver) wake() error {
	d.wakeMu.RLock()
	defer d.wakeMu.RUnlock()
	if d.closed.Load() {
		return ErrClosed
	}
	return opError(d.name(), "wake", InvalidHandle, d.waker.signal())
}

func (d *epollDriver) close() error {
	d.wakeMu.Lock()
	defer d.wakeMu.Unlock()
	if d.closed.Swap(true) {
		return nil
	}
	err := unix.Close(d.epfd)
	if err2 := d.waker.close(); err == nil {
		err = err2
	}
	return err
}

// interestToEpoll converts a portable registration to epoll event flags.
// EPOLLHUP and EPOLLERR are always reported by the kernel.
func interestToEpoll(interest Interest, flags Flags) uint32 {
	var events uint32
	if interest&Read != 0 {
		events |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if interest&Write != 0 {
		events |= unix.EPOLLOUT
	}
	if flags&FlagEdge != 0 {
		events |= unix.EPOLLET
	}
	if flags&FlagOnce != 0 {
		events |= unix.EPOLLONESHOT
	}
	return events
}

// epollToKind converts epoll event flags to a portable EventKind.
func epollToKind(interest Interest, events uint32) EventKind {
	return kindFor(
		interest,
		events&unix.EPOLLIN != 0,
		events&unix.EPOLLOUT != 0,
		events&(unix.EPOLLHUP|unix.EPOLLERR|unix.EPOLLRDHUP) != 0,
	)
}
