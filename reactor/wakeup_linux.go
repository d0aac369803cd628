//go:build linux

package reactor

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// eventfdWaker is a wake channel backed by a single eventfd, which serves as
// both the read and write end.
type eventfdWaker struct {
	fd  int
	buf [8]byte
}

func newEventfdWaker() (*eventfdWaker, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	return &eventfdWaker{fd: fd}, nil
}

// signal increments the counter. EAGAIN means the counter is saturated, which
// still leaves it readable.
func (w *eventfdWaker) signal() error {
	var one uint64 = 1
	buf := (*[8]byte)(unsafe.Pointer(&one))[:]
	if _, err := unix.Write(w.fd, buf); err != nil && err != unix.EAGAIN {
		return err
	}
	return nil
}

// consume resets the counter to zero.
func (w *eventfdWaker) consume() {
	for {
		if _, err := unix.Read(w.fd, w.buf[:]); err != unix.EINTR {
			return
		}
	}
}

func (w *eventfdWaker) close() error {
	return unix.Close(w.fd)
}
