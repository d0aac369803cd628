//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

package reactor

import (
	"golang.org/x/sys/unix"
)

// pipeWaker is a self-pipe wake channel. Both ends are non-blocking, so a
// full pipe never blocks the signalling goroutine (it is readable regardless).
type pipeWaker struct {
	r, w int
	buf  [64]byte
}

func newPipeWaker() (*pipeWaker, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, err
	}

	cleanup := func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	}

	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])

	if err := unix.SetNonblock(fds[0], true); err != nil {
		cleanup()
		return nil, err
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		cleanup()
		return nil, err
	}

	return &pipeWaker{r: fds[0], w: fds[1]}, nil
}

func (w *pipeWaker) handle() Handle { return Handle(w.r) }

func (w *pipeWaker) signal() error {
	for {
		_, err := unix.Write(w.w, []byte{1})
		switch err {
		case nil, unix.EAGAIN:
			return nil
		case unix.EINTR:
			continue
		default:
			return err
		}
	}
}

// consume drains everything written so far.
func (w *pipeWaker) consume() {
	for {
		n, err := unix.Read(w.r, w.buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil || n < len(w.buf) {
			return
		}
	}
}

func (w *pipeWaker) close() error {
	err := unix.Close(w.r)
	if err2 := unix.Close(w.w); err == nil {
		err = err2
	}
	return err
}
