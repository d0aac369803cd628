//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

package reactor

import (
	"syscall"
)

// HandleOf returns the descriptor backing conn, e.g. a *net.TCPConn or an
// *os.File. The descriptor remains owned by conn, and is only valid until conn
// is closed.
//
// Most net.Conn implementations put the descriptor in non-blocking mode, which
// is what reactor callbacks expect.
func HandleOf(conn syscall.Conn) (Handle, error) {
	if conn == nil {
		return InvalidHandle, ErrInvalidHandle
	}

	raw, err := conn.SyscallConn()
	if err != nil {
		return InvalidHandle, err
	}

	h := InvalidHandle
	if err := raw.Control(func(fd uintptr) {
		h = Handle(fd)
	}); err != nil {
		return InvalidHandle, err
	}

	return h, nil
}
