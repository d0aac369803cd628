package reactor

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrInvalidHandle is returned when registering or removing a negative handle.
	ErrInvalidHandle = errors.New("reactor: invalid handle")

	// ErrInvalidInterest is returned when an Interest is zero or has unknown bits.
	ErrInvalidInterest = errors.New("reactor: invalid interest")

	// ErrInvalidFlags is returned when Flags has unknown bits.
	ErrInvalidFlags = errors.New("reactor: invalid flags")

	// ErrNilCallback is returned when a nil callback is registered.
	ErrNilCallback = errors.New("reactor: nil callback")

	// ErrNilTimer is returned when a nil *Timer is registered or removed.
	ErrNilTimer = errors.New("reactor: nil timer")

	// ErrTimerNotArmed is returned by SetTimer for a timer that was never armed.
	ErrTimerNotArmed = errors.New("reactor: timer not armed")

	// ErrInvalidPeriod is returned by SetTimer for a repeating timer with a
	// non-positive period.
	ErrInvalidPeriod = errors.New("reactor: invalid timer period")

	// ErrClosed is returned by operations on a closed reactor.
	ErrClosed = errors.New("reactor: closed")

	// ErrRunning is returned when Run or Poll is called while another
	// goroutine is already driving the reactor.
	ErrRunning = errors.New("reactor: already running")

	// ErrReentrant is returned when Run or Poll is called from a callback.
	ErrReentrant = errors.New("reactor: cannot run from within a callback")

	// ErrUnsupportedPlatform is returned by New where no backend exists.
	ErrUnsupportedPlatform = errors.New("reactor: unsupported platform")
)

// OpError describes a failed kernel operation performed by a backend.
type OpError struct {
	// Op is one of "create", "register", "unregister", "wait" or "wake".
	Op string
	// Backend names the backend, e.g. "epoll".
	Backend string
	// Err is the underlying error, typically a syscall.Errno.
	Err error
	// Handle is the handle the operation targeted, or InvalidHandle.
	Handle Handle
}

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.Handle.Valid() {
		return fmt.Sprintf("reactor: %s %s handle %d: %v", e.Backend, e.Op, e.Handle, e.Err)
	}
	return fmt.Sprintf("reactor: %s %s: %v", e.Backend, e.Op, e.Err)
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *OpError) Unwrap() error {
	return e.Err
}

func opError(backend, op string, h Handle, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Backend: backend, Handle: h, Err: err}
}
