package reactor

import (
	"time"
)

// defaultEventBufferSize is the number of readiness records fetched per wait.
const defaultEventBufferSize = 256

// event is a normalised readiness record, as returned by a driver.
type event struct {
	handle Handle
	kind   EventKind
}

// waitResult describes why driver.wait returned, other than by error.
type waitResult struct {
	// n is the number of events written to the caller's buffer
	n int
	// woke is set if the wake channel was consumed during this wait
	woke bool
	// interrupted is set if the wait was interrupted by a signal (EINTR)
	interrupted bool
}

// driver is implemented by each kernel backend.
//
// register and unregister may be called from any goroutine, concurrently with
// wait. wait is only ever called by the goroutine driving the reactor. wake
// must never block.
type driver interface {
	// name identifies the backend, e.g. "epoll".
	name() string

	// register arms interest for h, adding it if unknown, otherwise
	// modifying the existing registration in place.
	register(h Handle, interest Interest, flags Flags) error

	// unregister removes all interest for h. Removing a handle the kernel
	// no longer knows about is not an error.
	unregister(h Handle) error

	// wait blocks for up to timeout (forever if negative), writing at most
	// len(events) records. Each handle appears at most once per call.
	wait(timeout time.Duration, events []event) (waitResult, error)

	// wake causes a concurrent (or the next) wait to return promptly.
	wake() error

	// close releases the kernel objects.
	close() error
}

// timeoutMillis converts a wait timeout to the millisecond form used by
// epoll_wait and poll. Negative means forever. Positive sub-millisecond
// remainders round up, so that a timer is due by the time the wait returns.
func timeoutMillis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	ms := timeout / time.Millisecond
	if timeout%time.Millisecond != 0 {
		ms++
	}
	const maxMillis = 1<<31 - 1
	if ms > maxMillis {
		return maxMillis
	}
	return int(ms)
}

// kindFor normalises raw readiness bits into the portable EventKind, for a
// registration with the given interest. Closed is always reported, and is
// paired with Readable when read interest is registered, so that callers
// attempt to drain the stream.
func kindFor(interest Interest, readable, writable, closed bool) EventKind {
	var kind EventKind
	if readable && interest&Read != 0 {
		kind |= Readable
	}
	if writable && interest&Write != 0 {
		kind |= Writable
	}
	if closed {
		kind |= Closed
		if interest&Read != 0 {
			kind |= Readable
		}
	}
	return kind
}
