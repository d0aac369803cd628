// Package reactor provides a single-threaded I/O event reactor, multiplexing
// readiness notification for OS handles (sockets, pipes, eventfds) together
// with software timers.
//
// # Backends
//
// Exactly one kernel facility is selected at build time:
//   - Linux: epoll
//   - macOS, FreeBSD: kqueue
//   - AIX, DragonFly, NetBSD, OpenBSD, Solaris: poll(2)
//
// The poll backend may be forced on any of the above with the reactor_poll
// build tag. Backend differences (how peer close is reported, whether edge
// triggering exists) are normalised inside each backend, so callers observe
// the same [EventKind] values everywhere. The one documented relaxation is
// that the poll backend is always level-triggered: [FlagEdge] is accepted but
// readiness may be reported more than once for the same state. Callers must
// tolerate spurious notifications on every backend.
//
// # Usage
//
//	r, err := reactor.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	h, err := reactor.HandleOf(conn)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := r.Set(h, reactor.Read, 0, func(ev reactor.EventKind) {
//	    // read until EAGAIN, check ev&reactor.Closed
//	}); err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := r.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// One goroutine drives [Reactor.Run] or [Reactor.Poll], and every callback runs
// on it. [Reactor.Set], [Reactor.Del], [Reactor.SetTimer], [Reactor.DelTimer]
// and [Reactor.Stop] may be called from any goroutine, including from inside a
// callback. Mutations made from other goroutines while the reactor is blocked
// in the kernel wake it, so they take effect before the next wait.
//
// Removing a handle with [Reactor.Del] guarantees its callback will not be
// invoked afterwards, even if readiness for it is already part of the batch
// currently being dispatched.
package reactor
