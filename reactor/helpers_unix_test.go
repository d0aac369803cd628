//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

package reactor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// testBackend is a driver implementation available on this platform.
type testBackend struct {
	newDriver func(bufSize int) (driver, error)
	name      string
}

// forEachBackend runs fn as a subtest against each available backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, b testBackend)) {
	t.Helper()
	for _, b := range testBackends() {
		t.Run(b.name, func(t *testing.T) {
			fn(t, b)
		})
	}
}

// newTestReactor builds a reactor on the given backend, closed on cleanup.
func newTestReactor(t *testing.T, b testBackend, opts ...Option) *Reactor {
	t.Helper()
	r, err := newReactorWith(b, opts...)
	if err != nil {
		t.Fatalf("newReactorWith(%s) failed: %v", b.name, err)
	}
	t.Cleanup(func() {
		if err := r.Close(); err != nil && !errors.Is(err, ErrClosed) {
			t.Errorf("Close() failed: %v", err)
		}
	})
	return r
}

func newReactorWith(b testBackend, opts ...Option) (*Reactor, error) {
	cfg, err := resolveReactorOptions(opts)
	if err != nil {
		return nil, err
	}
	limiter, err := newLogLimiter(cfg.logRateLimits)
	if err != nil {
		return nil, err
	}
	drv, err := b.newDriver(cfg.eventBufferSize)
	if err != nil {
		return nil, err
	}
	return newReactor(cfg, limiter, drv), nil
}

// newTestDriver builds a driver, closed on cleanup.
func newTestDriver(t *testing.T, b testBackend, bufSize int) driver {
	t.Helper()
	d, err := b.newDriver(bufSize)
	if err != nil {
		t.Fatalf("newDriver(%s) failed: %v", b.name, err)
	}
	t.Cleanup(func() { _ = d.close() })
	return d
}

// sockPair is a connected, non-blocking unix stream socket pair.
type sockPair struct {
	t      *testing.T
	fds    [2]int
	closed [2]bool
}

func newSockPair(t *testing.T) *sockPair {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair failed: %v", err)
	}
	p := &sockPair{t: t, fds: fds}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			p.closeAll()
			t.Fatalf("SetNonblock failed: %v", err)
		}
	}
	t.Cleanup(p.closeAll)
	return p
}

// local is the end registered with the reactor, peer is the other end.
func (p *sockPair) local() Handle { return Handle(p.fds[0]) }
func (p *sockPair) peer() Handle  { return Handle(p.fds[1]) }

// send writes to the peer, making local readable.
func (p *sockPair) send(data string) {
	p.t.Helper()
	if _, err := unix.Write(p.fds[1], []byte(data)); err != nil {
		p.t.Fatalf("Write failed: %v", err)
	}
}

// drain reads everything buffered on local.
func (p *sockPair) drain() int {
	var (
		buf   [512]byte
		total int
	)
	for {
		n, err := unix.Read(p.fds[0], buf[:])
		if n > 0 {
			total += n
		}
		if err != nil || n <= 0 {
			return total
		}
	}
}

func (p *sockPair) closeLocal() { p.close(0) }
func (p *sockPair) closePeer()  { p.close(1) }

func (p *sockPair) close(i int) {
	if !p.closed[i] {
		p.closed[i] = true
		_ = unix.Close(p.fds[i])
	}
}

func (p *sockPair) closeAll() {
	p.close(0)
	p.close(1)
}

// faultyDriver wraps a driver, failing operations on demand.
type faultyDriver struct {
	driver
	registerErr   error
	unregisterErr error
	mu            sync.Mutex
}

func (d *faultyDriver) failRegister(err error) {
	d.mu.Lock()
	d.registerErr = err
	d.mu.Unlock()
}

func (d *faultyDriver) failUnregister(err error) {
	d.mu.Lock()
	d.unregisterErr = err
	d.mu.Unlock()
}

func (d *faultyDriver) register(h Handle, interest Interest, flags Flags) error {
	d.mu.Lock()
	err := d.registerErr
	d.mu.Unlock()
	if err != nil {
		return err
	}
	return d.driver.register(h, interest, flags)
}

func (d *faultyDriver) unregister(h Handle) error {
	d.mu.Lock()
	err := d.unregisterErr
	d.mu.Unlock()
	if err != nil {
		return err
	}
	return d.driver.unregister(h)
}

// faulty wraps the backend's driver, exposing it via the returned pointer.
func (b testBackend) faulty() (testBackend, *faultyDriver) {
	wrapper := &faultyDriver{}
	return testBackend{
		name: b.name,
		newDriver: func(bufSize int) (driver, error) {
			d, err := b.newDriver(bufSize)
			if err != nil {
				return nil, err
			}
			wrapper.driver = d
			return wrapper, nil
		},
	}, wrapper
}

// waitFor polls cond until it is true or timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %v", timeout)
		}
		time.Sleep(time.Millisecond)
	}
}
