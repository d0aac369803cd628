//go:build darwin || freebsd

package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// kqueueFilters models the knotes for a single handle, keyed by filter, with
// the value reporting EV_CLEAR. Like the kernel, EV_ADD on an existing knote
// keeps its trigger mode.
type kqueueFilters struct {
	knotes map[int]bool
	fail   func(kev *unix.Kevent_t) bool
}

func (x *kqueueFilters) ctl(_ int, changes []unix.Kevent_t) error {
	for i := range changes {
		kev := &changes[i]
		if x.fail != nil && x.fail(kev) {
			return unix.EIO
		}
		filter := int(kev.Filter)
		switch {
		case kev.Flags&unix.EV_DELETE != 0:
			if _, ok := x.knotes[filter]; !ok {
				return unix.ENOENT
			}
			delete(x.knotes, filter)
		case kev.Flags&unix.EV_ADD != 0:
			if _, ok := x.knotes[filter]; !ok {
				x.knotes[filter] = kev.Flags&unix.EV_CLEAR != 0
			}
		}
	}
	return nil
}

// expected returns the knotes reg should map to.
func (x *kqueueFilters) expected(reg kqueueReg) map[int]bool {
	knotes := map[int]bool{unix.EVFILT_READ: reg.readClear()}
	if reg.interest&Write != 0 {
		knotes[unix.EVFILT_WRITE] = reg.writeClear()
	}
	return knotes
}

func failOn(filter int, flag uint16, clear bool) func(kev *unix.Kevent_t) bool {
	return func(kev *unix.Kevent_t) bool {
		return int(kev.Filter) == filter &&
			kev.Flags&flag != 0 &&
			(!clear || kev.Flags&unix.EV_CLEAR != 0)
	}
}

func TestKqueueDriver_RegisterFailureRestoresFilters(t *testing.T) {
	const h Handle = 100

	for _, tc := range [...]struct {
		name     string
		from, to kqueueReg
		fail     func(kev *unix.Kevent_t) bool
	}{
		{
			name: `narrowing write delete fails`,
			from: kqueueReg{interest: ReadWrite},
			to:   kqueueReg{interest: Read, flags: FlagEdge},
			fail: failOn(unix.EVFILT_WRITE, unix.EV_DELETE, false),
		},
		{
			name: `write add fails after read changed`,
			from: kqueueReg{interest: ReadWrite},
			to:   kqueueReg{interest: ReadWrite, flags: FlagEdge},
			fail: failOn(unix.EVFILT_WRITE, unix.EV_ADD, true),
		},
		{
			name: `read add fails when widening`,
			from: kqueueReg{interest: Read},
			to:   kqueueReg{interest: ReadWrite, flags: FlagEdge},
			fail: failOn(unix.EVFILT_READ, unix.EV_ADD, true),
		},
		{
			name: `write only to read only`,
			from: kqueueReg{interest: Write},
			to:   kqueueReg{interest: Read},
			fail: failOn(unix.EVFILT_READ, unix.EV_DELETE, false),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d, err := newKqueueDriver(4)
			require.NoError(t, err)
			defer d.close()

			filters := &kqueueFilters{knotes: make(map[int]bool)}
			d.ctl = filters.ctl

			require.NoError(t, d.register(h, tc.from.interest, tc.from.flags))
			require.Equal(t, filters.expected(tc.from), filters.knotes)

			filters.fail = tc.fail
			err = d.register(h, tc.to.interest, tc.to.flags)
			require.ErrorIs(t, err, unix.EIO)
			assert.Equal(t, tc.from, d.regs[h], `table unchanged`)
			assert.Equal(t, filters.expected(tc.from), filters.knotes, `kernel matches the table`)

			filters.fail = nil
			require.NoError(t, d.register(h, tc.to.interest, tc.to.flags))
			assert.Equal(t, tc.to, d.regs[h])
			assert.Equal(t, filters.expected(tc.to), filters.knotes)
		})
	}
}

func TestKqueueDriver_RegisterFailureNewHandle(t *testing.T) {
	const h Handle = 100

	d, err := newKqueueDriver(4)
	require.NoError(t, err)
	defer d.close()

	filters := &kqueueFilters{
		knotes: make(map[int]bool),
		fail:   failOn(unix.EVFILT_WRITE, unix.EV_ADD, false),
	}
	d.ctl = filters.ctl

	require.ErrorIs(t, d.register(h, ReadWrite, 0), unix.EIO)
	assert.Empty(t, filters.knotes)
	assert.NotContains(t, d.regs, h)
}
