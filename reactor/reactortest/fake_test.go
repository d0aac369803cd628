package reactortest

import (
	"errors"
	"testing"
	"time"

	"github.com/joeycumines/go-reactor/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_TriggerMasksInterest(t *testing.T) {
	f := New()

	var got []reactor.EventKind
	require.NoError(t, f.Set(3, reactor.Read, 0, func(ev reactor.EventKind) { got = append(got, ev) }))

	assert.False(t, f.Trigger(3, reactor.Writable), "no write interest")
	assert.True(t, f.Trigger(3, reactor.Readable|reactor.Writable))
	assert.True(t, f.Trigger(3, reactor.Closed))
	assert.False(t, f.Trigger(4, reactor.Readable), "not registered")

	assert.Equal(t, []reactor.EventKind{reactor.Readable, reactor.Readable | reactor.Closed}, got)
}

func TestFake_Once(t *testing.T) {
	f := New()

	var calls int
	require.NoError(t, f.Set(1, reactor.Write, reactor.FlagOnce, func(reactor.EventKind) {
		calls++
		_, _, ok := f.Registered(1)
		assert.False(t, ok, "removed before the callback")
	}))

	assert.True(t, f.Trigger(1, reactor.Writable))
	assert.False(t, f.Trigger(1, reactor.Writable))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, f.Len())
}

func TestFake_Validation(t *testing.T) {
	f := New()
	cb := func(reactor.EventKind) {}

	assert.ErrorIs(t, f.Set(reactor.InvalidHandle, reactor.Read, 0, cb), reactor.ErrInvalidHandle)
	assert.ErrorIs(t, f.Set(1, 0, 0, cb), reactor.ErrInvalidInterest)
	assert.ErrorIs(t, f.Set(1, reactor.Read, 0x10, cb), reactor.ErrInvalidFlags)
	assert.ErrorIs(t, f.Set(1, reactor.Read, 0, nil), reactor.ErrNilCallback)
	assert.ErrorIs(t, f.Del(reactor.InvalidHandle), reactor.ErrInvalidHandle)
	assert.ErrorIs(t, f.SetTimer(nil, func() {}), reactor.ErrNilTimer)
	assert.ErrorIs(t, f.SetTimer(new(reactor.Timer), func() {}), reactor.ErrTimerNotArmed)
	assert.ErrorIs(t, f.DelTimer(nil), reactor.ErrNilTimer)

	var bad reactor.Timer
	bad.ArmInterval(0)
	assert.ErrorIs(t, f.SetTimer(&bad, func() {}), reactor.ErrInvalidPeriod)
}

func TestFake_FailNextSet(t *testing.T) {
	f := New()
	boom := errors.New("boom")

	require.NoError(t, f.Set(1, reactor.Read, 0, func(reactor.EventKind) {}))
	f.FailNextSet(boom)
	assert.ErrorIs(t, f.Set(1, reactor.Write, reactor.FlagEdge, func(reactor.EventKind) {}), boom)

	interest, flags, ok := f.Registered(1)
	require.True(t, ok)
	assert.Equal(t, reactor.Read, interest)
	assert.Equal(t, reactor.Flags(0), flags)

	require.NoError(t, f.Set(1, reactor.Write, 0, func(reactor.EventKind) {}), "only the next call fails")
}

func TestFake_AdvanceFiresInOrder(t *testing.T) {
	f := New()
	start := f.Now()

	var order []string
	arm := func(name string, d time.Duration) {
		timer := new(reactor.Timer)
		timer.ArmAt(start.Add(d))
		require.NoError(t, f.SetTimer(timer, func() {
			order = append(order, name)
			assert.Equal(t, start.Add(d), f.Now(), "the clock is at the deadline")
		}))
	}
	arm("b", 20*time.Millisecond)
	arm("a", 10*time.Millisecond)
	arm("c", 30*time.Millisecond)

	assert.Equal(t, 0, f.Advance(5*time.Millisecond))
	assert.Equal(t, 2, f.Advance(20*time.Millisecond))
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, start.Add(25*time.Millisecond), f.Now())
	assert.Equal(t, 1, f.Timers())
}

func TestFake_AdvanceRepeating(t *testing.T) {
	f := New()

	var timer reactor.Timer
	timer.ArmAt(f.Now())
	var calls int
	require.NoError(t, f.SetTimer(&timer, func() { calls++ }))
	assert.Equal(t, 1, f.Advance(0))

	timer.ArmInterval(10 * time.Millisecond)
	deadline := timer.Deadline()
	require.NoError(t, f.SetTimer(&timer, func() { calls++ }))

	// skip to the first deadline, then three more periods
	fired := f.Advance(deadline.Sub(f.Now()) + 30*time.Millisecond)
	assert.Equal(t, 4, fired)
	assert.Equal(t, 5, calls)

	require.NoError(t, f.DelTimer(&timer))
	assert.Equal(t, 0, f.Advance(time.Hour))
}

func TestFake_Stop(t *testing.T) {
	f := New()
	var r reactor.Registrar = f
	r.Stop()
	r.Stop()
	assert.Equal(t, 2, f.Stops())
}

func TestFake_ZeroDeadlineIsArmed(t *testing.T) {
	f := New()

	var timer reactor.Timer
	timer.ArmAt(time.Time{})
	var calls int
	require.NoError(t, f.SetTimer(&timer, func() { calls++ }))

	assert.Equal(t, 1, f.Advance(0), "a deadline in the past fires immediately")
	assert.Equal(t, 1, calls)
}
