package reactor

import (
	"sync/atomic"
)

// State is the lifecycle state of a [Reactor].
//
// State machine:
//
//	StateIdle (0) → StateDispatching (3)         [Poll/Run]
//	StateDispatching (3) → StateWaiting (2)      [before the backend wait, via CAS]
//	StateWaiting (2) → StateDispatching (3)      [after the backend wait, via CAS]
//	StateDispatching (3) → StateIdle (0)         [Poll/Run return]
//	StateIdle (0) → StateTerminated (1)          [Close]
//	StateWaiting, StateDispatching → StateTerminating (4) [Close while running]
//	StateTerminating (4) → StateTerminated (1)   [loop exit]
//	StateTerminated (1) → (terminal)
//
// Use TryTransition (CAS) for the temporary states. Only Terminated may be
// stored unconditionally.
type State uint64

const (
	// StateIdle indicates nothing is driving the reactor.
	StateIdle State = 0
	// StateTerminated indicates the reactor has been closed, and its kernel
	// objects released.
	StateTerminated State = 1
	// StateWaiting indicates the driving goroutine is blocked in the backend.
	StateWaiting State = 2
	// StateDispatching indicates the driving goroutine is running timers or
	// callbacks, or otherwise not blocked.
	StateDispatching State = 3
	// StateTerminating indicates Close was called while running. The
	// driving goroutine finishes the close on exit.
	StateTerminating State = 4
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateDispatching:
		return "Dispatching"
	case StateWaiting:
		return "Waiting"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// runningStates are the states of a reactor being driven by Run or Poll.
var runningStates = []State{StateWaiting, StateDispatching}

// fastState is a lock-free state machine with cache-line padding.
type fastState struct { // betteralign:ignore
	_ [64]byte      //nolint:unused
	v atomic.Uint64 // State value
	_ [56]byte      //nolint:unused
}

func (s *fastState) Load() State {
	return State(s.v.Load())
}

func (s *fastState) Store(state State) {
	s.v.Store(uint64(state))
}

// TryTransition attempts to atomically transition from one state to another.
func (s *fastState) TryTransition(from, to State) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// TransitionAny attempts to transition from any of validFrom to the target.
func (s *fastState) TransitionAny(validFrom []State, to State) bool {
	for _, from := range validFrom {
		if s.v.CompareAndSwap(uint64(from), uint64(to)) {
			return true
		}
	}
	return false
}
