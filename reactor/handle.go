package reactor

import (
	"strings"
)

// Handle is an OS-level descriptor, e.g. a file descriptor on unix.
//
// The reactor never owns a handle. It holds an association for as long as the
// handle is registered, and callers must [Reactor.Del] a handle before closing
// it, to prevent stale events being delivered after the number is recycled.
type Handle int

// InvalidHandle is the sentinel value for "no handle". It is never registered.
const InvalidHandle Handle = -1

// Valid reports whether h may be registered.
func (h Handle) Valid() bool { return h >= 0 }

// Interest selects the readiness kinds a registration wants delivered.
type Interest uint8

const (
	// Read requests [Readable] (and [Closed]) notifications.
	Read Interest = 1 << iota
	// Write requests [Writable] notifications.
	Write

	// ReadWrite is Read|Write.
	ReadWrite = Read | Write
)

func (x Interest) valid() bool { return x != 0 && x&^ReadWrite == 0 }

// String implements fmt.Stringer.
func (x Interest) String() string {
	switch x {
	case Read:
		return "Read"
	case Write:
		return "Write"
	case ReadWrite:
		return "ReadWrite"
	default:
		return "Interest(invalid)"
	}
}

// Flags modify the delivery semantics of a registration.
type Flags uint8

const (
	// FlagOnce removes the registration after its first delivery, before the
	// callback runs. The callback may register the handle again.
	FlagOnce Flags = 1 << iota

	// FlagEdge requests edge-triggered delivery, where the backend supports
	// it. The poll backend accepts it and remains level-triggered.
	FlagEdge

	flagsMask = FlagOnce | FlagEdge
)

// String implements fmt.Stringer.
func (x Flags) String() string {
	if x == 0 {
		return "0"
	}
	var parts []string
	if x&FlagOnce != 0 {
		parts = append(parts, "Once")
	}
	if x&FlagEdge != 0 {
		parts = append(parts, "Edge")
	}
	if x&^flagsMask != 0 {
		parts = append(parts, "invalid")
	}
	return strings.Join(parts, "|")
}

// EventKind is the set of readiness conditions delivered to an [IOCallback].
// A handle appears at most once per dispatch batch, carrying the union.
type EventKind uint8

const (
	// Readable means a read will not block.
	Readable EventKind = 1 << iota
	// Writable means a write will not block.
	Writable
	// Closed means end of stream, an error, or a peer reset. It does not
	// imply buffered data has been drained: keep reading until the read
	// would block or fails.
	Closed
)

// String implements fmt.Stringer.
func (x EventKind) String() string {
	if x == 0 {
		return "0"
	}
	var parts []string
	if x&Readable != 0 {
		parts = append(parts, "Readable")
	}
	if x&Writable != 0 {
		parts = append(parts, "Writable")
	}
	if x&Closed != 0 {
		parts = append(parts, "Closed")
	}
	return strings.Join(parts, "|")
}

// IOCallback receives readiness for a registered handle. It runs on the
// reactor goroutine and must not block.
type IOCallback func(EventKind)
