package reactor

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// logCategory is the rate limiting category for error logs. Limiting per
// handle stops one misbehaving registration from drowning out the rest.
type logCategory struct {
	kind   string
	handle Handle
}

// reactorLog wraps the optional logger. All methods are safe to call with a
// nil logger, as are the logiface builders.
type reactorLog struct {
	logger  *logiface.Logger[logiface.Event]
	limiter *catrate.Limiter
	id      uint64
}

func (x *reactorLog) allow(kind string, h Handle) (time.Time, bool) {
	return x.limiter.Allow(logCategory{kind: kind, handle: h})
}

func (x *reactorLog) running(backend string) {
	x.logger.Debug().
		Uint64("reactor", x.id).
		Str("backend", backend).
		Log(`reactor running`)
}

func (x *reactorLog) stopped(reason string) {
	x.logger.Debug().
		Uint64("reactor", x.id).
		Str("reason", reason).
		Log(`reactor stopped`)
}

func (x *reactorLog) staleEvent(h Handle, kind EventKind) {
	x.logger.Trace().
		Uint64("reactor", x.id).
		Int("handle", int(h)).
		Stringer("kind", kind).
		Log(`dropped stale event`)
}

func (x *reactorLog) onceRemoveFailed(h Handle, err error) {
	if b := x.logger.Warning(); b.Enabled() {
		if _, ok := x.allow("once", h); !ok {
			b.Release()
			return
		}
		b.Uint64("reactor", x.id).
			Int("handle", int(h)).
			Err(err).
			Log(`failed to remove once registration from backend`)
	}
}

func (x *reactorLog) waitFailed(backend string, err error) {
	x.logger.Err().
		Uint64("reactor", x.id).
		Str("backend", backend).
		Err(err).
		Log(`backend wait failed`)
}

func (x *reactorLog) closeFailed(err error) {
	x.logger.Err().
		Uint64("reactor", x.id).
		Err(err).
		Log(`failed to release backend`)
}

// callbackPanic logs a recovered panic. Timer callbacks use InvalidHandle.
func (x *reactorLog) callbackPanic(h Handle, r any) {
	if b := x.logger.Err(); b.Enabled() {
		next, ok := x.allow("panic", h)
		if !ok {
			b.Release()
			return
		}
		b = b.Uint64("reactor", x.id).
			Int("handle", int(h)).
			Str("panic", fmt.Sprint(r)).
			Str("stack", string(debug.Stack()))
		if next != (time.Time{}) {
			// the last one allowed before limiting
			b = b.Time("suppressed_until", next)
		}
		b.Log(`recovered callback panic`)
	}
}
