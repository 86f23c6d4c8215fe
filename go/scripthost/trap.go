package scripthost

import (
	"runtime"
	"sync/atomic"
)

const (
	trapIdle   int32 = 0
	trapArming int32 = 1
	trapArmed  int32 = -1
)

// trap is the three-state cross-thread interrupt of spec.md §4.3. The
// issuer and the interpreter goroutine are ordinarily different
// goroutines (and may be scheduled onto different OS threads); trap is
// the only field either side touches without holding the host's
// mailbox lock, and it is operated on only via atomic load/store/CAS.
//
// gopher-lua has no raw lua_State pointer a foreign thread can safely
// lua_sethook into; cancelling a context.CancelFunc is already safe for
// concurrent use. That removes the original's reason for splitting
// "arming" and "armed" across two goroutines, but the three-state
// transition table is kept intact (and tested) because it is the
// contract the surrounding framework is written against.
type trap struct {
	state atomic.Int32
}

// signal performs the full idle -> arming -> armed transition
// synchronously on the issuer's goroutine: CAS to "arming" (a
// concurrent signal that loses the race is dropped, matching "if the
// CAS fails, abandon the signal"), invoke installHook to cancel the
// interpreter's active context, then CAS to "armed". Returns false if
// a signal was already in flight.
func (t *trap) signal(installHook func()) bool {
	if !t.state.CompareAndSwap(trapIdle, trapArming) {
		return false
	}
	installHook()
	t.state.CompareAndSwap(trapArming, trapArmed)
	return true
}

// observed is called by the interpreter goroutine once it has unwound a
// call with the "signal 0" error: armed -> idle.
func (t *trap) observed() {
	t.state.Store(trapIdle)
}

// waitUntilArmed busy-waits while a signal is still being installed
// (state == arming), yielding the processor each spin so it doesn't peg
// a core waiting on the signaling goroutine's CAS. The spec's original
// busy-wait exists to avoid racing a second resume against an install
// still landing on another OS thread; here it exists to guarantee the
// hook has actually fired (state has reached armed) before the caller
// reconciles the trap via observed. It must never wait for idle itself:
// idle is the state observed produces, not one any other goroutine does.
func (t *trap) waitUntilArmed() {
	for t.state.Load() == trapArming {
		runtime.Gosched()
	}
}

func (t *trap) isSet() bool { return t.state.Load() != trapIdle }
