package scripthost

import "sync/atomic"

// memAccount implements the realloc(ptr, old_size, new_size) hook of
// spec.md §4.3 at the host/interpreter exchange boundary (see
// SPEC_FULL.md §4.3 "Memory accounting adaptation" for why it lives
// there instead of inside the interpreter): gopher-lua has no
// replaceable lua_Alloc, so every byte that crosses from Go into the
// interpreter is metered here instead of inside the VM itself.
type memAccount struct {
	mem       atomic.Uint64
	memReport uint64 // next warning threshold; doubles each time it's crossed
	memLimit  uint64 // 0 = unlimited
}

func newMemAccount(reportThreshold uint64) *memAccount {
	var a = &memAccount{memReport: reportThreshold}
	return a
}

// realloc mirrors spec.md §4.3 steps 1-3: compute the new total usage,
// refuse a grow that would cross the limit (leaving mem unchanged),
// otherwise commit it.
func (a *memAccount) realloc(oldSize, newSize uint64) bool {
	var cur = a.mem.Load()
	var newTotal = cur - oldSize + newSize
	var growing = oldSize == 0 || newSize > oldSize

	if a.memLimit != 0 && newTotal > a.memLimit && growing {
		return false
	}
	a.mem.Store(newTotal)
	return true
}

// used reports current accounted usage. Safe to call from any goroutine
// (used by the signal(1) diagnostic, which may run on the issuer's
// thread rather than the interpreter's).
func (a *memAccount) used() uint64 { return a.mem.Load() }

// crossedReportThreshold reports whether usage has passed memReport; if
// so it doubles the threshold (spec.md §4.3 step 4) so the caller can log
// exactly one warning per doubling.
func (a *memAccount) crossedReportThreshold() bool {
	if a.memReport != 0 && a.mem.Load() > a.memReport {
		a.memReport *= 2
		return true
	}
	return false
}

func (a *memAccount) setLimit(limit uint64) { a.memLimit = limit }
