package scripthost

import (
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// profiler replaces coroutine.resume/coroutine.wrap with wrappers that
// track wall-clock time spent inside each profiled coroutine, exposed to
// scripts as profile.start/profile.stop (spec.md §4.3).
//
// The original keys two weak-valued tables (start_time[co], total_time[co])
// by the coroutine value so a dead coroutine's bookkeeping can be
// collected without an explicit stop. Go has no weak-valued map; entries
// here are removed explicitly by stopCo instead. This only matters for a
// coroutine that is abandoned mid-profile without ever calling
// profile.stop, which the original also leaves formally undefined
// (stopping twice, or never, both raise at the next call site that
// notices).
type profiler struct {
	mu    sync.Mutex
	start map[*lua.LState]time.Time
	total map[*lua.LState]time.Duration
}

func newProfiler() *profiler {
	return &profiler{
		start: make(map[*lua.LState]time.Time),
		total: make(map[*lua.LState]time.Duration),
	}
}

// startCo marks co as profiled. Time is attributed to co only across the
// resume slices that begin after this call, through the wrapped
// coroutine.resume/coroutine.wrap; the slice in which startCo itself
// runs is not counted, and a thread that is never resumed through those
// wrappers (such as the main thread) accumulates no time. Calling it
// twice on the same coroutine without an intervening stopCo is a script
// error.
func (p *profiler) startCo(co *lua.LState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.total[co]; ok {
		return fmt.Errorf("thread %p start profile more than once", co)
	}
	p.total[co] = 0
	return nil
}

// stopCo ends profiling for co and returns the duration accumulated by
// completed resume slices; a slice still in progress when stopCo is
// called is not added.
func (p *profiler) stopCo(co *lua.LState) (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	total, ok := p.total[co]
	if !ok {
		return 0, fmt.Errorf("call profile.start() before profile.stop()")
	}
	delete(p.total, co)
	delete(p.start, co)
	return total, nil
}

// resume wraps a single resume/yield slice of co, attributing wall-clock
// time to it when co is currently profiled.
func (p *profiler) resume(co *lua.LState, doResume func() (lua.ResumeState, []lua.LValue, error)) (lua.ResumeState, []lua.LValue, error) {
	p.mu.Lock()
	_, tracked := p.total[co]
	if tracked {
		p.start[co] = time.Now()
	}
	p.mu.Unlock()

	status, values, err := doResume()

	if tracked {
		p.mu.Lock()
		p.total[co] += time.Since(p.start[co])
		p.mu.Unlock()
	}
	return status, values, err
}

// install replaces the global coroutine.resume and coroutine.wrap with
// profiling-aware wrappers, and publishes the profile.start/profile.stop
// functions scripts use to bracket a coroutine's lifetime.
func install(L *lua.LState, p *profiler) {
	var mod = L.NewTable()
	L.SetField(mod, "start", L.NewFunction(func(L *lua.LState) int {
		var co = coroutineArg(L, 1)
		if err := p.startCo(co); err != nil {
			L.RaiseError("%s", err.Error())
		}
		return 0
	}))
	L.SetField(mod, "stop", L.NewFunction(func(L *lua.LState) int {
		var co = coroutineArg(L, 1)
		total, err := p.stopCo(co)
		if err != nil {
			L.RaiseError("%s", err.Error())
		}
		L.Push(lua.LNumber(total.Seconds()))
		return 1
	}))
	L.SetGlobal("profile", mod)

	var coTbl, ok = L.GetGlobal("coroutine").(*lua.LTable)
	if !ok {
		return
	}

	L.SetField(coTbl, "resume", L.NewFunction(func(L *lua.LState) int {
		var co = L.CheckThread(1)
		var nargs = L.GetTop() - 1
		var args = make([]lua.LValue, nargs)
		for i := 0; i < nargs; i++ {
			args[i] = L.Get(i + 2)
		}

		status, values, err := p.resume(co, func() (lua.ResumeState, []lua.LValue, error) {
			return L.Resume(co, args...)
		})

		if err != nil || status == lua.ResumeError {
			L.Push(lua.LFalse)
			L.Push(lua.LString(errString(err)))
			return 2
		}
		L.Push(lua.LTrue)
		for _, v := range values {
			L.Push(v)
		}
		return 1 + len(values)
	}))

	L.SetField(coTbl, "wrap", L.NewFunction(func(L *lua.LState) int {
		var fn = L.CheckFunction(1)
		var co, _ = L.NewThread()
		co.Push(fn)

		L.Push(L.NewFunction(func(L *lua.LState) int {
			var nargs = L.GetTop()
			var args = make([]lua.LValue, nargs)
			for i := 0; i < nargs; i++ {
				args[i] = L.Get(i + 1)
			}

			status, values, err := p.resume(co, func() (lua.ResumeState, []lua.LValue, error) {
				return L.Resume(co, args...)
			})
			if err != nil || status == lua.ResumeError {
				L.RaiseError("%s", errString(err))
			}
			for _, v := range values {
				L.Push(v)
			}
			return len(values)
		}))
		return 1
	}))
}

func coroutineArg(L *lua.LState, n int) *lua.LState {
	if L.GetTop() >= n {
		if th, ok := L.Get(n).(*lua.LState); ok {
			return th
		}
	}
	return L
}

func errString(err error) string {
	if err == nil {
		return "coroutine error"
	}
	return err.Error()
}
