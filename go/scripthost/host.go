// Package scripthost implements the embedded-script service adapter:
// memory-accounted, interruptible gopher-lua interpreters wired to a
// dispatcher's send/callback/command/error contract, matching the
// role service_snlua.c plays in the original framework.
package scripthost

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/relayforge/actorcore/go/config"
	"github.com/relayforge/actorcore/go/dispatch"
	"github.com/relayforge/actorcore/go/ops"
)

//go:embed lualib/loader.lua
var defaultLoader string

// InitArgs is the startup payload a Host's Init receives: the service
// name to resolve against the configured service path, an opaque
// argument string passed through to its entry point, and an optional
// memory limit override (0 defers to the dispatcher's "memlimit"
// GETENV key, itself 0/absent meaning unlimited). A numeric "memlimit"
// entry left in the interpreter registry once the bootstrap loader has
// returned replaces either value, and is then removed from the registry.
type InitArgs struct {
	ServiceName string
	ServiceArgs string
	MemLimit    uint64
}

// Host is the per-service adapter that owns one gopher-lua interpreter
// for its lifetime: memory accounting, coroutine profiling, and the
// cross-thread trap described in spec.md §4.3.
type Host struct {
	handle     uint32
	dispatcher dispatch.Dispatcher
	cfg        *config.Config
	log        *ops.Logger

	L    *lua.LState
	mem  *memAccount
	trp  *trap
	prof *profiler

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewHost constructs a Host bound to handleID. Init must run before any
// message is delivered.
func NewHost(handleID uint32, dispatcher dispatch.Dispatcher, cfg *config.Config, log *ops.Logger) *Host {
	return &Host{
		handle:     handleID,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log,
		mem:        newMemAccount(cfg.MemoryWarningBytes),
		trp:        &trap{},
		prof:       newProfiler(),
	}
}

// Init spins up the interpreter, installs the profiling shim and memory
// accounting hooks, publishes the dispatcher-sourced globals the
// bootstrap loader and service script expect, runs the bootstrap
// loader, and installs OnMessage as the service's callback. Mirrors the
// shape of snlua_init: open libs, set globals from GETENV, load and
// pcall the loader with a traceback handler, then skynet_callback.
func (h *Host) Init(args InitArgs) error {
	h.L = lua.NewState(lua.Options{})
	install(h.L, h.prof)
	h.publishConfig()

	if args.MemLimit != 0 {
		h.mem.setLimit(args.MemLimit)
	} else if v, ok := h.dispatcher.Command(h.handle, "GETENV", "memlimit"); ok {
		var limit uint64
		if _, err := fmt.Sscanf(v, "%d", &limit); err == nil {
			h.mem.setLimit(limit)
		}
	}

	h.installBufferBindings()

	h.L.SetGlobal("SERVICE_NAME", lua.LString(args.ServiceName))
	h.L.SetGlobal("SERVICE_ARGS", lua.LString(args.ServiceArgs))
	h.account(uint64(len(args.ServiceName) + len(args.ServiceArgs)))

	var loaderSrc = defaultLoader
	if path, ok := h.dispatcher.Command(h.handle, "GETENV", "lualoader"); ok && path != "" {
		if b, err := os.ReadFile(path); err == nil {
			loaderSrc = string(b)
		}
	}

	if err := h.protectedRun(loaderSrc); err != nil {
		h.log.ScriptError(h.handle, "init", err)
		return fmt.Errorf("scripthost: bootstrap failed: %w", err)
	}

	if v, ok := h.L.G.Registry.RawGetString("memlimit").(lua.LNumber); ok {
		h.mem.setLimit(uint64(v))
		h.L.G.Registry.RawSetString("memlimit", lua.LNil)
	}

	h.dispatcher.Callback(h.handle, h.OnMessage)
	h.log.Lifecycle(h.handle, "launch")
	return nil
}

// publishConfig sets the globals LUA_NOENV (a convention: gopher-lua's
// stdlib doesn't consult the host process's environment the way PUC-Lua's
// require/os can, but scripts written against the original framework
// check this flag themselves) plus the lua_path/lua_cpath/service_path
// family sourced from the dispatcher's GETENV.
func (h *Host) publishConfig() {
	h.L.SetGlobal("LUA_NOENV", lua.LTrue)

	if v, ok := h.dispatcher.Command(h.handle, "GETENV", "lua_path"); ok {
		h.L.SetGlobal("LUA_PATH", lua.LString(v))
	}
	if v, ok := h.dispatcher.Command(h.handle, "GETENV", "lua_cpath"); ok {
		h.L.SetGlobal("LUA_CPATH", lua.LString(v))
	}
	if v, ok := h.dispatcher.Command(h.handle, "GETENV", "luaservice"); ok {
		h.L.SetGlobal("SERVICE_PATH", lua.LString(v))
	}
	if v, ok := h.dispatcher.Command(h.handle, "GETENV", "preload"); ok {
		h.L.SetGlobal("LUA_PRELOAD", lua.LString(v))
	}
}

// installBufferBindings publishes buffer.alloc/buffer.realloc, the
// opt-in Lua-visible counterpart of the realloc hook: scripts that
// manage their own large buffers can meter them against the same
// account the host uses for payload/args accounting, the closest
// analogue gopher-lua allows to replacing lua_Alloc outright.
func (h *Host) installBufferBindings() {
	var mod = h.L.NewTable()
	h.L.SetField(mod, "alloc", h.L.NewFunction(func(L *lua.LState) int {
		var n = uint64(L.CheckInt(1))
		if !h.mem.realloc(0, n) {
			L.RaiseError("not enough memory")
		}
		h.maybeWarn()
		L.Push(lua.LNumber(n))
		return 1
	}))
	h.L.SetField(mod, "realloc", h.L.NewFunction(func(L *lua.LState) int {
		var oldSize = uint64(L.CheckInt(1))
		var newSize = uint64(L.CheckInt(2))
		if !h.mem.realloc(oldSize, newSize) {
			L.RaiseError("not enough memory")
		}
		h.maybeWarn()
		L.Push(lua.LNumber(newSize))
		return 1
	}))
	h.L.SetGlobal("buffer", mod)
}

func (h *Host) maybeWarn() {
	if h.mem.crossedReportThreshold() {
		h.log.MemoryWarning(h.handle, h.mem.used())
	}
}

// account meters n bytes crossing the Go/interpreter boundary outside
// any Lua-visible call (startup args, message payloads).
func (h *Host) account(n uint64) {
	if n == 0 {
		return
	}
	h.mem.realloc(0, n)
	h.maybeWarn()
}

func (h *Host) protectedRun(source string) error {
	var fn, err = h.L.LoadString(source)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	return h.call(fn, nil)
}

// call invokes fn under a fresh per-call context, publishing its
// cancel function so Signal(0) can interrupt it from another goroutine,
// then reconciles the trap state once the call returns. Mirrors
// switchL + lua_resume + the post-resume trap busy-wait in the
// original, minus the raw-pointer hook installation gopher-lua doesn't
// need (see trap.go).
func (h *Host) call(fn *lua.LFunction, args []lua.LValue) error {
	var ctx, cancel = context.WithCancel(context.Background())
	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()
	h.L.SetContext(ctx)

	h.L.Push(fn)
	for _, a := range args {
		h.L.Push(a)
	}
	var callErr = h.L.PCall(len(args), lua.MultRet, nil)

	h.mu.Lock()
	h.cancel = nil
	h.mu.Unlock()
	cancel()

	if h.trp.isSet() {
		h.trp.waitUntilArmed()
		h.trp.observed()
		callErr = fmt.Errorf("signal 0")
	}
	return callErr
}

// OnMessage is installed as the service's dispatcher callback: it
// meters the payload, locates the service-installed dispatch_message
// global, and invokes it with (type, session, source, payload).
func (h *Host) OnMessage(msgType uint8, session int, source uint32, payload []byte, dontCopy bool) {
	h.account(uint64(len(payload)))

	var fn, ok = h.L.GetGlobal("dispatch_message").(*lua.LFunction)
	if !ok {
		h.dispatcher.Errorf(h.handle, "scripthost: no dispatch_message installed")
		return
	}

	var args = []lua.LValue{
		lua.LNumber(msgType),
		lua.LNumber(session),
		lua.LNumber(source),
		lua.LString(payload),
	}
	if err := h.call(fn, args); err != nil {
		h.log.ScriptError(h.handle, "on_message", err)
		h.dispatcher.Errorf(h.handle, "%v", err)
	}
}

// Signal delivers a signal to the host: 0 interrupts whatever call is
// currently running (the cross-thread trap); 1 is a diagnostic dump of
// current memory usage; anything else is logged and otherwise ignored,
// matching service_snlua's signal handler.
func (h *Host) Signal(n int) {
	switch n {
	case 0:
		h.trp.signal(func() {
			h.mu.Lock()
			var cancel = h.cancel
			h.mu.Unlock()
			if cancel != nil {
				cancel()
			}
		})
	case 1:
		h.log.MemoryWarning(h.handle, h.mem.used())
	default:
		h.log.Signal(h.handle, n)
	}
}

// MemoryUsed reports the host's currently accounted interpreter memory,
// for metrics export.
func (h *Host) MemoryUsed() uint64 { return h.mem.used() }

// Close releases the interpreter. The host is unusable afterward.
func (h *Host) Close() {
	if h.L != nil {
		h.L.Close()
	}
}
