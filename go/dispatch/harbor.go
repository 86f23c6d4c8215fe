package dispatch

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/relayforge/actorcore/go/config"
	"github.com/relayforge/actorcore/go/handle"
	"github.com/relayforge/actorcore/go/ops"
)

// Harbor is a reference Dispatcher: a handle.Registry plus a fixed
// worker pool that drains each service's mailbox one message at a time,
// never concurrently with itself. It exists to give the core subsystems
// something real to run against end to end; the worker-pool shape
// itself is out of scope for the contracts the core subsystems consume.
type Harbor struct {
	registry *handle.Registry
	cfg      *config.Config
	log      *ops.Logger

	work chan *mailboxService
	wg   sync.WaitGroup
}

// NewHarbor starts a Harbor with cfg.Workers goroutines draining the
// shared work queue.
func NewHarbor(cfg *config.Config, log *ops.Logger) *Harbor {
	var h = &Harbor{
		registry: handle.New(cfg.Harbor),
		cfg:      cfg,
		log:      log,
		work:     make(chan *mailboxService, 256),
	}

	var n = cfg.Workers
	if n <= 0 {
		n = 1
	}
	h.wg.Add(n)
	for i := 0; i < n; i++ {
		go h.worker()
	}
	return h
}

// Registry exposes the underlying handle registry, e.g. for BindName
// calls made outside the Dispatcher contract proper.
func (h *Harbor) Registry() *handle.Registry { return h.registry }

// Spawn registers a fresh, callback-less service and returns its handle.
// The caller installs a callback via Callback before any message can be
// usefully delivered.
func (h *Harbor) Spawn() uint32 {
	var ms = &mailboxService{harbor: h}
	ms.refs.Store(1)
	return h.registry.Register(ms)
}

func (h *Harbor) worker() {
	defer h.wg.Done()
	for ms := range h.work {
		ms.drain()
	}
}

func (h *Harbor) schedule(ms *mailboxService) {
	h.work <- ms
}

// Send implements Dispatcher.
func (h *Harbor) Send(source, dest uint32, msg Envelope) error {
	var svc = h.registry.Grab(dest)
	if svc == nil {
		return fmt.Errorf("dispatch: unknown destination handle %08x", dest)
	}
	var ms = svc.(*mailboxService)
	ms.enqueue(job{source: source, msg: msg})
	ms.Release()
	return nil
}

// Callback implements Dispatcher.
func (h *Harbor) Callback(handleID uint32, fn Handler) {
	var svc = h.registry.Grab(handleID)
	if svc == nil {
		return
	}
	var ms = svc.(*mailboxService)
	ms.mu.Lock()
	ms.handler = fn
	ms.mu.Unlock()
	svc.Release()
}

// Command implements Dispatcher.
func (h *Harbor) Command(handleID uint32, op, arg string) (string, bool) {
	switch op {
	case "REG":
		return fmt.Sprintf(":%08x", handleID), true
	case "GETENV":
		return h.cfg.Get(arg)
	case "EXIT":
		h.registry.Retire(handleID)
		return "", true
	default:
		return "", false
	}
}

// Errorf implements Dispatcher.
func (h *Harbor) Errorf(handleID uint32, format string, args ...interface{}) {
	h.log.ScriptError(handleID, "runtime", fmt.Errorf(format, args...))
}

// Shutdown retires every live service and stops the worker pool. It
// blocks until in-flight mailboxes drain.
func (h *Harbor) Shutdown() {
	h.registry.RetireAll()
	close(h.work)
	h.wg.Wait()
}

type job struct {
	source uint32
	msg    Envelope
}

// mailboxService is the handle.Service the Harbor registers for every
// spawned service: a FIFO of pending jobs plus a "draining" flag that
// guarantees at most one worker goroutine processes a given service's
// mailbox at a time, in enqueue order.
type mailboxService struct {
	harbor *Harbor

	handleID atomic.Uint32
	refs     atomic.Int32

	mu       sync.Mutex
	queue    []job
	draining bool
	handler  Handler
}

func (s *mailboxService) Handle() uint32           { return s.handleID.Load() }
func (s *mailboxService) SetHandle(handle uint32)  { s.handleID.Store(handle) }
func (s *mailboxService) Retain()                  { s.refs.Add(1) }

// Release drops a reference; at zero the service has no further owners
// and any held resources would be torn down here (a mailboxService
// holds none itself — it is the ScriptServiceHost, if any, bound to the
// same handle that owns the interpreter and its memory).
func (s *mailboxService) Release() {
	if s.refs.Add(-1) == 0 {
		s.mu.Lock()
		s.queue = nil
		s.handler = nil
		s.mu.Unlock()
	}
}

func (s *mailboxService) enqueue(j job) {
	s.mu.Lock()
	s.queue = append(s.queue, j)
	var needSchedule = !s.draining
	if needSchedule {
		s.draining = true
	}
	s.mu.Unlock()

	if needSchedule {
		s.harbor.schedule(s)
	}
}

func (s *mailboxService) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		var j = s.queue[0]
		s.queue = s.queue[1:]
		var fn = s.handler
		s.mu.Unlock()

		if fn != nil {
			fn(j.msg.Type, j.msg.Session, j.source, j.msg.Payload, j.msg.DontCopy)
		}
	}
}
