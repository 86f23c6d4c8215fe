// Package handle implements the process-wide directory of live services:
// a concurrent, resizable mapping from a 32-bit logical handle to the
// service instance it names, with a sorted secondary index of aliases.
package handle

import (
	"fmt"
	"sort"
	"sync"
)

const (
	// HarborShift is the bit position at which the harbor (node) id is
	// OR'ed into a handle.
	HarborShift = 24

	// localMask isolates the 24-bit local slot id from a full handle.
	localMask = 1<<HarborShift - 1

	// maxSlotSize bounds both the slot table and the alias array; beyond
	// this the address space has been exhausted and we consider it a
	// programming/deployment error, not a recoverable condition.
	maxSlotSize = 1 << 30

	defaultSlotSize  = 4
	defaultNameCap   = 2
	defaultNameAlloc = 0
)

// Service is the opaque thing a handle names. The registry is the sole
// strong owner: it installs a service into a slot, increments a caller's
// reference via Retain on every Grab, and drops its own reference via
// Release once Retire removes the slot entry. A service never forms a
// reference cycle with another service by holding its handle, because
// resolving a handle always goes back through Grab.
type Service interface {
	// Handle returns the handle currently assigned to this service, or 0
	// if none has been assigned yet.
	Handle() uint32

	// SetHandle is called exactly once, by Register, while the registry
	// holds its write lock. It must be visible to any goroutine that
	// subsequently observes the service in the slot table.
	SetHandle(handle uint32)

	// Retain increments the service's reference count. Called by Grab.
	Retain()

	// Release decrements the service's reference count, destroying the
	// service when it reaches zero. Called by Retire, outside of the
	// registry's lock, since destruction may re-enter the registry.
	Release()
}

type nameEntry struct {
	name   string
	handle uint32
}

// Registry is a concurrent, resizable handle table plus a sorted alias
// index. The zero value is not usable; construct with New.
type Registry struct {
	mu sync.RWMutex

	harbor      uint32
	handleIndex uint32
	slot        []Service

	names []nameEntry
}

// New constructs a Registry for the given harbor (node) id. harbor occupies
// the high 8 bits of every handle this registry issues.
func New(harbor uint8) *Registry {
	return &Registry{
		harbor:      uint32(harbor) << HarborShift,
		handleIndex: 1,
		slot:        make([]Service, defaultSlotSize),
		names:       make([]nameEntry, 0, defaultNameCap),
	}
}

// Register installs svc under a freshly allocated handle and returns it.
// The slot table doubles (bounded by 2^30 entries) when a full pass finds
// no free slot.
func (r *Registry) Register(svc Service) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		var mask = uint32(len(r.slot) - 1)
		var id = r.handleIndex

		for i := 0; i < len(r.slot); i, id = i+1, id+1 {
			if id > localMask {
				// 0 is reserved; never hand it out.
				id = 1
			}
			var hash = id & mask
			if r.slot[hash] == nil {
				r.slot[hash] = svc
				r.handleIndex = id + 1

				var full = id | r.harbor
				svc.SetHandle(full)
				return full
			}
		}

		r.grow()
	}
}

// grow doubles the slot table and rehashes every live entry by its own
// stored handle. Must be called with the write lock held.
func (r *Registry) grow() {
	var newSize = len(r.slot) * 2
	if newSize > maxSlotSize {
		panic(fmt.Sprintf("handle: slot table would exceed %d entries", maxSlotSize))
	}

	var newSlot = make([]Service, newSize)
	var mask = uint32(newSize - 1)
	for _, svc := range r.slot {
		if svc == nil {
			continue
		}
		var hash = svc.Handle() & mask
		if newSlot[hash] != nil {
			panic("handle: rehash collision, corrupted slot table")
		}
		newSlot[hash] = svc
	}
	r.slot = newSlot
}

// Retire removes handle's slot entry if it is still live, compacts every
// alias that named it out of the sorted name array, and releases the
// registry's own reference to the service. It reports whether a service
// was actually retired.
func (r *Registry) Retire(handle uint32) bool {
	r.mu.Lock()

	var mask = uint32(len(r.slot) - 1)
	var hash = handle & mask
	var svc = r.slot[hash]

	var retired Service
	if svc != nil && svc.Handle() == handle {
		r.slot[hash] = nil
		retired = svc

		var j int
		for i := range r.names {
			if r.names[i].handle == handle {
				continue
			}
			if i != j {
				r.names[j] = r.names[i]
			}
			j++
		}
		r.names = r.names[:j]
	}

	r.mu.Unlock()

	if retired == nil {
		return false
	}
	// Release outside the lock: destruction may re-enter the registry
	// (e.g. to retire services it owns), which would deadlock otherwise.
	retired.Release()
	return true
}

// RetireAll retires every currently live service, tolerating services
// whose destructors register or retire other services: it repeats until
// a full sweep finds nothing live.
func (r *Registry) RetireAll() {
	for {
		r.mu.RLock()
		var live = make([]uint32, 0, len(r.slot))
		for _, svc := range r.slot {
			if svc != nil {
				live = append(live, svc.Handle())
			}
		}
		r.mu.RUnlock()

		if len(live) == 0 {
			return
		}
		for _, h := range live {
			r.Retire(h)
		}
	}
}

// Grab resolves handle to its service, incrementing the service's
// reference count before releasing the lock. Returns nil if handle is
// not currently live.
func (r *Registry) Grab(handle uint32) Service {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var mask = uint32(len(r.slot) - 1)
	var hash = handle & mask
	var svc = r.slot[hash]
	if svc != nil && svc.Handle() == handle {
		svc.Retain()
		return svc
	}
	return nil
}

// FindByName resolves a bound alias to its handle, or 0 if unbound.
func (r *Registry) FindByName(name string) uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var i, ok = r.search(name)
	if !ok {
		return 0
	}
	return r.names[i].handle
}

// BindName binds name to handle, returning the bound name and true, or
// ("", false) if name is already bound (a duplicate alias is refused,
// never overwritten).
func (r *Registry) BindName(handle uint32, name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.search(name); ok {
		return "", false
	}

	var before = sort.Search(len(r.names), func(i int) bool {
		return r.names[i].name >= name
	})
	r.insertNameBefore(name, handle, before)
	return name, true
}

// search returns the index of name in the sorted alias array and whether
// it was found. Must be called with at least the read lock held.
func (r *Registry) search(name string) (int, bool) {
	var i = sort.Search(len(r.names), func(i int) bool {
		return r.names[i].name >= name
	})
	if i < len(r.names) && r.names[i].name == name {
		return i, true
	}
	return i, false
}

// insertNameBefore inserts (name, handle) at position before, shifting
// every entry at or after before one slot to the right. Must be called
// with the write lock held. before ranges over [0, len(r.names)]
// inclusive: insertion at the end of the array is the common case when
// aliases are bound in sorted order.
func (r *Registry) insertNameBefore(name string, handle uint32, before int) {
	if len(r.names) >= maxSlotSize {
		panic(fmt.Sprintf("handle: name table would exceed %d entries", maxSlotSize))
	}

	r.names = append(r.names, nameEntry{})
	copy(r.names[before+1:], r.names[before:])
	r.names[before] = nameEntry{name: name, handle: handle}
}

// Len reports the number of currently live (registered, not retired)
// handles. Intended for metrics/observability, not for correctness.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int
	for _, svc := range r.slot {
		if svc != nil {
			n++
		}
	}
	return n
}

// SlotSize reports the current size of the slot table.
func (r *Registry) SlotSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slot)
}

// NameCount reports the number of currently bound aliases.
func (r *Registry) NameCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}
