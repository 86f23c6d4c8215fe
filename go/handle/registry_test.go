package handle

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeService is a minimal Service for exercising the registry without
// pulling in the script host or dispatcher.
type fakeService struct {
	handle   uint32
	refs     int32
	released int32
}

func (s *fakeService) Handle() uint32       { return atomic.LoadUint32(&s.handle) }
func (s *fakeService) SetHandle(h uint32)   { atomic.StoreUint32(&s.handle, h) }
func (s *fakeService) Retain()              { atomic.AddInt32(&s.refs, 1) }
func (s *fakeService) Release() {
	if atomic.AddInt32(&s.refs, -1) == 0 {
		atomic.StoreInt32(&s.released, 1)
	}
}

func newFake() *fakeService { return &fakeService{refs: 1} }

func TestRegisterProducesDistinctHandlesAndGrowsTable(t *testing.T) {
	var r = New(0x01)
	// Force the tiny default table (size 4) by registering five services.
	var services [5]*fakeService
	var handles [5]uint32
	for i := range services {
		services[i] = newFake()
		handles[i] = r.Register(services[i])
	}

	require.Equal(t, uint32(0x01000001), handles[0])
	require.Equal(t, uint32(0x01000002), handles[1])
	require.Equal(t, uint32(0x01000003), handles[2])
	require.Equal(t, uint32(0x01000004), handles[3])
	require.Equal(t, uint32(0x01000005), handles[4])

	// All five distinct.
	var seen = map[uint32]bool{}
	for _, h := range handles {
		require.False(t, seen[h])
		seen[h] = true
	}

	// Slot table must have grown past the default size of 4 to fit 5.
	require.Greater(t, r.SlotSize(), 4)
}

func TestRetireRemovesFromGrab(t *testing.T) {
	var r = New(0x01)
	var a, b, c, d, e = newFake(), newFake(), newFake(), newFake(), newFake()
	r.Register(a)
	r.Register(b)
	var hc = r.Register(c)
	var hd = r.Register(d)
	r.Register(e)

	require.True(t, r.Retire(hc))
	require.Nil(t, r.Grab(hc))
	require.Same(t, d, r.Grab(hd))
}

func TestRetireIsIdempotentFalseOnSecondCall(t *testing.T) {
	var r = New(0x00)
	var a = newFake()
	var h = r.Register(a)

	require.True(t, r.Retire(h))
	require.False(t, r.Retire(h))
}

func TestGrabIncrementsRefcount(t *testing.T) {
	var r = New(0x00)
	var a = newFake()
	var h = r.Register(a)

	var got = r.Grab(h)
	require.Same(t, a, got)
	require.EqualValues(t, 2, a.refs) // 1 from newFake, 1 from Grab
}

func TestHandleWraparoundNeverReturnsZero(t *testing.T) {
	var r = New(0x00)
	r.handleIndex = localMask // next id is the last valid one; the id after it overflows
	var a, b = newFake(), newFake()

	var h1 = r.Register(a)
	var h2 = r.Register(b)

	require.EqualValues(t, localMask, h1)
	require.EqualValues(t, 1, h2) // wraps past 0 straight to 1
}

func TestBindNameSortedAndUnique(t *testing.T) {
	var r = New(0x00)
	var h1, h2, h3 = r.Register(newFake()), r.Register(newFake()), r.Register(newFake())

	// Bind in reverse order; the alias array must end up sorted.
	_, ok := r.BindName(h3, "c")
	require.True(t, ok)
	_, ok = r.BindName(h1, "a")
	require.True(t, ok)
	_, ok = r.BindName(h2, "b")
	require.True(t, ok)

	require.Equal(t, h2, r.FindByName("b"))
	require.Equal(t, h1, r.FindByName("a"))
	require.Equal(t, h3, r.FindByName("c"))
}

func TestBindNameRejectsDuplicateAlias(t *testing.T) {
	var r = New(0x00)
	var h1, h2 = r.Register(newFake()), r.Register(newFake())

	_, ok := r.BindName(h1, "x")
	require.True(t, ok)

	name, ok := r.BindName(h2, "x")
	require.False(t, ok)
	require.Empty(t, name)
	require.Equal(t, h1, r.FindByName("x"))
}

func TestRetireCompactsAliasesForThatHandleOnly(t *testing.T) {
	var r = New(0x00)
	var h1, h2 = r.Register(newFake()), r.Register(newFake())
	r.BindName(h1, "alpha")
	r.BindName(h2, "beta")

	require.True(t, r.Retire(h1))
	require.Equal(t, uint32(0), r.FindByName("alpha"))
	require.Equal(t, h2, r.FindByName("beta"))
	require.Equal(t, 1, r.NameCount())
}

func TestRetireAllReachesFixedPointWithReRegistration(t *testing.T) {
	var r = New(0x00)

	// A service whose Release re-registers a fresh one, simulating a
	// destructor that spawns a replacement. RetireAll must still
	// terminate, retiring the replacement too.
	var spawnedOnce bool
	var spawner = &spawningService{registry: r}
	r.Register(spawner)
	spawner.onRelease = func() {
		if !spawnedOnce {
			spawnedOnce = true
			r.Register(newFake())
		}
	}

	r.RetireAll()
	require.Equal(t, 0, r.Len())
}

type spawningService struct {
	handle    uint32
	registry  *Registry
	onRelease func()
}

func (s *spawningService) Handle() uint32     { return s.handle }
func (s *spawningService) SetHandle(h uint32) { s.handle = h }
func (s *spawningService) Retain()            {}
func (s *spawningService) Release() {
	if s.onRelease != nil {
		s.onRelease()
	}
}

func TestConcurrentRegisterAndGrab(t *testing.T) {
	var r = New(0x00)
	var done = make(chan uint32, 64)

	for i := 0; i < 64; i++ {
		go func() {
			var svc = newFake()
			done <- r.Register(svc)
		}()
	}

	var handles = make([]uint32, 0, 64)
	for i := 0; i < 64; i++ {
		handles = append(handles, <-done)
	}

	for _, h := range handles {
		require.NotNil(t, r.Grab(h))
	}
	require.Equal(t, 64, r.Len())
}
