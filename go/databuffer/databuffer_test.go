package databuffer

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func encodeLen(n int, width int) []byte {
	switch width {
	case 2:
		var b = make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(n))
		return b
	case 4:
		var b = make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(n))
		return b
	default:
		panic("bad width")
	}
}

// Scenario 1 from spec.md §8.
func TestEndToEndSingleFrame(t *testing.T) {
	var pool = NewPool()
	var db = New(pool)

	db.Push([]byte{0x00, 0x05})
	db.Push([]byte("hello"))

	require.Equal(t, 5, db.ReadHeader(2))
	var dst = make([]byte, 5)
	db.Read(dst)
	require.Equal(t, "hello", string(dst))

	db.Reset()
	require.Equal(t, 0, db.Size())
}

// Scenario 2 from spec.md §8: a header split across chunks, and a payload
// that isn't fully buffered when the header first resolves.
func TestEndToEndSplitHeaderAndPayload(t *testing.T) {
	var pool = NewPool()
	var db = New(pool)

	db.Push([]byte{0x00})
	require.Equal(t, -1, db.ReadHeader(2))

	db.Push([]byte{0x03, 0x41, 0x42})
	require.Equal(t, -1, db.ReadHeader(2)) // header known (3) but only "AB" buffered

	db.Push([]byte{0x43})
	require.Equal(t, 3, db.ReadHeader(2))

	var dst = make([]byte, 3)
	db.Read(dst)
	require.Equal(t, "ABC", string(dst))
}

func TestRoundTripByteExact(t *testing.T) {
	var pool = NewPool()
	var db = New(pool)

	var payload = []byte("the quick brown fox jumps over the lazy dog")
	db.Push(encodeLen(len(payload), 2))
	db.Push(payload)

	var n = db.ReadHeader(2)
	require.Equal(t, len(payload), n)

	var dst = make([]byte, n)
	db.Read(dst)
	require.True(t, bytes.Equal(payload, dst))
	db.Reset()
}

func TestPipelinedFrames(t *testing.T) {
	var pool = NewPool()
	var db = New(pool)

	var frames = []string{"a", "bb", "ccc", ""}
	for _, f := range frames {
		db.Push(encodeLen(len(f), 4))
		db.Push([]byte(f))
	}

	for _, want := range frames {
		var n = db.ReadHeader(4)
		require.Equal(t, len(want), n)
		var dst = make([]byte, n)
		db.Read(dst)
		require.Equal(t, want, string(dst))
		db.Reset()
	}
	require.Equal(t, 0, db.Size())
}

// Fragmented delivery: a frame split across 1-byte pushes, including the
// header itself spanning multiple chunks, still decodes correctly.
func TestFragmentedByteAtATime(t *testing.T) {
	for _, width := range []int{2, 4} {
		var payload = []byte("fragmented-payload")
		var wire = append(encodeLen(len(payload), width), payload...)

		var pool = NewPool()
		var db = New(pool)

		for _, b := range wire {
			db.Push([]byte{b})
			if n := db.ReadHeader(width); n >= 0 {
				require.Equal(t, len(payload), n)
			}
		}

		require.Equal(t, len(payload), db.ReadHeader(width))
		var dst = make([]byte, len(payload))
		db.Read(dst)
		require.Equal(t, payload, dst)
	}
}

// No node leaks: once the buffer drains to empty, every node acquired
// must be back on the freelist.
func TestNoNodeLeaks(t *testing.T) {
	var pool = NewPool()
	var db = New(pool)

	for i := 0; i < 5000; i++ {
		db.Push([]byte{byte(i)})
	}
	var dst = make([]byte, 5000)
	db.Read(dst)

	require.Equal(t, pool.Allocated(), pool.FreelistLen())
}

func TestClearReturnsAllNodes(t *testing.T) {
	var pool = NewPool()
	var db = New(pool)

	for i := 0; i < 10; i++ {
		db.Push([]byte{byte(i)})
	}
	db.Clear()

	require.Equal(t, 0, db.Size())
	require.Equal(t, pool.Allocated(), pool.FreelistLen())
}

func TestReadPastBufferedSizePanics(t *testing.T) {
	var pool = NewPool()
	var db = New(pool)
	db.Push([]byte("ab"))

	require.Panics(t, func() {
		db.Read(make([]byte, 10))
	})
}

func TestReadHeaderRejectsBadWidth(t *testing.T) {
	var pool = NewPool()
	var db = New(pool)

	require.Panics(t, func() {
		db.ReadHeader(3)
	})
}
