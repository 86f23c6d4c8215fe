// Package databuffer assembles length-prefixed application messages out of
// arbitrarily fragmented stream reads, backed by a pooled allocator of
// message nodes so per-frame bookkeeping never needs a per-packet
// allocation.
package databuffer

// ArenaSize is the number of Message nodes carved out of a single pool
// arena. 1023 (one short of 1024) keeps each arena's footprint just under
// a power-of-two page multiple once the arena's own header is added.
const ArenaSize = 1023

// Message is a pool node: an owned byte buffer linked into exactly one of
// the databuffer's FIFO chain or the pool's freelist.
type Message struct {
	buffer []byte
	size   int
	next   *Message
}

// arena is one slab of ArenaSize nodes. Arenas are allocated from the pool
// and linked into Pool.blocks; they are never individually reclaimed, only
// dropped (and so become collectible) when the whole Pool is destroyed.
type arena struct {
	next  *arena
	nodes [ArenaSize]Message
}

// Pool is a per-stream (or per-buffer-group) slab allocator of Message
// nodes. It is not safe for concurrent use; a Pool belongs to exactly one
// DataBuffer owner at a time, matching the single-stream ownership model
// of the surrounding framework.
type Pool struct {
	blocks   *arena
	freelist *Message
}

// NewPool returns an empty Pool.
func NewPool() *Pool {
	return &Pool{}
}

// acquire returns the head of the freelist if non-empty; otherwise it
// allocates one arena of ArenaSize nodes, links all but the first into a
// fresh freelist chain, prepends the arena to the pool's block list, and
// returns the first node.
func (p *Pool) acquire() *Message {
	if p.freelist != nil {
		var m = p.freelist
		p.freelist = m.next
		m.next = nil
		return m
	}

	var blk = &arena{}
	for i := 1; i < ArenaSize-1; i++ {
		blk.nodes[i].next = &blk.nodes[i+1]
	}
	blk.nodes[ArenaSize-1].next = nil

	blk.next = p.blocks
	p.blocks = blk
	p.freelist = &blk.nodes[1]

	return &blk.nodes[0]
}

// release clears m's buffer and size and prepends it to the freelist.
func (p *Pool) release(m *Message) {
	m.buffer = nil
	m.size = 0
	m.next = p.freelist
	p.freelist = m
}

// Destroy drops every arena the pool holds. Callers must ensure no
// DataBuffer still references nodes from this pool before calling it.
func (p *Pool) Destroy() {
	p.blocks = nil
	p.freelist = nil
}

// Allocated reports the total number of nodes ever carved out of arenas,
// whether currently in use or sitting on the freelist. Intended for
// leak-detection in tests, not production use.
func (p *Pool) Allocated() int {
	var n int
	for b := p.blocks; b != nil; b = b.next {
		n += ArenaSize
	}
	return n
}

// FreelistLen reports the number of nodes currently on the freelist.
// Intended for leak-detection in tests.
func (p *Pool) FreelistLen() int {
	var n int
	for m := p.freelist; m != nil; m = m.next {
		n++
	}
	return n
}
