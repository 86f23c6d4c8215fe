package databuffer

import "fmt"

// DataBuffer is the per-stream framing state. head..tail is a FIFO of
// Message nodes; offset is the byte cursor within head's buffer; size is
// the total unread byte count across all nodes; expectedHeader is 0 when
// no frame is being assembled, otherwise the decoded payload length of
// the frame currently awaited.
//
// A DataBuffer is owned by a single stream at a time and needs no
// internal locking.
type DataBuffer struct {
	pool *Pool

	expectedHeader int
	offset         int
	size           int
	head, tail     *Message
}

// New returns a DataBuffer backed by pool.
func New(pool *Pool) *DataBuffer {
	return &DataBuffer{pool: pool}
}

// Size reports the total unread byte count currently buffered.
func (d *DataBuffer) Size() int {
	return d.size
}

// Push takes ownership of payload and appends it as a new Message node to
// the tail of the FIFO.
func (d *DataBuffer) Push(payload []byte) {
	var m = d.pool.acquire()
	m.buffer = payload
	m.size = len(payload)
	m.next = nil

	d.size += m.size
	if d.head == nil {
		d.head, d.tail = m, m
	} else {
		d.tail.next = m
		d.tail = m
	}
}

// Read copies exactly len(dst) bytes from the FIFO into dst, advancing
// across node boundaries as needed, returning exhausted nodes to the
// pool. Calling Read with len(dst) > d.Size() is a programming error and
// panics: the framing layer must certify availability via ReadHeader
// before calling Read.
func (d *DataBuffer) Read(dst []byte) {
	var sz = len(dst)
	if sz > d.size {
		panic(fmt.Sprintf("databuffer: read of %d bytes exceeds buffered %d", sz, d.size))
	}
	d.size -= sz

	for sz > 0 {
		var current = d.head
		var avail = current.size - d.offset

		if avail > sz {
			copy(dst, current.buffer[d.offset:d.offset+sz])
			d.offset += sz
			return
		}

		copy(dst, current.buffer[d.offset:d.offset+avail])
		dst = dst[avail:]
		sz -= avail
		d.offset = 0
		d.returnHead()
	}
}

// returnHead releases the head node back to the pool and advances head to
// the next node in the chain (or empties the chain entirely).
func (d *DataBuffer) returnHead() {
	var m = d.head
	if m.next == nil {
		d.head, d.tail = nil, nil
	} else {
		d.head = m.next
	}
	d.pool.release(m)
}

// ReadHeader decodes the width-byte (2 or 4) big-endian length prefix of
// the frame currently being assembled. It returns -1 ("need more data")
// without mutating state when insufficient bytes are buffered. Once the
// length is known, it returns that length as soon as the full payload is
// buffered, or -1 again while waiting for the rest of it. ReadHeader never
// consumes the payload itself; callers follow a successful (non -1)
// return with Read(dst[:n]) and then Reset.
func (d *DataBuffer) ReadHeader(width int) int {
	if width != 2 && width != 4 {
		panic(fmt.Sprintf("databuffer: invalid header width %d", width))
	}

	if d.expectedHeader == 0 {
		if d.size < width {
			return -1
		}

		var raw [4]byte
		d.Read(raw[:width])

		var v int
		for i := 0; i < width; i++ {
			v = v<<8 | int(raw[i])
		}
		d.expectedHeader = v
	}

	if d.size < d.expectedHeader {
		return -1
	}
	return d.expectedHeader
}

// Reset clears the currently-decoded frame length, making the buffer
// ready to decode the next frame's header. Bytes already buffered belong
// to the next frame (or later ones).
func (d *DataBuffer) Reset() {
	d.expectedHeader = 0
}

// Clear returns every buffered node to the pool and zeros all fields.
func (d *DataBuffer) Clear() {
	for d.head != nil {
		d.returnHead()
	}
	d.offset = 0
	d.size = 0
	d.expectedHeader = 0
}
