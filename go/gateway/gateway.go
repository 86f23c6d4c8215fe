// Package gateway is the transport collaborator spec.md §6 describes but
// leaves out of scope: it owns the TCP accept loop and feeds raw,
// arbitrarily-fragmented reads into a per-connection databuffer.DataBuffer,
// extracting whole application frames and handing them to a Harbor as
// Envelopes. It exists to give databuffer.DataBuffer a real byte source to
// run against, mirroring the role gate/socket-server plays for the
// original framework's snlua services.
package gateway

import (
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/relayforge/actorcore/go/databuffer"
	"github.com/relayforge/actorcore/go/dispatch"
	"github.com/relayforge/actorcore/go/ops"
)

// HeaderWidth is the length-prefix width gateway connections use. The
// databuffer package itself is width-agnostic per call (spec.md §4.1);
// a gateway fixes one width for its wire protocol.
const HeaderWidth = 4

// frameHeaderSize is the fixed envelope header carried inside every
// length-prefixed frame: 1 byte type, 4 bytes session, 4 bytes dest
// handle, 4 bytes source handle, all big-endian. The remainder of the
// frame is the envelope payload.
const frameHeaderSize = 1 + 4 + 4 + 4

// Gateway accepts TCP connections and decodes length-prefixed frames from
// each, forwarding decoded Envelopes to a Harbor via Send. A Gateway
// does not itself read or write service handles; the destination handle
// travels inside every frame.
type Gateway struct {
	harbor dispatch.Dispatcher
	log    *ops.Logger

	mu   sync.Mutex
	ln   net.Listener
	wg   sync.WaitGroup
	done chan struct{}
}

// New returns a Gateway forwarding decoded frames to harbor.
func New(harbor dispatch.Dispatcher, log *ops.Logger) *Gateway {
	return &Gateway{harbor: harbor, log: log, done: make(chan struct{})}
}

// Serve listens on addr and accepts connections until Close is called.
// It blocks until the listener is closed.
func (g *Gateway) Serve(addr string) error {
	var ln, err = net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.ln = ln
	g.mu.Unlock()

	for {
		var conn, err = ln.Accept()
		if err != nil {
			select {
			case <-g.done:
				return nil
			default:
				return err
			}
		}
		g.wg.Add(1)
		go g.serveConn(conn)
	}
}

// Close stops accepting new connections and waits for every in-flight
// connection's goroutine to return. Open connections are not closed by
// Close; each goroutine returns once its peer closes the connection or a
// read or frame decode fails.
func (g *Gateway) Close() {
	close(g.done)
	g.mu.Lock()
	var ln = g.ln
	g.mu.Unlock()
	if ln != nil {
		ln.Close()
	}
	g.wg.Wait()
}

// serveConn reads raw chunks off conn into a dedicated DataBuffer and
// pool, extracting and dispatching whole frames until the connection
// closes or a frame fails to decode.
func (g *Gateway) serveConn(conn net.Conn) {
	defer g.wg.Done()
	defer conn.Close()

	var pool = databuffer.NewPool()
	defer pool.Destroy()
	var buf = databuffer.New(pool)
	defer buf.Clear()

	var chunk [4096]byte
	for {
		var n, err = conn.Read(chunk[:])
		if n > 0 {
			var payload = make([]byte, n)
			copy(payload, chunk[:n])
			buf.Push(payload)

			if derr := g.drainFrames(conn, buf); derr != nil {
				g.log.ScriptError(0, "gateway", derr)
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				g.log.ScriptError(0, "gateway", err)
			}
			return
		}
	}
}

// drainFrames extracts every whole frame currently buffered, decoding
// and forwarding each to the harbor before returning. It stops (without
// error) as soon as ReadHeader reports insufficient data, matching the
// sentinel-return contract of spec.md §4.1.
func (g *Gateway) drainFrames(conn net.Conn, buf *databuffer.DataBuffer) error {
	for {
		var n = buf.ReadHeader(HeaderWidth)
		if n < 0 {
			return nil
		}
		if n < frameHeaderSize {
			return io.ErrUnexpectedEOF
		}

		var frame = make([]byte, n)
		buf.Read(frame)
		buf.Reset()

		var msgType = frame[0]
		var session = binary.BigEndian.Uint32(frame[1:5])
		var dest = binary.BigEndian.Uint32(frame[5:9])
		var source = binary.BigEndian.Uint32(frame[9:13])
		var payload = frame[frameHeaderSize:]

		if err := g.harbor.Send(source, dest, dispatch.Envelope{
			Type:    msgType,
			Session: int(session),
			Payload: payload,
		}); err != nil {
			g.log.ScriptError(dest, "gateway", err)
		}
	}
}

// EncodeFrame builds one length-prefixed wire frame for type/session/
// dest/source/payload, the inverse of drainFrames' decode. Exposed for
// clients and tests that speak the gateway's wire protocol.
func EncodeFrame(msgType uint8, session, dest, source uint32, payload []byte) []byte {
	var body = make([]byte, frameHeaderSize+len(payload))
	body[0] = msgType
	binary.BigEndian.PutUint32(body[1:5], session)
	binary.BigEndian.PutUint32(body[5:9], dest)
	binary.BigEndian.PutUint32(body[9:13], source)
	copy(body[frameHeaderSize:], payload)

	var out = make([]byte, HeaderWidth+len(body))
	binary.BigEndian.PutUint32(out[:HeaderWidth], uint32(len(body)))
	copy(out[HeaderWidth:], body)
	return out
}
