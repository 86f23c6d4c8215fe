package gateway

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relayforge/actorcore/go/config"
	"github.com/relayforge/actorcore/go/databuffer"
	"github.com/relayforge/actorcore/go/dispatch"
	"github.com/relayforge/actorcore/go/ops"
)

func TestEncodeFrameRoundTripsThroughDrainFrames(t *testing.T) {
	var harbor = dispatch.NewHarbor(&config.Config{Workers: 1}, ops.New())
	defer harbor.Shutdown()

	var dest = harbor.Spawn()
	var received = make(chan string, 1)
	harbor.Callback(dest, func(msgType uint8, session int, source uint32, payload []byte, dontCopy bool) {
		received <- string(payload)
	})

	var gw = New(harbor, ops.New())
	var ln, err = net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	gw.mu.Lock()
	gw.ln = ln
	gw.mu.Unlock()

	go func() {
		var conn, err = ln.Accept()
		if err != nil {
			return
		}
		gw.wg.Add(1)
		gw.serveConn(conn)
	}()

	var client, err2 = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err2)
	defer client.Close()

	var frame = EncodeFrame(1, 42, dest, 0, []byte("hello"))
	_, err = client.Write(frame[:3])
	require.NoError(t, err)
	_, err = client.Write(frame[3:])
	require.NoError(t, err)

	select {
	case got := <-received:
		require.Equal(t, "hello", got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivered payload")
	}
}

func TestDrainFramesRejectsUndersizedFrame(t *testing.T) {
	var harbor = dispatch.NewHarbor(&config.Config{Workers: 1}, ops.New())
	defer harbor.Shutdown()

	var gw = New(harbor, ops.New())

	var db = databuffer.New(databuffer.NewPool())
	var short = make([]byte, 4+2)
	short[3] = 2 // length prefix of 2, less than frameHeaderSize, plus its 2 payload bytes
	db.Push(short)

	var err = gw.drainFrames(nil, db)
	require.Error(t, err)
}
