package transport

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lumaboard/whiteboard/internal/v1/room"
	"github.com/lumaboard/whiteboard/internal/v1/wire"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type scriptFrame struct {
	messageType int
	data        []byte
}

// scriptConn replays a fixed sequence of inbound frames, then blocks until
// released (as a real connection would block between frames).
type scriptConn struct {
	mu      sync.Mutex
	frames  []scriptFrame
	idx     int
	release chan struct{}
	written []scriptFrame
	closed  bool
}

func newScriptConn(frames ...scriptFrame) *scriptConn {
	return &scriptConn{frames: frames, release: make(chan struct{})}
}

func (c *scriptConn) ReadMessage() (int, []byte, error) {
	c.mu.Lock()
	if c.idx < len(c.frames) {
		f := c.frames[c.idx]
		c.idx++
		c.mu.Unlock()
		return f.messageType, f.data, nil
	}
	c.mu.Unlock()
	<-c.release
	return 0, nil, errors.New("connection closed by peer")
}

func (c *scriptConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.written = append(c.written, scriptFrame{messageType: messageType, data: cp})
	return nil
}

func (c *scriptConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *scriptConn) SetWriteDeadline(time.Time) error { return nil }
func (c *scriptConn) SetReadLimit(int64)               {}

func (c *scriptConn) writtenFrames() []scriptFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]scriptFrame(nil), c.written...)
}

// lastCloseCode extracts the status code from the final written close frame.
func (c *scriptConn) lastCloseCode(t *testing.T) int {
	t.Helper()
	frames := c.writtenFrames()
	require.NotEmpty(t, frames)
	last := frames[len(frames)-1]
	require.Equal(t, websocket.CloseMessage, last.messageType)
	require.GreaterOrEqual(t, len(last.data), 2)
	return int(binary.BigEndian.Uint16(last.data[:2]))
}

func runPumps(t *testing.T, conn *scriptConn) *Client {
	t.Helper()
	r := room.NewRoom("board-1", nil, nil, nil, nil)
	c := newClient(conn, r, "1.2.3.4")

	writeDone := make(chan struct{})
	go func() {
		c.writePump()
		close(writeDone)
	}()
	close(conn.release)
	c.readPump()

	select {
	case <-writeDone:
	case <-time.After(2 * time.Second):
		t.Fatal("writePump did not exit after readPump returned")
	}
	return c
}

func TestClient_DisconnectReleasesWritePump(t *testing.T) {
	conn := newScriptConn()
	runPumps(t, conn)

	// The peer went away without a close handshake; we still flush a normal
	// close frame and unwind.
	assert.Equal(t, websocket.CloseNormalClosure, conn.lastCloseCode(t))
	assert.True(t, conn.closed)
}

func TestClient_BadJSONClosesSession(t *testing.T) {
	conn := newScriptConn(scriptFrame{websocket.TextMessage, []byte(`{"type":`)})
	runPumps(t, conn)

	var errFrame wire.ErrorMessage
	found := false
	for _, f := range conn.writtenFrames() {
		if f.messageType != websocket.TextMessage {
			continue
		}
		if json.Unmarshal(f.data, &errFrame) == nil && errFrame.Type == wire.TypeError {
			found = true
			break
		}
	}
	require.True(t, found, "a final error frame precedes the close")
	assert.Equal(t, wire.CodeBadRequest, errFrame.Code)
	assert.True(t, errFrame.Fatal)
	assert.Equal(t, room.ClosePolicyViolation, conn.lastCloseCode(t))
}

func TestClient_UnknownTypeClosesSession(t *testing.T) {
	conn := newScriptConn(scriptFrame{websocket.TextMessage, []byte(`{"type":"teleport"}`)})
	runPumps(t, conn)

	assert.Equal(t, room.ClosePolicyViolation, conn.lastCloseCode(t))
}

func TestClient_BinaryFrameClosesSession(t *testing.T) {
	conn := newScriptConn(scriptFrame{websocket.BinaryMessage, []byte{0x01, 0x02}})
	runPumps(t, conn)

	assert.Equal(t, room.ClosePolicyViolation, conn.lastCloseCode(t))
}
