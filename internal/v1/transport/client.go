package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lumaboard/whiteboard/internal/v1/logging"
	"github.com/lumaboard/whiteboard/internal/v1/metrics"
	"github.com/lumaboard/whiteboard/internal/v1/room"
	"github.com/lumaboard/whiteboard/internal/v1/wire"
)

// JoinTimeout is how long a connection may stay open without a successful
// join before it is closed.
const JoinTimeout = 10 * time.Second

// wsConnection defines the interface for WebSocket connection operations.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
}

// Client owns one WebSocket connection: readPump feeds validated frames into
// the room, writePump drains the send channel. It implements
// types.SessionConn for the room package.
type Client struct {
	conn    wsConnection
	room    *room.Room
	session *room.Session

	mu          sync.Mutex
	closed      bool
	closeCode   int
	closeReason string
	closeOnce   sync.Once

	joinTimer *time.Timer

	send chan []byte
}

func newClient(conn wsConnection, r *room.Room, ip string) *Client {
	c := &Client{
		conn: conn,
		room: r,
		send: make(chan []byte, 256),
	}
	c.session = r.Attach(c, ip)
	c.joinTimer = time.AfterFunc(JoinTimeout, c.joinTimedOut)
	return c
}

// Send enqueues a pre-serialized message. A full or closed channel drops the
// message; the connection's own close event cleans the session up.
func (c *Client) Send(data []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			logging.Warn(context.Background(), "recovered from send to closed client", zap.Any("panic", r))
		}
	}()

	select {
	case c.send <- data:
	default:
		logging.Warn(context.Background(), "client send channel full, dropping message",
			zap.String("board_id", c.room.BoardID))
	}
}

// Close records the close code and reason and closes the send channel.
// writePump drains remaining messages, writes the close frame, and tears the
// connection down. Idempotent.
func (c *Client) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.closeCode = code
		c.closeReason = reason
		c.mu.Unlock()
		close(c.send)
	})
}

// MarkJoined cancels the pending join timeout.
func (c *Client) MarkJoined() {
	c.joinTimer.Stop()
}

func (c *Client) joinTimedOut() {
	if c.session.Joined() {
		return
	}
	msg, _ := json.Marshal(wire.NewFatalError(c.room.BoardID, wire.CodeUnauthorized, "Join timeout"))
	c.Send(msg)
	c.Close(room.ClosePolicyViolation, "join timeout")
}

// readPump reads frames until the connection dies, validating each one
// before handing it to the room.
func (c *Client) readPump() {
	defer func() {
		c.joinTimer.Stop()
		c.room.Detach(context.Background(), c.session)
		// Close the send channel so writePump unwinds even when the peer
		// initiated the disconnect.
		c.Close(websocket.CloseNormalClosure, "")
		c.conn.Close()
		metrics.DecConnection()
	}()

	c.conn.SetReadLimit(wire.MaxMessageBytes)

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		if messageType == websocket.BinaryMessage {
			c.sendError(wire.NewFatalError(c.room.BoardID, wire.CodeBadRequest, "Binary frames are not supported"))
			c.Close(room.ClosePolicyViolation, "binary frames not supported")
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		msg, err := wire.Parse(data)
		if err != nil {
			if errors.Is(err, wire.ErrTooLarge) {
				c.sendError(wire.NewFatalError(c.room.BoardID, wire.CodePayloadTooLarge, "Message too large"))
				c.Close(websocket.CloseMessageTooBig, "message too large")
				return
			}
			// Protocol errors terminate the session.
			c.sendError(wire.NewFatalError(c.room.BoardID, wire.CodeBadRequest, err.Error()))
			c.Close(room.ClosePolicyViolation, "malformed message")
			return
		}

		c.room.Route(context.Background(), c.session, msg)
	}
}

// writePump serializes all writes to the connection. On channel close it
// flushes the close frame recorded by Close.
func (c *Client) writePump() {
	defer c.conn.Close()
	writeWait := 10 * time.Second

	for {
		message, ok := <-c.send
		if !ok {
			c.mu.Lock()
			code, reason := c.closeCode, c.closeReason
			c.mu.Unlock()
			if code == 0 {
				code = websocket.CloseNormalClosure
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
			return
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			logging.Error(context.Background(), "error writing message", zap.Error(err))
			return
		}
	}
}

func (c *Client) sendError(msg wire.ErrorMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.Send(data)
}
