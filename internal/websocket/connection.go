package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/staybridge/courier/internal/identity"
	"github.com/staybridge/courier/internal/wire"
)

// ErrNotOpen is returned by Send after the connection has closed.
var ErrNotOpen = errors.New("connection not open")

const (
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	pingInterval  = 54 * time.Second
	sendBuffer    = 256
)

// Connection wraps one WebSocket socket: a read loop that decodes inbound
// frames and hands them to the dispatcher, and a write loop that drains the
// send channel. It is dumb transport plus framing; no retry logic lives here.
type Connection struct {
	id         string
	conn       *websocket.Conn
	server     *Server
	userID     string // set by the registry on bind
	sendCh     chan []byte
	mu         sync.Mutex
	closed     bool
	lastActive time.Time
}

// NewConnection creates a connection wrapper around an upgraded socket.
func NewConnection(conn *websocket.Conn, server *Server) *Connection {
	return &Connection{
		id:         identity.NewConnectionID(),
		conn:       conn,
		server:     server,
		sendCh:     make(chan []byte, sendBuffer),
		lastActive: time.Now(),
	}
}

// ID returns the connection's runtime identifier.
func (c *Connection) ID() string {
	return c.id
}

// UserID returns the bound user identifier, empty until authenticated.
func (c *Connection) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Connection) setUserID(userID string) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

// LastActive returns the time of the last inbound frame or pong.
func (c *Connection) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastActive = time.Now()
	c.mu.Unlock()
}

// ReadLoop reads frames until the socket closes. A frame that fails to
// decode is reported to the peer and logged; the loop continues.
func (c *Connection) ReadLoop(ctx context.Context) error {
	defer func() {
		_ = c.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		_ = c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				return fmt.Errorf("read error: %w", err)
			}
			return nil
		}
		c.touch()

		env, err := wire.Decode(data)
		if err != nil {
			if errors.Is(err, wire.ErrUnknownType) {
				// Forward-compatible: log and skip.
				c.server.logger.Warn("ignoring unknown frame type",
					"conn_id", c.id, "type", env.Type)
				continue
			}
			c.server.logger.Warn("malformed frame",
				"conn_id", c.id, "error", err)
			_ = c.Send(wire.NewError("malformed frame"))
			continue
		}

		c.server.dispatcher.Dispatch(ctx, c, env)
	}
}

// WriteLoop drains the send channel and keeps the socket alive with pings.
func (c *Connection) WriteLoop(ctx context.Context) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case data, ok := <-c.sendCh:
			if !ok {
				return nil
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return fmt.Errorf("write error: %w", err)
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("ping error: %w", err)
			}
		}
	}
}

// Send encodes a wire frame and queues it. Returns ErrNotOpen once the
// connection has closed, and an error when the peer is too slow to drain
// the buffer.
func (c *Connection) Send(frame any) error {
	data, err := wire.Encode(frame)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrNotOpen
	}

	select {
	case c.sendCh <- data:
		return nil
	default:
		return fmt.Errorf("send buffer full")
	}
}

// Close tears the connection down, removes its registry binding, and fires
// the server's disconnect hook. Idempotent.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	userID := c.userID
	close(c.sendCh)
	c.mu.Unlock()

	c.server.sessions.Unbind(c)
	if userID != "" && c.server.onDisconnect != nil {
		c.server.onDisconnect(userID)
	}

	return c.conn.Close()
}
