// Package client implements the client side of the messaging transport:
// connection lifecycle, automatic reconnect with a fixed delay,
// re-authentication after reconnect, and a typed event fan-out for UI
// consumers.
package client

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/staybridge/courier/internal/wire"
)

// State is the client's connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnectedUnauthenticated
	StateConnectedAuthenticated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnectedUnauthenticated:
		return "connected-unauthenticated"
	case StateConnectedAuthenticated:
		return "connected-authenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Client maintains at most one live connection to the transport server.
// Reconnection is timer-driven and single-shot: each unplanned transition
// to Disconnected schedules exactly one attempt after the fixed delay,
// provided a user identifier is known.
type Client struct {
	url    string
	delay  time.Duration
	logger *slog.Logger
	events *listeners

	mu        sync.Mutex
	state     State
	conn      *websocket.Conn
	userID    string
	reconnect *time.Timer // nil when no attempt is pending
	gen       uint64      // bumped on every attempt start and every Disconnect
	suppress  bool        // set by Disconnect when a live socket's close is pending

	wmu sync.Mutex // serializes socket writes
}

// New creates a client for the given WebSocket URL (e.g.
// "ws://host:port/ws"). reconnectDelay is the fixed wait between a
// disconnect and the single scheduled reconnect attempt.
func New(url string, reconnectDelay time.Duration, logger *slog.Logger) *Client {
	return &Client{
		url:    url,
		delay:  reconnectDelay,
		logger: logger,
		events: newListeners(),
	}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// On registers a handler for an event. The returned subscription removes
// exactly this registration.
func (c *Client) On(event Event, h Handler) Subscription {
	return c.events.add(event, h)
}

// Off removes a subscription. Removing one that was never registered, or
// removing twice, is a no-op.
func (c *Client) Off(sub Subscription) {
	c.events.remove(sub)
}

// Connect starts a connection attempt unless one is already underway or
// established.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	if c.reconnect != nil {
		// A manual connect takes over from a pending reconnect.
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.state = StateConnecting
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	go c.dial(gen)
}

// Authenticate stores the user identifier and binds the current connection
// to it. Idempotent: when already connected it re-sends auth immediately;
// when disconnected it triggers Connect and auth follows once the socket
// opens.
func (c *Client) Authenticate(userID string) {
	c.mu.Lock()
	c.userID = userID
	state := c.state
	c.mu.Unlock()

	switch state {
	case StateConnectedUnauthenticated, StateConnectedAuthenticated:
		c.sendAuth(userID)
	case StateDisconnected:
		c.Connect()
	}
	// Connecting: dial sends auth once the socket opens.
}

// SendMessage sends a chat message to receiverID. When the client is not
// authenticated the message is dropped with a logged warning; nothing is
// queued across disconnects.
func (c *Client) SendMessage(receiverID, content string) {
	if !c.requireAuthenticated("send message") {
		return
	}
	if err := c.writeFrame(wire.NewNewMessage(receiverID, content)); err != nil {
		c.logger.Warn("send message failed", "receiver_id", receiverID, "error", err)
	}
}

// MarkRead reports a message as read. Same precondition as SendMessage.
func (c *Client) MarkRead(messageID string) {
	if !c.requireAuthenticated("mark read") {
		return
	}
	if err := c.writeFrame(wire.NewMarkRead(messageID)); err != nil {
		c.logger.Warn("mark read failed", "message_id", messageID, "error", err)
	}
}

// Disconnect closes the connection, cancels any pending reconnect, and
// settles in Disconnected without scheduling another attempt.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.gen++ // a dial still in flight sees a stale generation and abandons its socket
	conn := c.conn
	if conn != nil {
		c.suppress = true
	} else {
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	if conn != nil {
		// The read loop notices the closed socket and finishes the
		// transition (close event, no reschedule).
		_ = conn.Close()
	}
}

func (c *Client) requireAuthenticated(action string) bool {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state != StateConnectedAuthenticated {
		c.logger.Warn("dropping request: not authenticated", "action", action, "state", state.String())
		return false
	}
	return true
}

// dial performs one connection attempt. gen identifies the attempt: when a
// Disconnect or a newer attempt has bumped the generation by the time the
// handshake finishes, the socket belongs to nobody and is closed without
// touching the lifecycle state. Runs outside the lock.
func (c *Client) dial(gen uint64) {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)

	c.mu.Lock()
	if gen != c.gen {
		// Superseded while dialing; whoever bumped the generation owns the
		// state now.
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		c.state = StateDisconnected
		if c.userID != "" {
			c.scheduleReconnectLocked()
		}
		c.mu.Unlock()
		c.logger.Warn("connect failed", "url", c.url, "error", err)
		c.events.emit(EventClose, nil)
		return
	}

	c.conn = conn
	c.state = StateConnectedUnauthenticated
	userID := c.userID
	c.mu.Unlock()

	c.events.emit(EventOpen, nil)
	go c.readLoop(conn)

	if userID != "" {
		c.sendAuth(userID)
	}
}

func (c *Client) sendAuth(userID string) {
	if err := c.writeFrame(wire.NewAuth(userID)); err != nil {
		c.logger.Warn("auth send failed", "user_id", userID, "error", err)
	}
}

var errNotConnected = errors.New("not connected")

func (c *Client) writeFrame(frame any) error {
	data, err := wire.Encode(frame)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop decodes server frames until the socket dies, then runs the
// disconnect transition.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}

		env, err := wire.Decode(data)
		if err != nil {
			if errors.Is(err, wire.ErrUnknownType) {
				c.logger.Warn("ignoring unknown frame type", "type", env.Type)
				continue
			}
			c.logger.Warn("malformed server frame", "error", err)
			continue
		}

		c.handleFrame(env)
	}

	c.handleClose(conn)
}

func (c *Client) handleFrame(env *wire.Envelope) {
	if env.Type == wire.TypeAuthSuccess {
		c.mu.Lock()
		if c.state == StateConnectedUnauthenticated {
			c.state = StateConnectedAuthenticated
		}
		c.mu.Unlock()
	}

	c.events.emit(EventMessage, env)

	switch env.Type {
	case wire.TypeNewMessage:
		c.events.emit(EventNewMessage, env)
	case wire.TypeMessageSent:
		c.events.emit(EventMessageSent, env)
	case wire.TypeMessageRead:
		c.events.emit(EventMessageRead, env)
	}
}

// handleClose runs the transition into Disconnected for one dead socket
// and schedules the single reconnect attempt when appropriate.
func (c *Client) handleClose(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn != conn {
		// A stale read loop racing a newer connection; nothing to do.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateDisconnected

	if !c.suppress && c.userID != "" {
		c.scheduleReconnectLocked()
	}
	c.suppress = false
	c.mu.Unlock()

	_ = conn.Close()
	c.events.emit(EventClose, nil)
}

// scheduleReconnectLocked arms the reconnect timer. At most one timer is
// pending at a time; entering Disconnected while one is armed does not
// schedule a second. Caller holds c.mu.
func (c *Client) scheduleReconnectLocked() {
	if c.reconnect != nil {
		return
	}

	armed := c.gen
	c.reconnect = time.AfterFunc(c.delay, func() {
		c.mu.Lock()
		c.reconnect = nil
		// The generation check catches a Disconnect or manual Connect that
		// raced the timer firing past its Stop.
		if armed != c.gen || c.state != StateDisconnected || c.userID == "" {
			c.mu.Unlock()
			return
		}
		c.state = StateConnecting
		c.gen++
		attempt := c.gen
		c.mu.Unlock()

		c.logger.Info("reconnecting", "url", c.url)
		c.dial(attempt)
	})
}
