package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/staybridge/courier/internal/identity"
	"github.com/staybridge/courier/internal/store"
	"github.com/staybridge/courier/internal/wire"
)

// Validation errors shared by the WebSocket path and the REST fallback.
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrBadUserID        = errors.New("invalid user identifier")
	ErrEmptyContent     = errors.New("content must not be empty")
	ErrNotReceiver      = errors.New("message is not addressed to this user")
)

// Dispatcher turns one decoded inbound frame plus its originating
// connection into persistence calls and outbound pushes. It is stateless:
// durable state lives in the store, routing state in the session registry.
type Dispatcher struct {
	store    store.Store
	sessions *SessionRegistry
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over the given store and registry.
func NewDispatcher(st store.Store, sessions *SessionRegistry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    st,
		sessions: sessions,
		logger:   logger,
	}
}

// Dispatch routes an inbound frame. A precondition violation yields a
// single error frame back to the originating connection and no side
// effect; the connection is never closed for a bad request.
func (d *Dispatcher) Dispatch(ctx context.Context, conn *Connection, env *wire.Envelope) {
	var err error
	switch env.Type {
	case wire.TypeAuth:
		err = d.handleAuth(conn, env)
	case wire.TypeNewMessage:
		err = d.handleNewMessage(ctx, conn, env)
	case wire.TypeMarkRead:
		err = d.handleMarkRead(ctx, conn, env)
	default:
		// Server-bound frames only; anything else is a client that echoed
		// a server frame. Ignore it.
		d.logger.Warn("ignoring non-request frame", "conn_id", conn.ID(), "type", env.Type)
		return
	}

	if err != nil {
		d.logger.Warn("request rejected",
			"conn_id", conn.ID(), "type", env.Type, "error", err)
		if sendErr := conn.Send(wire.NewError(err.Error())); sendErr != nil && !errors.Is(sendErr, ErrNotOpen) {
			d.logger.Warn("failed to deliver error frame",
				"conn_id", conn.ID(), "error", sendErr)
		}
	}
}

func (d *Dispatcher) handleAuth(conn *Connection, env *wire.Envelope) error {
	var req wire.Auth
	if err := env.Bind(&req); err != nil {
		return err
	}
	if !identity.ValidUserID(req.UserID) {
		return ErrBadUserID
	}

	d.sessions.Bind(req.UserID, conn)
	d.logger.Info("session bound", "user_id", req.UserID, "conn_id", conn.ID())

	return conn.Send(wire.NewAuthSuccess(req.UserID))
}

func (d *Dispatcher) handleNewMessage(ctx context.Context, conn *Connection, env *wire.Envelope) error {
	senderID := conn.UserID()
	if senderID == "" {
		return ErrNotAuthenticated
	}

	var req wire.NewMessage
	if err := env.Bind(&req); err != nil {
		return err
	}

	msg, err := d.CreateMessage(ctx, senderID, req.ReceiverID, req.Content)
	if err != nil {
		return err
	}

	// Acknowledge to the sender with the persisted message; the receiver
	// push already happened inside CreateMessage.
	if err := conn.Send(wire.NewMessageSent(toWire(msg))); err != nil && !errors.Is(err, ErrNotOpen) {
		d.logger.Warn("failed to deliver message_sent ack",
			"conn_id", conn.ID(), "message_id", msg.ID, "error", err)
	}
	return nil
}

func (d *Dispatcher) handleMarkRead(ctx context.Context, conn *Connection, env *wire.Envelope) error {
	userID := conn.UserID()
	if userID == "" {
		return ErrNotAuthenticated
	}

	var req wire.MarkRead
	if err := env.Bind(&req); err != nil {
		return err
	}

	msg, err := d.ReadMessage(ctx, userID, req.MessageID)
	if err != nil {
		return err
	}

	if err := conn.Send(wire.NewMarkReadStatus(true, msg.ID)); err != nil && !errors.Is(err, ErrNotOpen) {
		d.logger.Warn("failed to deliver mark_read_status",
			"conn_id", conn.ID(), "message_id", msg.ID, "error", err)
	}
	return nil
}

// CreateMessage validates, persists, and delivers a new message. The
// receiver gets a live push when bound; otherwise delivery is skipped and
// the receiver sees the message on its next fetch. Shared by the WebSocket
// dispatch path and the REST fallback.
//
// Receiver existence is deliberately not checked: history must survive
// receiver account deletion, so any well-formed identifier is accepted.
func (d *Dispatcher) CreateMessage(ctx context.Context, senderID, receiverID, content string) (*store.Message, error) {
	if !identity.ValidUserID(receiverID) {
		return nil, fmt.Errorf("%w: %q", ErrBadUserID, receiverID)
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}

	msg, err := d.store.InsertMessage(ctx, senderID, receiverID, content)
	if err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	d.pushTo(receiverID, wire.NewMessagePush(toWire(msg)))
	return msg, nil
}

// ReadMessage validates that userID is the message's receiver, flips the
// read flag, and notifies the original sender when live. Shared by the
// WebSocket dispatch path and the REST fallback.
func (d *Dispatcher) ReadMessage(ctx context.Context, userID, messageID string) (*store.Message, error) {
	msg, err := d.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.ReceiverID != userID {
		return nil, ErrNotReceiver
	}

	if err := d.store.MarkRead(ctx, messageID); err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	msg.Read = true

	d.pushTo(msg.SenderID, wire.NewMessageRead(msg.ID))
	return msg, nil
}

// pushTo delivers a frame to userID's live connection, if any. Absent or
// failing peers are skipped, never queued or awaited.
func (d *Dispatcher) pushTo(userID string, frame any) {
	conn, ok := d.sessions.Lookup(userID)
	if !ok {
		return
	}
	if err := conn.Send(frame); err != nil {
		d.logger.Warn("push skipped",
			"user_id", userID, "conn_id", conn.ID(), "error", err)
	}
}

// toWire converts a stored message to its wire representation.
func toWire(msg *store.Message) wire.Message {
	return wire.Message{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Content:    msg.Content,
		Read:       msg.Read,
		CreatedAt:  msg.CreatedAt.Format(time.RFC3339Nano),
	}
}
