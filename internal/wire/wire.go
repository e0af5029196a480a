// Package wire defines the closed set of JSON frames exchanged over a chat
// transport connection. Every frame is a single self-contained JSON object
// with a top-level "type" discriminator; there are no multi-frame messages.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Frame discriminators. The same "new_message" tag is used in both
// directions: client→server it carries {receiverId, content}, server→client
// it carries the full persisted message. Direction context disambiguates.
const (
	TypeAuth           = "auth"
	TypeNewMessage     = "new_message"
	TypeMarkRead       = "mark_read"
	TypeAuthSuccess    = "auth_success"
	TypeMessageSent    = "message_sent"
	TypeMessageRead    = "message_read"
	TypeMarkReadStatus = "mark_read_status"
	TypeError          = "error"
)

// ErrUnknownType is returned by Decode for a discriminator outside the
// closed set. Callers log and ignore such frames so the protocol can evolve
// without breaking older peers.
var ErrUnknownType = errors.New("unknown frame type")

// knownTypes is the closed set of valid discriminators.
var knownTypes = map[string]bool{
	TypeAuth:           true,
	TypeNewMessage:     true,
	TypeMarkRead:       true,
	TypeAuthSuccess:    true,
	TypeMessageSent:    true,
	TypeMessageRead:    true,
	TypeMarkReadStatus: true,
	TypeError:          true,
}

// Message is the persisted chat message as it appears on the wire.
type Message struct {
	ID         string `json:"id"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
	Read       bool   `json:"read"`
	CreatedAt  string `json:"createdAt"`
}

// Auth binds a connection to a user identifier. Client→server.
type Auth struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// NewMessage asks the server to persist and deliver a message. Client→server.
type NewMessage struct {
	Type       string `json:"type"`
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
}

// MarkRead asks the server to flip a message's read flag. Client→server.
type MarkRead struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
}

// AuthSuccess confirms an auth binding. Server→client.
type AuthSuccess struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// MessagePush carries a newly persisted message to its receiver.
// Server→client, discriminator "new_message".
type MessagePush struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

// MessageSent acknowledges a new_message request to its sender, carrying the
// persisted message with the server-assigned id and timestamp.
type MessageSent struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

// MessageRead notifies a message's original sender that it was read.
type MessageRead struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
}

// MarkReadStatus acknowledges a mark_read request to the reader.
type MarkReadStatus struct {
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
}

// Error reports a rejected request. It never closes the connection by itself.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Constructors fill in the discriminator so callers cannot forget it.

func NewAuth(userID string) Auth { return Auth{Type: TypeAuth, UserID: userID} }

func NewNewMessage(receiverID, content string) NewMessage {
	return NewMessage{Type: TypeNewMessage, ReceiverID: receiverID, Content: content}
}

func NewMarkRead(messageID string) MarkRead {
	return MarkRead{Type: TypeMarkRead, MessageID: messageID}
}

func NewAuthSuccess(userID string) AuthSuccess {
	return AuthSuccess{Type: TypeAuthSuccess, UserID: userID}
}

func NewMessagePush(msg Message) MessagePush {
	return MessagePush{Type: TypeNewMessage, Message: msg}
}

func NewMessageSent(msg Message) MessageSent {
	return MessageSent{Type: TypeMessageSent, Message: msg}
}

func NewMessageRead(messageID string) MessageRead {
	return MessageRead{Type: TypeMessageRead, MessageID: messageID}
}

func NewMarkReadStatus(success bool, messageID string) MarkReadStatus {
	return MarkReadStatus{Type: TypeMarkReadStatus, Success: success, MessageID: messageID}
}

func NewError(message string) Error { return Error{Type: TypeError, Message: message} }

// Envelope is a decoded frame: the discriminator plus the raw bytes, kept
// undecoded until the receiver knows which payload struct applies.
type Envelope struct {
	Type string
	Raw  json.RawMessage
}

// Decode parses a single frame and returns its envelope.
// A malformed frame yields a decode error; a well-formed frame with an
// unrecognized discriminator yields ErrUnknownType (with the envelope still
// populated so callers can log the tag).
func Decode(data []byte) (*Envelope, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if head.Type == "" {
		return nil, fmt.Errorf("decode frame: missing type field")
	}

	env := &Envelope{Type: head.Type, Raw: json.RawMessage(data)}
	if !knownTypes[head.Type] {
		return env, fmt.Errorf("decode frame %q: %w", head.Type, ErrUnknownType)
	}
	return env, nil
}

// Bind unmarshals the envelope's payload into v.
func (e *Envelope) Bind(v any) error {
	if err := json.Unmarshal(e.Raw, v); err != nil {
		return fmt.Errorf("bind %s frame: %w", e.Type, err)
	}
	return nil
}

// Encode marshals a frame struct for transmission.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}
