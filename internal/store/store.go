// Package store persists chat messages and read state. The transport core
// talks to it through the Store interface; the SQLite implementation in
// this package is the single-process shared store the server runs with.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a message id does not exist.
var ErrNotFound = errors.New("message not found")

// Message is a persisted chat message between two users.
type Message struct {
	ID         string
	SenderID   string
	ReceiverID string
	Content    string
	Read       bool
	CreatedAt  time.Time
}

// Store is the key-based persistence API used by the dispatcher and the
// REST fallback. Implementations must make each operation individually
// atomic; the transport layers no additional locking on top.
type Store interface {
	// InsertMessage persists a new message with read=false and a
	// server-assigned id and timestamp, and returns the stored row.
	InsertMessage(ctx context.Context, senderID, receiverID, content string) (*Message, error)

	// GetMessage returns a message by id, or ErrNotFound.
	GetMessage(ctx context.Context, id string) (*Message, error)

	// MarkRead flips a message's read flag to true. Marking an
	// already-read message succeeds (idempotent). Returns ErrNotFound
	// for an unknown id.
	MarkRead(ctx context.Context, id string) error

	// ListBetween returns the most recent messages exchanged between two
	// users (either direction), oldest first, capped at limit.
	ListBetween(ctx context.Context, userA, userB string, limit int) ([]*Message, error)

	// ListForUser returns the most recent messages sent or received by a
	// user, oldest first, capped at limit.
	ListForUser(ctx context.Context, userID string, limit int) ([]*Message, error)

	Close() error
}
