package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/staybridge/courier/internal/identity"
	"github.com/staybridge/courier/internal/jsonl"
)

// SQLiteStore persists messages in SQLite and appends an audit event per
// write to events.jsonl in the same directory.
type SQLiteStore struct {
	db    *sql.DB
	audit *jsonl.Writer
}

// Open opens (or creates) the store under dataDir.
func Open(dataDir string) (*SQLiteStore, error) {
	db, err := OpenDB(filepath.Join(dataDir, "messages.db"))
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	audit, err := jsonl.NewWriter(filepath.Join(dataDir, "events.jsonl"))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create audit log: %w", err)
	}

	return &SQLiteStore{db: db, audit: audit}, nil
}

// Close closes the database and the audit log.
func (s *SQLiteStore) Close() error {
	if err := s.audit.Close(); err != nil {
		_ = s.db.Close()
		return fmt.Errorf("close audit log: %w", err)
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// InsertMessage persists a new message with a server-assigned id and
// timestamp and read=false.
func (s *SQLiteStore) InsertMessage(ctx context.Context, senderID, receiverID, content string) (*Message, error) {
	msg := &Message{
		ID:         identity.NewMessageID(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Read:       false,
		CreatedAt:  time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (message_id, sender_id, receiver_id, content, read, created_at)
		 VALUES (?, ?, ?, ?, 0, ?)`,
		msg.ID, msg.SenderID, msg.ReceiverID, msg.Content, msg.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	s.auditEvent("message.create", msg.ID, map[string]any{
		"sender_id":   msg.SenderID,
		"receiver_id": msg.ReceiverID,
	})

	return msg, nil
}

// GetMessage returns a message by id.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT message_id, sender_id, receiver_id, content, read, created_at
		 FROM messages WHERE message_id = ?`, id)

	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return msg, nil
}

// MarkRead flips the read flag. Already-read is not an error.
func (s *SQLiteStore) MarkRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET read = 1 WHERE message_id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark read %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark read %s: %w", id, err)
	}
	if affected == 0 {
		// Distinguish missing from already-read: UPDATE touches the row
		// either way in SQLite, but be defensive about driver behavior.
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE message_id = ?`, id).Scan(&exists)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("mark read %s: %w", id, err)
		}
	}

	s.auditEvent("message.read", id, nil)
	return nil
}

// ListBetween returns messages exchanged between two users, oldest first.
func (s *SQLiteStore) ListBetween(ctx context.Context, userA, userB string, limit int) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, sender_id, receiver_id, content, read, created_at
		 FROM messages
		 WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		 ORDER BY created_at DESC, message_id DESC
		 LIMIT ?`,
		userA, userB, userB, userA, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list messages between %s and %s: %w", userA, userB, err)
	}
	return collectMessages(rows)
}

// ListForUser returns messages sent or received by a user, oldest first.
func (s *SQLiteStore) ListForUser(ctx context.Context, userID string, limit int) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, sender_id, receiver_id, content, read, created_at
		 FROM messages
		 WHERE sender_id = ? OR receiver_id = ?
		 ORDER BY created_at DESC, message_id DESC
		 LIMIT ?`,
		userID, userID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", userID, err)
	}
	return collectMessages(rows)
}

// auditEvent appends a line to the audit log. Audit failures are swallowed:
// the SQLite row is the source of truth and a full disk must not fail the
// user's request twice.
func (s *SQLiteStore) auditEvent(eventType, messageID string, extra map[string]any) {
	event := map[string]any{
		"type":       eventType,
		"message_id": messageID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range extra {
		event[k] = v
	}
	_ = s.audit.Append(event)
}

const defaultListLimit = 50

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

// scanner abstracts *sql.Row and *sql.Rows for scanMessage.
type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*Message, error) {
	var msg Message
	var read int
	var createdAt string
	if err := row.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &read, &createdAt); err != nil {
		return nil, err
	}
	msg.Read = read != 0

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	msg.CreatedAt = ts
	return &msg, nil
}

func collectMessages(rows *sql.Rows) ([]*Message, error) {
	defer func() { _ = rows.Close() }()

	var newest []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		newest = append(newest, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// Query returns newest first to honor the limit; present oldest first.
	for i, j := 0, len(newest)-1; i < j; i, j = i+1, j-1 {
		newest[i], newest[j] = newest[j], newest[i]
	}
	return newest, nil
}
