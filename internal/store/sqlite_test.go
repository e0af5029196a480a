package store

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertMessageAssignsIDAndTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg, err := s.InsertMessage(ctx, "user:alice", "user:bob", "hello")
	if err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}
	if msg.ID == "" {
		t.Error("expected server-assigned id")
	}
	if msg.CreatedAt.IsZero() {
		t.Error("expected server-assigned timestamp")
	}
	if msg.Read {
		t.Error("new message must start unread")
	}

	got, err := s.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if got.SenderID != "user:alice" || got.ReceiverID != "user:bob" || got.Content != "hello" {
		t.Errorf("stored message mismatch: %+v", got)
	}
}

func TestInsertTimestampsNonDecreasing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var prev *Message
	for i := 0; i < 20; i++ {
		msg, err := s.InsertMessage(ctx, "user:alice", "user:bob", "tick")
		if err != nil {
			t.Fatalf("InsertMessage failed: %v", err)
		}
		if prev != nil && msg.CreatedAt.Before(prev.CreatedAt) {
			t.Fatalf("timestamps decreased: %v then %v", prev.CreatedAt, msg.CreatedAt)
		}
		prev = msg
	}
}

func TestGetMessageNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetMessage(context.Background(), "msg_missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg, err := s.InsertMessage(ctx, "user:alice", "user:bob", "hello")
	if err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}

	// Marking twice succeeds both times; already-read is not an error.
	for i := 0; i < 2; i++ {
		if err := s.MarkRead(ctx, msg.ID); err != nil {
			t.Fatalf("MarkRead call %d failed: %v", i+1, err)
		}
		got, err := s.GetMessage(ctx, msg.ID)
		if err != nil {
			t.Fatalf("GetMessage failed: %v", err)
		}
		if !got.Read {
			t.Fatalf("expected read=true after call %d", i+1)
		}
	}
}

func TestMarkReadUnknownID(t *testing.T) {
	s := newTestStore(t)

	err := s.MarkRead(context.Background(), "msg_missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListBetween(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.InsertMessage(ctx, "user:alice", "user:bob", "one"); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}
	if _, err := s.InsertMessage(ctx, "user:bob", "user:alice", "two"); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}
	// A message with a third party must not appear.
	if _, err := s.InsertMessage(ctx, "user:alice", "user:carol", "noise"); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}

	msgs, err := s.ListBetween(ctx, "user:alice", "user:bob", 0)
	if err != nil {
		t.Fatalf("ListBetween failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	// Oldest first.
	if msgs[0].Content != "one" || msgs[1].Content != "two" {
		t.Errorf("unexpected order: %q, %q", msgs[0].Content, msgs[1].Content)
	}
}

func TestListBetweenLimitKeepsNewest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, content := range []string{"a", "b", "c"} {
		if _, err := s.InsertMessage(ctx, "user:alice", "user:bob", content); err != nil {
			t.Fatalf("InsertMessage failed: %v", err)
		}
	}

	msgs, err := s.ListBetween(ctx, "user:alice", "user:bob", 2)
	if err != nil {
		t.Fatalf("ListBetween failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "b" || msgs[1].Content != "c" {
		t.Errorf("limit should keep the newest messages, got %q, %q", msgs[0].Content, msgs[1].Content)
	}
}

func TestListForUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.InsertMessage(ctx, "user:alice", "user:bob", "sent"); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}
	if _, err := s.InsertMessage(ctx, "user:carol", "user:alice", "received"); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}
	if _, err := s.InsertMessage(ctx, "user:bob", "user:carol", "other"); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}

	msgs, err := s.ListForUser(ctx, "user:alice", 0)
	if err != nil {
		t.Fatalf("ListForUser failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
}

func TestSelfMessagingAllowed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg, err := s.InsertMessage(ctx, "user:alice", "user:alice", "note to self")
	if err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}

	msgs, err := s.ListBetween(ctx, "user:alice", "user:alice", 0)
	if err != nil {
		t.Fatalf("ListBetween failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != msg.ID {
		t.Errorf("expected the self-message back, got %d messages", len(msgs))
	}
}

func TestAuditLogWritten(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	msg, err := s.InsertMessage(ctx, "user:alice", "user:bob", "hello")
	if err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}
	if err := s.MarkRead(ctx, msg.ID); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "events.jsonl"))
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	defer func() { _ = f.Close() }()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
	}
	if lines != 2 {
		t.Errorf("expected 2 audit events, got %d", lines)
	}
}

func TestMigrateExistingDatabase(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	msg, err := s.InsertMessage(context.Background(), "user:alice", "user:bob", "survives reopen")
	if err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopen: Migrate must accept the existing schema and keep the data.
	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer func() { _ = s2.Close() }()

	got, err := s2.GetMessage(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("GetMessage after reopen: %v", err)
	}
	if got.Content != "survives reopen" {
		t.Errorf("unexpected content %q", got.Content)
	}
}
