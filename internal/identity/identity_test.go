package identity

import (
	"strings"
	"testing"
)

func TestNewMessageIDFormat(t *testing.T) {
	id := NewMessageID()
	if !strings.HasPrefix(id, "msg_") {
		t.Errorf("expected msg_ prefix, got %q", id)
	}
	// ULID is 26 characters.
	if len(id) != len("msg_")+26 {
		t.Errorf("unexpected id length: %q", id)
	}
}

func TestNewMessageIDMonotonic(t *testing.T) {
	prev := NewMessageID()
	for i := 0; i < 100; i++ {
		next := NewMessageID()
		if next <= prev {
			t.Fatalf("ids not monotonic: %q then %q", prev, next)
		}
		prev = next
	}
}

func TestNewConnectionIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewConnectionID()
		if seen[id] {
			t.Fatalf("duplicate connection id %q", id)
		}
		seen[id] = true
	}
}

func TestValidUserID(t *testing.T) {
	testCases := []struct {
		name  string
		id    string
		valid bool
	}{
		{"simple", "alice", true},
		{"prefixed", "user:alice", true},
		{"numeric", "42", true},
		{"underscore dash", "team_a-1", true},
		{"empty", "", false},
		{"spaces", "alice smith", false},
		{"slash", "a/b", false},
		{"too long", strings.Repeat("a", 65), false},
		{"max length", strings.Repeat("a", 64), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidUserID(tc.id); got != tc.valid {
				t.Errorf("ValidUserID(%q) = %v, expected %v", tc.id, got, tc.valid)
			}
		})
	}
}
