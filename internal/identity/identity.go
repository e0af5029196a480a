// Package identity generates and validates the identifiers used by the
// messaging transport: ULID-based message ids and opaque user identifiers
// issued by the external auth collaborator.
package identity

import (
	"crypto/rand"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// userIDRegex defines the accepted shape of a user identifier. The auth
// collaborator issues the identifier; this subsystem only checks that a
// value looks like one before trusting it as a registry key.
var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_:-]+$`)

// maxUserIDLen bounds registry keys against pathological inputs.
const maxUserIDLen = 64

var (
	ulidMu      sync.Mutex
	ulidEntropy = ulid.Monotonic(rand.Reader, 0)
)

// generateULID generates a ULID string. Monotonic entropy keeps ids
// lexicographically ordered within a single process, which in turn keeps
// message timestamps non-decreasing per insert.
func generateULID() string {
	ulidMu.Lock()
	defer ulidMu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy)
	return id.String()
}

// NewMessageID generates a unique message ID.
// Format: "msg_" + ulid().
func NewMessageID() string {
	return "msg_" + generateULID()
}

// NewConnectionID generates a unique connection ID for log correlation and
// registry supersede checks. Connections are runtime-only, so a random UUID
// is enough; no ordering is needed.
func NewConnectionID() string {
	return uuid.NewString()
}

// ValidUserID reports whether s looks like a user identifier issued by the
// auth collaborator. Existence is not checked here.
func ValidUserID(s string) bool {
	if s == "" || len(s) > maxUserIDLen {
		return false
	}
	return userIDRegex.MatchString(s)
}
