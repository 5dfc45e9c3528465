// Package conversation stores append-only chat transcripts.
//
// A transcript is scoped by (user id, session id). Turns carry a
// monotonically increasing sequence number assigned at append time; writes
// within one session are serialized so the ordering is strict even under
// concurrent requests.
package conversation

import (
	"context"
	"errors"
	"time"
)

// ErrPersistence indicates a transcript write or read failed. The chat flow
// logs and swallows it for writes; a missing turn is an audit gap, not a
// failed answer.
var ErrPersistence = errors.New("conversation persistence error")

// Roles a turn can carry.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one utterance in a transcript.
type Turn struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Sequence  int       `json:"sequence"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is an append-only transcript store. Turns are never updated or
// deleted.
type Store interface {
	// Append writes one turn, assigning it the next sequence number in its
	// session.
	Append(ctx context.Context, userID, sessionID, role, content string) error

	// Read returns a session's turns in append order. Unknown sessions yield
	// an empty slice, not an error.
	Read(ctx context.Context, userID, sessionID string) ([]Turn, error)

	// ListSessions returns the ids of sessions with at least one turn,
	// most recently active first.
	ListSessions(ctx context.Context, userID string) ([]string, error)
}
