package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps transcripts in process memory. It backs tests and
// single-process setups without a database.
type MemoryStore struct {
	mu    sync.Mutex
	turns map[string][]Turn // keyed by userID + "\x00" + sessionID
	order []string          // session keys by last activity, most recent last
}

// NewMemoryStore creates an empty in-memory transcript store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{turns: map[string][]Turn{}}
}

func sessionKey(userID, sessionID string) string {
	return userID + "\x00" + sessionID
}

// Append writes one turn with the next sequence number for its session.
func (s *MemoryStore) Append(_ context.Context, userID, sessionID, role, content string) error {
	if role != RoleUser && role != RoleAssistant {
		return fmt.Errorf("%w: unknown role %q", ErrPersistence, role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(userID, sessionID)
	s.turns[key] = append(s.turns[key], Turn{
		ID:        uuid.NewString(),
		UserID:    userID,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Sequence:  len(s.turns[key]) + 1,
		CreatedAt: time.Now(),
	})
	s.touch(key)
	return nil
}

// touch moves key to the most-recently-active position.
func (s *MemoryStore) touch(key string) {
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.order = append(s.order, key)
}

// Read returns the session's turns in append order.
func (s *MemoryStore) Read(_ context.Context, userID, sessionID string) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.turns[sessionKey(userID, sessionID)]
	turns := make([]Turn, len(stored))
	copy(turns, stored)
	return turns, nil
}

// ListSessions returns the user's session ids, most recently active first.
func (s *MemoryStore) ListSessions(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := userID + "\x00"
	sessions := []string{}
	for i := len(s.order) - 1; i >= 0; i-- {
		key := s.order[i]
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			sessions = append(sessions, key[len(prefix):])
		}
	}
	return sessions, nil
}
