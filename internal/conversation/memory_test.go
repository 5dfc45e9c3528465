package conversation

import (
	"context"
	"errors"
	"testing"
)

// Three turns interleaved across two sessions: each transcript holds only its
// own turns, in append order.
func TestMemoryStoreInterleavedSessions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	appends := []struct{ session, role, content string }{
		{"s1", RoleUser, "first question"},
		{"s2", RoleUser, "other session question"},
		{"s1", RoleAssistant, "first answer"},
		{"s2", RoleAssistant, "other session answer"},
		{"s1", RoleUser, "followup"},
	}
	for _, a := range appends {
		if err := s.Append(ctx, "u-1", a.session, a.role, a.content); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	s1, err := s.Read(ctx, "u-1", "s1")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	wantS1 := []string{"first question", "first answer", "followup"}
	if len(s1) != len(wantS1) {
		t.Fatalf("session s1 has %d turns, want %d", len(s1), len(wantS1))
	}
	for i, turn := range s1 {
		if turn.Content != wantS1[i] {
			t.Errorf("s1 turn %d = %q, want %q", i, turn.Content, wantS1[i])
		}
		if turn.Sequence != i+1 {
			t.Errorf("s1 turn %d sequence = %d, want %d", i, turn.Sequence, i+1)
		}
		if turn.SessionID != "s1" {
			t.Errorf("s1 turn %d leaked from session %s", i, turn.SessionID)
		}
	}

	s2, err := s.Read(ctx, "u-1", "s2")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(s2) != 2 {
		t.Fatalf("session s2 has %d turns, want 2", len(s2))
	}
}

func TestMemoryStoreUnknownSessionIsEmpty(t *testing.T) {
	s := NewMemoryStore()

	turns, err := s.Read(context.Background(), "nobody", "nothing")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("Read() = %d turns for unknown session", len(turns))
	}

	sessions, err := s.ListSessions(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("ListSessions() = %v for unknown user", sessions)
	}
}

func TestMemoryStoreListSessionsRecencyOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, session := range []string{"a", "b", "c"} {
		if err := s.Append(ctx, "u-1", session, RoleUser, "hi"); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	// Touch "a" again so it becomes most recent.
	if err := s.Append(ctx, "u-1", "a", RoleAssistant, "hello"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	// A different user's sessions stay invisible.
	if err := s.Append(ctx, "u-2", "z", RoleUser, "hi"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	sessions, err := s.ListSessions(ctx, "u-1")
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	want := []string{"a", "c", "b"}
	if len(sessions) != len(want) {
		t.Fatalf("ListSessions() = %v, want %v", sessions, want)
	}
	for i := range want {
		if sessions[i] != want[i] {
			t.Errorf("ListSessions() = %v, want %v", sessions, want)
			break
		}
	}
}

func TestMemoryStoreRejectsUnknownRole(t *testing.T) {
	s := NewMemoryStore()
	err := s.Append(context.Background(), "u-1", "s1", "system", "nope")
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("Append() error = %v, want ErrPersistence", err)
	}
}
