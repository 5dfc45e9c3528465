package conversation_test

import (
	"context"
	"sync"
	"testing"

	"github.com/copilotd/copilot/internal/conversation"
	"github.com/copilotd/copilot/internal/log"
	"github.com/copilotd/copilot/internal/testutil"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store, err := conversation.NewPostgresStore(db.Pool, log.NewNop())
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	ctx := context.Background()

	t.Run("append assigns gapless sequence numbers", func(t *testing.T) {
		contents := []string{"q1", "a1", "q2"}
		for _, c := range contents {
			role := conversation.RoleUser
			if c == "a1" {
				role = conversation.RoleAssistant
			}
			if err := store.Append(ctx, "u-seq", "s1", role, c); err != nil {
				t.Fatalf("Append() error = %v", err)
			}
		}

		turns, err := store.Read(ctx, "u-seq", "s1")
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if len(turns) != 3 {
			t.Fatalf("Read() = %d turns, want 3", len(turns))
		}
		for i, turn := range turns {
			if turn.Sequence != i+1 {
				t.Errorf("turn %d sequence = %d, want %d", i, turn.Sequence, i+1)
			}
			if turn.Content != contents[i] {
				t.Errorf("turn %d content = %q, want %q", i, turn.Content, contents[i])
			}
		}
	})

	t.Run("concurrent appends within one session stay ordered", func(t *testing.T) {
		const writers = 8
		var wg sync.WaitGroup
		for range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := store.Append(ctx, "u-conc", "s1", conversation.RoleUser, "concurrent"); err != nil {
					t.Errorf("Append() error = %v", err)
				}
			}()
		}
		wg.Wait()

		turns, err := store.Read(ctx, "u-conc", "s1")
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if len(turns) != writers {
			t.Fatalf("Read() = %d turns, want %d", len(turns), writers)
		}
		for i, turn := range turns {
			if turn.Sequence != i+1 {
				t.Errorf("turn %d sequence = %d, want %d (lost update)", i, turn.Sequence, i+1)
			}
		}
	})

	t.Run("sessions are isolated", func(t *testing.T) {
		if err := store.Append(ctx, "u-iso", "sa", conversation.RoleUser, "in sa"); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if err := store.Append(ctx, "u-iso", "sb", conversation.RoleUser, "in sb"); err != nil {
			t.Fatalf("Append() error = %v", err)
		}

		turns, err := store.Read(ctx, "u-iso", "sa")
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if len(turns) != 1 || turns[0].Content != "in sa" {
			t.Fatalf("Read(sa) = %+v", turns)
		}
	})

	t.Run("unknown session reads empty", func(t *testing.T) {
		turns, err := store.Read(ctx, "u-none", "missing")
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if len(turns) != 0 {
			t.Fatalf("Read() = %d turns for unknown session", len(turns))
		}
	})

	t.Run("list sessions", func(t *testing.T) {
		sessions, err := store.ListSessions(ctx, "u-iso")
		if err != nil {
			t.Fatalf("ListSessions() error = %v", err)
		}
		if len(sessions) != 2 {
			t.Fatalf("ListSessions() = %v, want 2 sessions", sessions)
		}
	})
}
