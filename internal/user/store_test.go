package user_test

import (
	"context"
	"errors"
	"testing"

	"github.com/copilotd/copilot/internal/log"
	"github.com/copilotd/copilot/internal/testutil"
	"github.com/copilotd/copilot/internal/user"
)

func TestStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store, err := user.NewStore(db.Pool, log.NewNop())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	ctx := context.Background()

	created, err := store.Create(ctx, "dana", "dana@example.com", "a secure password")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID == "" || created.Username != "dana" {
		t.Fatalf("Create() = %+v", created)
	}

	t.Run("duplicate username rejected", func(t *testing.T) {
		_, err := store.Create(ctx, "dana", "other@example.com", "a secure password")
		if !errors.Is(err, user.ErrDuplicate) {
			t.Fatalf("Create() error = %v, want ErrDuplicate", err)
		}
	})

	t.Run("short password rejected", func(t *testing.T) {
		if _, err := store.Create(ctx, "eve", "eve@example.com", "short"); err == nil {
			t.Fatal("Create() with short password returned nil error")
		}
	})

	t.Run("authenticate", func(t *testing.T) {
		u, err := store.Authenticate(ctx, "dana", "a secure password")
		if err != nil {
			t.Fatalf("Authenticate() error = %v", err)
		}
		if u.ID != created.ID {
			t.Errorf("Authenticate() id = %q, want %q", u.ID, created.ID)
		}

		if _, err := store.Authenticate(ctx, "dana", "wrong password"); !errors.Is(err, user.ErrInvalidCredentials) {
			t.Errorf("wrong password error = %v, want ErrInvalidCredentials", err)
		}
		if _, err := store.Authenticate(ctx, "nobody", "a secure password"); !errors.Is(err, user.ErrInvalidCredentials) {
			t.Errorf("unknown username error = %v, want ErrInvalidCredentials", err)
		}
	})

	t.Run("lookup and exists", func(t *testing.T) {
		u, err := store.Lookup(ctx, created.ID)
		if err != nil {
			t.Fatalf("Lookup() error = %v", err)
		}
		if u.Username != "dana" {
			t.Errorf("Lookup() username = %q", u.Username)
		}

		if _, err := store.Lookup(ctx, "not-a-real-id"); !errors.Is(err, user.ErrNotFound) {
			t.Errorf("Lookup(unknown) error = %v, want ErrNotFound", err)
		}

		exists, err := store.Exists(ctx, created.ID)
		if err != nil || !exists {
			t.Errorf("Exists(%q) = %v, %v", created.ID, exists, err)
		}
		exists, err = store.Exists(ctx, "not-a-real-id")
		if err != nil || exists {
			t.Errorf("Exists(unknown) = %v, %v", exists, err)
		}
	})
}
