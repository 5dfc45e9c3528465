package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists transcripts in the conversation_turns table.
//
// Append serializes writers within one session with a transaction-scoped
// advisory lock keyed on (user id, session id), so sequence numbers stay
// gapless and strictly increasing without a sessions table. Writes to
// different sessions do not contend.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore creates a transcript store backed by pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("conversation: pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Append writes one turn with the next sequence number for its session.
func (s *PostgresStore) Append(ctx context.Context, userID, sessionID, role, content string) error {
	if role != RoleUser && role != RoleAssistant {
		return fmt.Errorf("%w: unknown role %q", ErrPersistence, role)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %w", ErrPersistence, err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Debug("append rollback", "error", err)
		}
	}()

	// Held until commit; serializes appends within this session only.
	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`,
		userID, sessionID); err != nil {
		return fmt.Errorf("%w: acquiring session lock: %w", ErrPersistence, err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO conversation_turns (user_id, session_id, role, content, sequence_number)
		SELECT $1, $2, $3, $4, COALESCE(MAX(sequence_number), 0) + 1
		FROM conversation_turns
		WHERE user_id = $1 AND session_id = $2`,
		userID, sessionID, role, content); err != nil {
		return fmt.Errorf("%w: inserting turn: %w", ErrPersistence, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: committing turn: %w", ErrPersistence, err)
	}
	return nil
}

// Read returns the session's turns in append order.
func (s *PostgresStore) Read(ctx context.Context, userID, sessionID string) ([]Turn, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, session_id, role, content, sequence_number, created_at
		FROM conversation_turns
		WHERE user_id = $1 AND session_id = $2
		ORDER BY sequence_number ASC`,
		userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: querying turns: %w", ErrPersistence, err)
	}
	defer rows.Close()

	turns := []Turn{}
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.UserID, &t.SessionID, &t.Role, &t.Content, &t.Sequence, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning turn: %w", ErrPersistence, err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading turns: %w", ErrPersistence, err)
	}
	return turns, nil
}

// ListSessions returns the user's session ids, most recently active first.
func (s *PostgresStore) ListSessions(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT session_id
		FROM conversation_turns
		WHERE user_id = $1
		GROUP BY session_id
		ORDER BY MAX(created_at) DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("%w: querying sessions: %w", ErrPersistence, err)
	}
	defer rows.Close()

	sessions := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scanning session id: %w", ErrPersistence, err)
		}
		sessions = append(sessions, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading sessions: %w", ErrPersistence, err)
	}
	return sessions, nil
}
