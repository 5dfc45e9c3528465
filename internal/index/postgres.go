package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// searchTimeout bounds vector search queries so a slow scan cannot block a
// chat request indefinitely.
const searchTimeout = 10 * time.Second

// Postgres is a pgvector-backed index over the chunks table.
//
// Durability comes from the database itself, so Persist is a no-op and Load
// only verifies that the stored chunks match this index's embedder
// fingerprint. Rebuild runs in one transaction: searches see the old chunk
// set until commit.
type Postgres struct {
	pool        *pgxpool.Pool
	fingerprint Fingerprint
	corpus      CorpusFunc
	logger      *slog.Logger

	rebuildMu sync.Mutex
}

// PostgresConfig configures a Postgres index.
type PostgresConfig struct {
	Pool        *pgxpool.Pool
	Fingerprint Fingerprint
	Corpus      CorpusFunc
	Logger      *slog.Logger
}

// NewPostgres creates a pgvector-backed index.
func NewPostgres(cfg PostgresConfig) (*Postgres, error) {
	if cfg.Pool == nil {
		return nil, errors.New("postgres index: pool is required")
	}
	if cfg.Fingerprint.Dimension <= 0 {
		return nil, fmt.Errorf("%w: fingerprint dimension must be positive", ErrDimensionMismatch)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{
		pool:        cfg.Pool,
		fingerprint: cfg.Fingerprint,
		corpus:      cfg.Corpus,
		logger:      logger,
	}, nil
}

// Add inserts chunks in one transaction. Chunk ids are the primary key, so
// callers supply a unique id per chunk (the ingestion service mints UUIDs).
func (p *Postgres) Add(ctx context.Context, chunks []Chunk) error {
	if err := checkDimensions(chunks, p.fingerprint); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			p.logger.Debug("transaction rollback", "error", err)
		}
	}()

	if err := p.insertChunks(ctx, tx, chunks); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing chunks: %w", err)
	}

	p.logger.Debug("chunks indexed", "count", len(chunks))
	return nil
}

func (p *Postgres) insertChunks(ctx context.Context, tx pgx.Tx, chunks []Chunk) error {
	const insert = `
		INSERT INTO chunks (id, content, metadata, embedding, embedder, dimension)
		VALUES ($1, $2, $3, $4, $5, $6)`

	for _, c := range chunks {
		metadataJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata for chunk %q: %w", c.ID, err)
		}
		vec := pgvector.NewVector(c.Embedding)
		if _, err := tx.Exec(ctx, insert,
			c.ID, c.Content, metadataJSON, vec, p.fingerprint.Embedder, p.fingerprint.Dimension); err != nil {
			return fmt.Errorf("inserting chunk %q: %w", c.ID, err)
		}
	}
	return nil
}

// Search ranks chunks by cosine similarity using the pgvector <=> operator
// (cosine distance; similarity = 1 - distance). Ties preserve insertion
// order via the position identity column.
func (p *Postgres) Search(ctx context.Context, query []float32, k int) ([]SimilarityResult, error) {
	if len(query) != p.fingerprint.Dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, index requires %d",
			ErrDimensionMismatch, len(query), p.fingerprint.Dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	const search = `
		SELECT id, content, metadata, 1 - (embedding <=> $1) AS similarity
		FROM chunks
		WHERE embedder = $2 AND dimension = $3
		ORDER BY embedding <=> $1, position
		LIMIT $4`

	vec := pgvector.NewVector(query)
	rows, err := p.pool.Query(queryCtx, search, vec, p.fingerprint.Embedder, p.fingerprint.Dimension, k)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	var results []SimilarityResult
	for rows.Next() {
		var (
			c            Chunk
			metadataJSON []byte
			similarity   float64
		)
		if err := rows.Scan(&c.ID, &c.Content, &metadataJSON, &similarity); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		if err := json.Unmarshal(metadataJSON, &c.Metadata); err != nil {
			p.logger.Warn("parsing chunk metadata", "chunk_id", c.ID, "error", err)
			c.Metadata = map[string]string{}
		}
		results = append(results, SimilarityResult{Chunk: c, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search rows: %w", err)
	}

	return results, nil
}

// Rebuild replaces the stored chunk set in one transaction.
func (p *Postgres) Rebuild(ctx context.Context, chunks []Chunk) error {
	if !p.rebuildMu.TryLock() {
		return ErrRebuildInProgress
	}
	defer p.rebuildMu.Unlock()

	if err := checkDimensions(chunks, p.fingerprint); err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning rebuild transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			p.logger.Debug("rebuild rollback", "error", err)
		}
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}
	if err := p.insertChunks(ctx, tx, chunks); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing rebuild: %w", err)
	}

	p.logger.Info("index rebuilt", "chunks", len(chunks))
	return nil
}

// Persist is a no-op: the database is the durable store.
func (*Postgres) Persist(context.Context) error { return nil }

// Load verifies the stored chunks match this index's embedder fingerprint.
// An empty table, or one populated by a different embedder, triggers a
// rebuild from the canonical corpus when configured, else
// ErrIndexUnavailable.
func (p *Postgres) Load(ctx context.Context) error {
	var total, mismatched int64
	err := p.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE embedder <> $1 OR dimension <> $2)
		FROM chunks`,
		p.fingerprint.Embedder, p.fingerprint.Dimension,
	).Scan(&total, &mismatched)
	if err != nil {
		return fmt.Errorf("inspecting chunks table: %w", err)
	}

	if total > 0 && mismatched == 0 {
		p.logger.Info("index loaded", "chunks", total)
		return nil
	}

	if mismatched > 0 {
		p.logger.Warn("stored chunks built with different embedder, rebuilding",
			"mismatched", mismatched, "index", p.fingerprint.String())
	}

	if p.corpus == nil {
		if total == 0 {
			return ErrIndexUnavailable
		}
		return fmt.Errorf("%w: %d chunks from a different embedder and no corpus to rebuild from",
			ErrIndexUnavailable, mismatched)
	}

	chunks, err := p.corpus(ctx)
	if err != nil {
		return fmt.Errorf("loading corpus: %w", err)
	}
	return p.Rebuild(ctx, chunks)
}
