package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/google/uuid"

	"github.com/copilotd/copilot/internal/index"
)

// ErrIngestion indicates a document could not be ingested.
var ErrIngestion = errors.New("ingestion error")

// Indexer is the slice of the vector index the ingestion service needs.
type Indexer interface {
	Add(ctx context.Context, chunks []index.Chunk) error
}

// Embedder produces one vector per text, order-preserving.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Service chunks, embeds and indexes documents.
type Service struct {
	chunkSize int
	overlap   int
	embedder  Embedder
	indexer   Indexer
	logger    *slog.Logger
}

// Config configures an ingestion Service.
type Config struct {
	ChunkSize int
	Overlap   int
	Embedder  Embedder
	Indexer   Indexer
	Logger    *slog.Logger
}

// NewService creates an ingestion service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Embedder == nil {
		return nil, errors.New("ingest: embedder is required")
	}
	if cfg.Indexer == nil {
		return nil, errors.New("ingest: indexer is required")
	}
	if cfg.ChunkSize <= 0 || cfg.Overlap < 0 || cfg.Overlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("%w: chunk size %d, overlap %d", ErrInvalidInput, cfg.ChunkSize, cfg.Overlap)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		chunkSize: cfg.ChunkSize,
		overlap:   cfg.Overlap,
		embedder:  cfg.Embedder,
		indexer:   cfg.Indexer,
		logger:    logger,
	}, nil
}

// Ingest splits text into chunks, embeds them and adds them to the index.
// Every chunk carries the supplied metadata; metadata should include a
// provenance identifier under index.MetaSource and, for user uploads, the
// owner under index.MetaOwner. Returns the number of chunks indexed.
func (s *Service) Ingest(ctx context.Context, text string, metadata map[string]string) (int, error) {
	pieces, err := Split(text, s.chunkSize, s.overlap)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrIngestion, err)
	}

	vectors, err := s.embedder.EmbedBatch(ctx, pieces)
	if err != nil {
		return 0, fmt.Errorf("%w: embedding chunks: %w", ErrIngestion, err)
	}

	chunks := make([]index.Chunk, len(pieces))
	for i, piece := range pieces {
		meta := map[string]string{}
		maps.Copy(meta, metadata)
		chunks[i] = index.Chunk{
			ID:        uuid.NewString(),
			Content:   piece,
			Metadata:  meta,
			Embedding: vectors[i],
		}
	}

	if err := s.indexer.Add(ctx, chunks); err != nil {
		return 0, fmt.Errorf("%w: indexing chunks: %w", ErrIngestion, err)
	}

	s.logger.Info("document ingested",
		"source", metadata[index.MetaSource], "chunks", len(chunks))
	return len(chunks), nil
}
