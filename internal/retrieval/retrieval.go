// Package retrieval selects supporting evidence for a question.
//
// Relevance policy: scores are cosine similarity in [-1, 1], a result
// survives when similarity >= threshold, and confidence is
// round(similarity * 100) clamped to [0, 100]. The policy is fixed per
// deployment through configuration, never inferred per call.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/copilotd/copilot/internal/index"
)

// Evidence is one retrieved chunk with its user-facing confidence score.
type Evidence struct {
	Chunk      index.Chunk
	Confidence int
}

// Embedder maps a query to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the slice of the vector index the coordinator needs.
type Searcher interface {
	Search(ctx context.Context, query []float32, k int) ([]index.SimilarityResult, error)
}

// Coordinator embeds a query, searches the index and filters the results by
// the relevance threshold.
type Coordinator struct {
	embedder  Embedder
	searcher  Searcher
	topK      int
	threshold float64
	logger    *slog.Logger
}

// Config configures a Coordinator.
type Config struct {
	Embedder Embedder
	Searcher Searcher

	// TopK is the number of candidates requested from the index.
	TopK int

	// Threshold is the minimum cosine similarity a result must reach.
	Threshold float64

	Logger *slog.Logger
}

// NewCoordinator creates a retrieval coordinator.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Embedder == nil {
		return nil, errors.New("retrieval: embedder is required")
	}
	if cfg.Searcher == nil {
		return nil, errors.New("retrieval: searcher is required")
	}
	if cfg.TopK <= 0 {
		return nil, fmt.Errorf("retrieval: top-k must be positive, got %d", cfg.TopK)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		embedder:  cfg.Embedder,
		searcher:  cfg.Searcher,
		topK:      cfg.TopK,
		threshold: cfg.Threshold,
		logger:    logger,
	}, nil
}

// Retrieve returns the evidence for query, best match first. An empty slice
// means no indexed chunk was relevant enough; that is a normal outcome, not
// an error.
func (c *Coordinator) Retrieve(ctx context.Context, query string) ([]Evidence, error) {
	vector, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := c.searcher.Search(ctx, vector, c.topK)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	evidence := make([]Evidence, 0, len(results))
	for _, r := range results {
		if r.Similarity < c.threshold {
			continue
		}
		evidence = append(evidence, Evidence{
			Chunk:      r.Chunk,
			Confidence: Confidence(r.Similarity),
		})
	}

	c.logger.Debug("retrieval complete",
		"candidates", len(results), "relevant", len(evidence), "threshold", c.threshold)
	return evidence, nil
}

// Confidence converts a cosine similarity to a score in [0, 100]. It is
// non-decreasing in similarity.
func Confidence(similarity float64) int {
	score := int(math.Round(similarity * 100))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
