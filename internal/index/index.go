// Package index provides vector index implementations behind one contract.
//
// Two backends exist: Memory keeps chunks in process and persists a JSON
// snapshot to disk, Postgres stores them in pgvector. Both rank by cosine
// similarity so the retrieval layer's threshold policy is metric-stable
// across backends.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrRebuildInProgress is returned when a rebuild is requested while
	// another rebuild is running on the same index instance. Callers must
	// retry later; requests are never queued.
	ErrRebuildInProgress = errors.New("rebuild already in progress")

	// ErrIndexUnavailable is returned by Load when no snapshot exists and no
	// canonical corpus is configured to rebuild from.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrDimensionMismatch indicates a vector whose dimension does not match
	// the embedder configuration the index was built with. This is a contract
	// violation: mixing embedders in one index requires a full rebuild.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Metadata keys every indexed chunk carries.
const (
	// MetaSource is the provenance of a chunk: a source filename or "FAQ".
	MetaSource = "source"

	// MetaOwner is the id of the user who uploaded the source document.
	// Absent on shared corpora such as the FAQ.
	MetaOwner = "owner"
)

// Chunk is the unit of indexed knowledge.
type Chunk struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata"`
	Embedding []float32         `json:"embedding"`
}

// SimilarityResult pairs a chunk with its cosine similarity for one query.
// Results are ephemeral and never persisted.
type SimilarityResult struct {
	Chunk      Chunk
	Similarity float64
}

// Fingerprint identifies the embedder configuration an index was built with.
// Every chunk in an index must come from the same fingerprint.
type Fingerprint struct {
	Embedder  string `json:"embedder"`
	Dimension int    `json:"dimension"`
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%s/%d", f.Embedder, f.Dimension)
}

// CorpusFunc supplies the canonical source corpus for automatic rebuilds,
// already chunked and embedded with the index's fingerprint.
type CorpusFunc func(ctx context.Context) ([]Chunk, error)

// VectorIndex stores chunk vectors and answers top-k nearest-neighbor
// queries ranked by cosine similarity.
//
// Add and Rebuild are the only mutators and are mutually exclusive within an
// instance; Search may run concurrently with them and never observes a
// partially applied rebuild.
type VectorIndex interface {
	// Add incorporates chunks without discarding existing ones. Chunk ids
	// must be unique across the index; the ingestion service mints UUIDs.
	Add(ctx context.Context, chunks []Chunk) error

	// Search returns up to k results sorted by decreasing similarity.
	// Equal scores preserve insertion order.
	Search(ctx context.Context, query []float32, k int) ([]SimilarityResult, error)

	// Rebuild replaces the entire index from scratch. At most one rebuild may
	// run per instance; a concurrent request fails with ErrRebuildInProgress.
	Rebuild(ctx context.Context, chunks []Chunk) error

	// Persist writes a durable snapshot of the index.
	Persist(ctx context.Context) error

	// Load restores the index from its snapshot. A missing snapshot triggers
	// a rebuild from the canonical corpus when one is configured, otherwise
	// Load fails with ErrIndexUnavailable.
	Load(ctx context.Context) error
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Returns 0 for zero-magnitude inputs.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// checkDimensions verifies every chunk matches the fingerprint dimension.
func checkDimensions(chunks []Chunk, fp Fingerprint) error {
	for _, c := range chunks {
		if len(c.Embedding) != fp.Dimension {
			return fmt.Errorf("%w: chunk %q has dimension %d, index requires %d",
				ErrDimensionMismatch, c.ID, len(c.Embedding), fp.Dimension)
		}
	}
	return nil
}
