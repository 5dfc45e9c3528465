// Package embedding maps text to fixed-dimension vectors.
//
// Two backends sit behind the Embedder contract: a local Ollama model
// (primary) and the Google AI embedding API (fallback). Selection happens
// once at process start and holds for the process lifetime; when the primary
// fails its startup probe the fallback is selected and a degraded-mode flag
// is recorded for observability.
package embedding

import (
	"context"
	"errors"
)

// ErrEmbeddingBackend indicates the active embedding backend failed.
// At request time this is fatal to the request; backend substitution only
// happens at startup.
var ErrEmbeddingBackend = errors.New("embedding backend error")

// Embedder maps text to a fixed-dimension vector. Implementations report a
// stable Name and Dimension for the process lifetime; an index built with
// one embedder configuration rejects vectors from another.
type Embedder interface {
	// Embed returns the vector for one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, order-preserving, each
	// with the same dimension as Embed.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the fixed output dimension.
	Dimension() int

	// Name identifies the backend configuration (e.g. "ollama/all-minilm").
	Name() string
}
