package embedding

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
)

// Backend adapts a Genkit ai.Embedder to the Embedder contract, pinning the
// name and dimension observed at selection time.
type Backend struct {
	embedder  ai.Embedder
	name      string
	dimension int
}

// Embed returns the vector for one text.
func (b *Backend) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := embedDocuments(ctx, b.embedder, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs[0]) != b.dimension {
		return nil, fmt.Errorf("%w: backend %s returned dimension %d, expected %d",
			ErrEmbeddingBackend, b.name, len(vecs[0]), b.dimension)
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per text, order-preserving.
func (b *Backend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := embedDocuments(ctx, b.embedder, texts)
	if err != nil {
		return nil, err
	}
	for i, v := range vecs {
		if len(v) != b.dimension {
			return nil, fmt.Errorf("%w: backend %s returned dimension %d at position %d, expected %d",
				ErrEmbeddingBackend, b.name, len(v), i, b.dimension)
		}
	}
	return vecs, nil
}

// Dimension is the fixed output dimension observed at selection time.
func (b *Backend) Dimension() int { return b.dimension }

// Name identifies the backend configuration.
func (b *Backend) Name() string { return b.name }

// embedDocuments runs one Genkit embed request over texts and unpacks the
// response, validating count and non-emptiness.
func embedDocuments(ctx context.Context, embedder ai.Embedder, texts []string) ([][]float32, error) {
	docs := make([]*ai.Document, len(texts))
	for i, t := range texts {
		docs[i] = &ai.Document{Content: []*ai.Part{ai.NewTextPart(t)}}
	}

	resp, err := embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingBackend, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs",
			ErrEmbeddingBackend, len(resp.Embeddings), len(texts))
	}

	vecs := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if len(e.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at position %d", ErrEmbeddingBackend, i)
		}
		vecs[i] = e.Embedding
	}
	return vecs, nil
}
