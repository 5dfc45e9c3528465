package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
)

// probeTimeout bounds the startup probe of each candidate backend.
const probeTimeout = 15 * time.Second

// Candidate is an embedding backend that has not been probed yet.
type Candidate struct {
	// Name identifies the backend (e.g. "ollama/all-minilm").
	Name string

	// Embedder is the Genkit embedder for this backend.
	Embedder ai.Embedder
}

// Select probes the primary backend and, if it fails, the fallback. The
// chosen backend's dimension is measured from the probe response and fixed
// for the process lifetime. The returned degraded flag reports that the
// fallback had to be substituted.
//
// Selection runs once at startup; embedding failures after that are fatal to
// the request they occur in, never re-selected per call.
func Select(ctx context.Context, primary, fallback Candidate, logger *slog.Logger) (Embedder, bool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if backend, err := probe(ctx, primary); err == nil {
		logger.Info("embedding backend selected",
			"backend", backend.Name(), "dimension", backend.Dimension())
		return backend, false, nil
	} else {
		logger.Warn("primary embedding backend unavailable, trying fallback",
			"primary", primary.Name, "fallback", fallback.Name, "error", err)
	}

	backend, err := probe(ctx, fallback)
	if err != nil {
		return nil, false, fmt.Errorf("no embedding backend available: %w", err)
	}

	logger.Warn("running with fallback embedding backend (degraded mode)",
		"backend", backend.Name(), "dimension", backend.Dimension())
	return backend, true, nil
}

// probe embeds a short text to verify the backend works and to measure its
// output dimension.
func probe(ctx context.Context, c Candidate) (*Backend, error) {
	if c.Embedder == nil {
		return nil, fmt.Errorf("%w: backend %s not registered", ErrEmbeddingBackend, c.Name)
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	vecs, err := embedDocuments(probeCtx, c.Embedder, []string{"embedding backend probe"})
	if err != nil {
		return nil, err
	}

	return &Backend{
		embedder:  c.Embedder,
		name:      c.Name,
		dimension: len(vecs[0]),
	}, nil
}
