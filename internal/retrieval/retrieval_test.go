package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/copilotd/copilot/internal/index"
	"github.com/copilotd/copilot/internal/log"
)

type stubEmbedder struct {
	vector []float32
	err    error
}

func (s stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return s.vector, s.err
}

type stubSearcher struct {
	results []index.SimilarityResult
	err     error
	gotK    int
}

func (s *stubSearcher) Search(_ context.Context, _ []float32, k int) ([]index.SimilarityResult, error) {
	s.gotK = k
	return s.results, s.err
}

func result(id string, similarity float64) index.SimilarityResult {
	return index.SimilarityResult{
		Chunk:      index.Chunk{ID: id, Metadata: map[string]string{index.MetaSource: id}},
		Similarity: similarity,
	}
}

func newCoordinator(t *testing.T, searcher Searcher, threshold float64) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(Config{
		Embedder:  stubEmbedder{vector: []float32{1, 0, 0}},
		Searcher:  searcher,
		TopK:      4,
		Threshold: threshold,
		Logger:    log.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}
	return c
}

func TestRetrieveFiltersByThreshold(t *testing.T) {
	searcher := &stubSearcher{results: []index.SimilarityResult{
		result("high", 0.9),
		result("mid", 0.5),
		result("low", 0.2),
	}}
	c := newCoordinator(t, searcher, 0.35)

	evidence, err := c.Retrieve(context.Background(), "refund window")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if searcher.gotK != 4 {
		t.Errorf("Search() called with k=%d, want 4", searcher.gotK)
	}
	if len(evidence) != 2 {
		t.Fatalf("Retrieve() = %d results, want 2", len(evidence))
	}
	if evidence[0].Chunk.ID != "high" || evidence[1].Chunk.ID != "mid" {
		t.Errorf("Retrieve() order = %s, %s", evidence[0].Chunk.ID, evidence[1].Chunk.ID)
	}
}

// Raising the threshold never increases the surviving result count.
func TestRetrieveThresholdMonotonicity(t *testing.T) {
	results := []index.SimilarityResult{
		result("a", 0.95), result("b", 0.7), result("c", 0.4), result("d", 0.1),
	}

	prev := len(results) + 1
	for _, threshold := range []float64{0, 0.2, 0.5, 0.8, 1.0} {
		c := newCoordinator(t, &stubSearcher{results: results}, threshold)
		evidence, err := c.Retrieve(context.Background(), "q")
		if err != nil {
			t.Fatalf("Retrieve(threshold=%f) error = %v", threshold, err)
		}
		if len(evidence) > prev {
			t.Errorf("threshold %f yielded %d results, more than %d at a lower threshold",
				threshold, len(evidence), prev)
		}
		prev = len(evidence)
	}
}

// No surviving result is a normal outcome, not an error.
func TestRetrieveEmptyIsNotError(t *testing.T) {
	c := newCoordinator(t, &stubSearcher{results: []index.SimilarityResult{result("weak", 0.1)}}, 0.35)

	evidence, err := c.Retrieve(context.Background(), "unrelated question")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(evidence) != 0 {
		t.Fatalf("Retrieve() = %d results, want 0", len(evidence))
	}
}

func TestRetrievePropagatesBackendErrors(t *testing.T) {
	wantErr := errors.New("index down")
	c := newCoordinator(t, &stubSearcher{err: wantErr}, 0.35)
	if _, err := c.Retrieve(context.Background(), "q"); !errors.Is(err, wantErr) {
		t.Fatalf("Retrieve() error = %v, want wrapped %v", err, wantErr)
	}

	embedErr := errors.New("embedder down")
	c2, err := NewCoordinator(Config{
		Embedder:  stubEmbedder{err: embedErr},
		Searcher:  &stubSearcher{},
		TopK:      4,
		Threshold: 0.35,
		Logger:    log.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}
	if _, err := c2.Retrieve(context.Background(), "q"); !errors.Is(err, embedErr) {
		t.Fatalf("Retrieve() error = %v, want wrapped %v", err, embedErr)
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		similarity float64
		want       int
	}{
		{similarity: 1.0, want: 100},
		{similarity: 0.856, want: 86},
		{similarity: 0.35, want: 35},
		{similarity: 0.004, want: 0},
		{similarity: 0, want: 0},
		{similarity: -0.4, want: 0},
		{similarity: 1.2, want: 100},
	}
	for _, tt := range tests {
		if got := Confidence(tt.similarity); got != tt.want {
			t.Errorf("Confidence(%f) = %d, want %d", tt.similarity, got, tt.want)
		}
	}

	// Non-decreasing over the domain.
	prev := -1
	for s := -1.0; s <= 1.0; s += 0.01 {
		got := Confidence(s)
		if got < prev {
			t.Fatalf("Confidence(%f) = %d, below previous %d", s, got, prev)
		}
		if got < 0 || got > 100 {
			t.Fatalf("Confidence(%f) = %d, outside [0,100]", s, got)
		}
		prev = got
	}
}
