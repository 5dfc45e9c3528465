package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/copilotd/copilot/internal/index"
)

// FAQEntry is one question/answer pair from the canonical FAQ corpus file.
type FAQEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// LoadFAQ reads a JSON array of question/answer pairs.
func LoadFAQ(path string) ([]FAQEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading FAQ file: %w", err)
	}

	var entries []FAQEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing FAQ file %s: %w", path, err)
	}
	return entries, nil
}

// RenderFAQ formats an entry as retrieval-ready document text.
func RenderFAQ(e FAQEntry) string {
	return fmt.Sprintf("Question: %s\nAnswer: %s", e.Question, e.Answer)
}

// FAQCorpus returns a corpus function that chunks and embeds the FAQ file on
// demand. The index uses it to rebuild itself when its stored state is
// missing or was built with a different embedder.
func FAQCorpus(path string, chunkSize, overlap int, embedder Embedder) index.CorpusFunc {
	return func(ctx context.Context) ([]index.Chunk, error) {
		entries, err := LoadFAQ(path)
		if err != nil {
			return nil, err
		}

		collector := &chunkCollector{}
		svc, err := NewService(Config{
			ChunkSize: chunkSize,
			Overlap:   overlap,
			Embedder:  embedder,
			Indexer:   collector,
		})
		if err != nil {
			return nil, err
		}

		for _, e := range entries {
			meta := map[string]string{
				index.MetaSource: "FAQ",
				"question":       e.Question,
			}
			if _, err := svc.Ingest(ctx, RenderFAQ(e), meta); err != nil {
				return nil, fmt.Errorf("ingesting FAQ entry %q: %w", e.Question, err)
			}
		}
		return collector.chunks, nil
	}
}

// chunkCollector is an Indexer that accumulates chunks instead of storing
// them, so the corpus function can hand the full set to a rebuild.
type chunkCollector struct {
	chunks []index.Chunk
}

func (c *chunkCollector) Add(_ context.Context, chunks []index.Chunk) error {
	c.chunks = append(c.chunks, chunks...)
	return nil
}
