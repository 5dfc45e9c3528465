package index

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/copilotd/copilot/internal/log"
)

var testFingerprint = Fingerprint{Embedder: "test/embedder", Dimension: 3}

func newTestMemory(t *testing.T, cfg MemoryConfig) *Memory {
	t.Helper()
	if cfg.Fingerprint == (Fingerprint{}) {
		cfg.Fingerprint = testFingerprint
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	m, err := NewMemory(cfg)
	if err != nil {
		t.Fatalf("NewMemory() error = %v", err)
	}
	return m
}

func chunk(id string, embedding ...float32) Chunk {
	return Chunk{ID: id, Content: "content " + id, Metadata: map[string]string{MetaSource: id}, Embedding: embedding}
}

func TestMemorySearchRanking(t *testing.T) {
	m := newTestMemory(t, MemoryConfig{})
	ctx := context.Background()

	err := m.Add(ctx, []Chunk{
		chunk("orthogonal", 0, 1, 0),
		chunk("exact", 1, 0, 0),
		chunk("close", 0.9, 0.1, 0),
		chunk("opposite", -1, 0, 0),
	})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	results, err := m.Search(ctx, []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("Search() returned %d results, want 4", len(results))
	}

	wantOrder := []string{"exact", "close", "orthogonal", "opposite"}
	for i, want := range wantOrder {
		if results[i].Chunk.ID != want {
			t.Errorf("result %d = %s, want %s", i, results[i].Chunk.ID, want)
		}
	}
	for i := 1; i < len(results); i++ {
		if results[i].Similarity > results[i-1].Similarity {
			t.Errorf("results not sorted: %f after %f", results[i].Similarity, results[i-1].Similarity)
		}
	}
	if math.Abs(results[0].Similarity-1) > 1e-9 {
		t.Errorf("exact match similarity = %f, want 1", results[0].Similarity)
	}
}

func TestMemorySearchLimit(t *testing.T) {
	m := newTestMemory(t, MemoryConfig{})
	ctx := context.Background()

	for _, c := range []Chunk{chunk("a", 1, 0, 0), chunk("b", 0.5, 0.5, 0), chunk("c", 0, 1, 0)} {
		if err := m.Add(ctx, []Chunk{c}); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	results, err := m.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search(k=2) returned %d results", len(results))
	}

	if results, _ := m.Search(ctx, []float32{1, 0, 0}, 0); results != nil {
		t.Errorf("Search(k=0) = %v, want nil", results)
	}
}

// Equal scores keep insertion order.
func TestMemorySearchStableTies(t *testing.T) {
	m := newTestMemory(t, MemoryConfig{})
	ctx := context.Background()

	if err := m.Add(ctx, []Chunk{
		chunk("first", 1, 0, 0),
		chunk("second", 2, 0, 0),
		chunk("third", 3, 0, 0),
	}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	results, err := m.Search(ctx, []float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	for i, want := range []string{"first", "second", "third"} {
		if results[i].Chunk.ID != want {
			t.Errorf("result %d = %s, want %s (insertion order on ties)", i, results[i].Chunk.ID, want)
		}
	}
}

func TestMemoryDimensionMismatch(t *testing.T) {
	m := newTestMemory(t, MemoryConfig{})
	ctx := context.Background()

	if err := m.Add(ctx, []Chunk{chunk("bad", 1, 0)}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Add() error = %v, want ErrDimensionMismatch", err)
	}
	if _, err := m.Search(ctx, []float32{1, 0}, 3); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Search() error = %v, want ErrDimensionMismatch", err)
	}
	if err := m.Rebuild(ctx, []Chunk{chunk("bad", 1)}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Rebuild() error = %v, want ErrDimensionMismatch", err)
	}
}

func TestMemoryRebuildReplaces(t *testing.T) {
	m := newTestMemory(t, MemoryConfig{})
	ctx := context.Background()

	if err := m.Add(ctx, []Chunk{chunk("old", 1, 0, 0)}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := m.Rebuild(ctx, []Chunk{chunk("new-a", 1, 0, 0), chunk("new-b", 0, 1, 0)}); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}

	results, err := m.Search(ctx, []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("after rebuild Search() returned %d results, want 2", len(results))
	}
	for _, r := range results {
		if r.Chunk.ID == "old" {
			t.Error("rebuild kept a pre-rebuild chunk")
		}
	}
}

// A concurrent rebuild is rejected, never queued.
func TestMemoryRebuildInProgress(t *testing.T) {
	m := newTestMemory(t, MemoryConfig{})
	ctx := context.Background()

	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()

	err := m.Rebuild(ctx, []Chunk{chunk("a", 1, 0, 0)})
	if !errors.Is(err, ErrRebuildInProgress) {
		t.Fatalf("Rebuild() error = %v, want ErrRebuildInProgress", err)
	}
}

// Searches during a rebuild see the old chunk set until the swap.
func TestMemorySearchDuringRebuild(t *testing.T) {
	m := newTestMemory(t, MemoryConfig{})
	ctx := context.Background()

	if err := m.Add(ctx, []Chunk{chunk("stable", 1, 0, 0)}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				results, err := m.Search(ctx, []float32{1, 0, 0}, 5)
				if err != nil {
					t.Errorf("Search() error = %v", err)
					return
				}
				if len(results) == 0 {
					t.Error("Search() observed an empty index mid-rebuild")
					return
				}
			}
		}()
	}

	for range 20 {
		err := m.Rebuild(ctx, []Chunk{chunk("stable", 1, 0, 0), chunk("extra", 0, 1, 0)})
		if err != nil && !errors.Is(err, ErrRebuildInProgress) {
			t.Errorf("Rebuild() error = %v", err)
		}
	}
	wg.Wait()
}

func TestMemoryPersistLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	ctx := context.Background()

	m := newTestMemory(t, MemoryConfig{SnapshotPath: path})
	if err := m.Add(ctx, []Chunk{chunk("a", 1, 0, 0), chunk("b", 0, 1, 0)}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := m.Persist(ctx); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	restored := newTestMemory(t, MemoryConfig{SnapshotPath: path})
	if err := restored.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if restored.Len() != 2 {
		t.Fatalf("restored index has %d chunks, want 2", restored.Len())
	}

	results, err := restored.Search(ctx, []float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if results[0].Chunk.ID != "a" || results[0].Chunk.Metadata[MetaSource] != "a" {
		t.Errorf("restored chunk = %+v", results[0].Chunk)
	}
}

func TestMemoryLoadMissingSnapshotRebuildsFromCorpus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	ctx := context.Background()

	corpusCalls := 0
	m := newTestMemory(t, MemoryConfig{
		SnapshotPath: path,
		Corpus: func(context.Context) ([]Chunk, error) {
			corpusCalls++
			return []Chunk{chunk("from-corpus", 1, 0, 0)}, nil
		},
	})

	if err := m.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if corpusCalls != 1 {
		t.Fatalf("corpus called %d times, want 1", corpusCalls)
	}
	if m.Len() != 1 {
		t.Fatalf("index has %d chunks after corpus rebuild, want 1", m.Len())
	}

	// The rebuild also persisted a snapshot.
	if _, err := os.Stat(path); err != nil {
		t.Errorf("snapshot not written after corpus rebuild: %v", err)
	}
}

func TestMemoryLoadMissingSnapshotWithoutCorpus(t *testing.T) {
	m := newTestMemory(t, MemoryConfig{SnapshotPath: filepath.Join(t.TempDir(), "index.json")})
	if err := m.Load(context.Background()); !errors.Is(err, ErrIndexUnavailable) {
		t.Fatalf("Load() error = %v, want ErrIndexUnavailable", err)
	}
}

// A snapshot written with a different embedder configuration is discarded and
// the index rebuilt from the corpus.
func TestMemoryLoadFingerprintMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	ctx := context.Background()

	old := newTestMemory(t, MemoryConfig{
		Fingerprint:  Fingerprint{Embedder: "old/model", Dimension: 3},
		SnapshotPath: path,
	})
	if err := old.Add(ctx, []Chunk{chunk("stale", 1, 0, 0)}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := old.Persist(ctx); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	fresh := newTestMemory(t, MemoryConfig{
		SnapshotPath: path,
		Corpus: func(context.Context) ([]Chunk, error) {
			return []Chunk{chunk("rebuilt", 1, 0, 0)}, nil
		},
	})
	if err := fresh.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	results, err := fresh.Search(ctx, []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].Chunk.ID != "rebuilt" {
		t.Fatalf("after mismatch Load(), results = %+v", results)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "opposite", a: []float32{1, 0, 0}, b: []float32{-1, 0, 0}, want: -1},
		{name: "orthogonal", a: []float32{1, 0, 0}, b: []float32{0, 1, 0}, want: 0},
		{name: "zero vector", a: []float32{0, 0, 0}, b: []float32{1, 2, 3}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cosineSimilarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("cosineSimilarity() = %f, want %f", got, tt.want)
			}
		})
	}
}
