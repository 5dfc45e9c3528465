package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"
)

// Memory is an in-process vector index with a durable JSON snapshot.
//
// Chunks live in a slice so insertion order is preserved, which gives stable
// tie-breaking for equal similarity scores. Rebuild constructs the new chunk
// set off to the side and swaps it in atomically; searches against the old
// set keep working until the swap.
type Memory struct {
	mu     sync.RWMutex
	chunks []Chunk

	// rebuildMu serializes rebuilds; TryLock turns a concurrent rebuild into
	// ErrRebuildInProgress instead of queueing it.
	rebuildMu sync.Mutex

	fingerprint  Fingerprint
	snapshotPath string
	corpus       CorpusFunc
	logger       *slog.Logger
}

// snapshot is the on-disk representation of a Memory index.
type snapshot struct {
	Fingerprint Fingerprint `json:"fingerprint"`
	Chunks      []Chunk     `json:"chunks"`
}

// MemoryConfig configures a Memory index.
type MemoryConfig struct {
	// Fingerprint of the embedder this index is built with. Required.
	Fingerprint Fingerprint

	// SnapshotPath is the snapshot file location. Required for Persist/Load.
	SnapshotPath string

	// Corpus supplies the canonical corpus for automatic rebuilds when the
	// snapshot is missing or was built with a different embedder. Optional.
	Corpus CorpusFunc

	// Logger for diagnostics (nil = slog.Default()).
	Logger *slog.Logger
}

// NewMemory creates an empty in-memory index.
func NewMemory(cfg MemoryConfig) (*Memory, error) {
	if cfg.Fingerprint.Dimension <= 0 {
		return nil, fmt.Errorf("%w: fingerprint dimension must be positive", ErrDimensionMismatch)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		fingerprint:  cfg.Fingerprint,
		snapshotPath: cfg.SnapshotPath,
		corpus:       cfg.Corpus,
		logger:       logger,
	}, nil
}

// Add appends chunks to the index.
func (m *Memory) Add(_ context.Context, chunks []Chunk) error {
	if err := checkDimensions(chunks, m.fingerprint); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, chunks...)
	return nil
}

// Search returns up to k chunks ranked by decreasing cosine similarity.
// Ties preserve insertion order (stable sort over the insertion-ordered
// slice).
func (m *Memory) Search(_ context.Context, query []float32, k int) ([]SimilarityResult, error) {
	if len(query) != m.fingerprint.Dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, index requires %d",
			ErrDimensionMismatch, len(query), m.fingerprint.Dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	results := make([]SimilarityResult, len(m.chunks))
	for i, c := range m.chunks {
		results[i] = SimilarityResult{Chunk: c, Similarity: cosineSimilarity(query, c.Embedding)}
	}
	m.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Rebuild replaces the entire chunk set. The new set is validated before the
// swap, so a failed rebuild leaves the previous index intact and queryable.
func (m *Memory) Rebuild(_ context.Context, chunks []Chunk) error {
	if !m.rebuildMu.TryLock() {
		return ErrRebuildInProgress
	}
	defer m.rebuildMu.Unlock()

	if err := checkDimensions(chunks, m.fingerprint); err != nil {
		return err
	}

	fresh := make([]Chunk, len(chunks))
	copy(fresh, chunks)

	m.mu.Lock()
	m.chunks = fresh
	m.mu.Unlock()

	m.logger.Debug("index rebuilt", "chunks", len(fresh))
	return nil
}

// Persist writes the snapshot atomically (temp file + rename), guarded by a
// file lock against other processes sharing the snapshot path.
func (m *Memory) Persist(ctx context.Context) error {
	if m.snapshotPath == "" {
		return fmt.Errorf("persist: no snapshot path configured")
	}

	m.mu.RLock()
	snap := snapshot{Fingerprint: m.fingerprint, Chunks: m.chunks}
	data, err := json.Marshal(snap)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.snapshotPath), 0o750); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	lock := flock.New(m.snapshotPath + ".lock")
	locked, err := lock.TryLockContext(ctx, 0)
	if err != nil || !locked {
		return fmt.Errorf("locking snapshot file: %w", err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			m.logger.Warn("unlocking snapshot file", "error", err)
		}
	}()

	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}

	m.logger.Debug("index persisted", "path", m.snapshotPath, "chunks", len(snap.Chunks))
	return nil
}

// Load restores the index from its snapshot. A missing snapshot, or one
// written by a different embedder configuration, falls back to a full rebuild
// from the canonical corpus; without a corpus, Load fails with
// ErrIndexUnavailable.
func (m *Memory) Load(ctx context.Context) error {
	if m.snapshotPath == "" {
		return fmt.Errorf("load: no snapshot path configured")
	}

	data, err := os.ReadFile(m.snapshotPath)
	if os.IsNotExist(err) {
		m.logger.Info("snapshot missing, rebuilding from corpus", "path", m.snapshotPath)
		return m.rebuildFromCorpus(ctx)
	}
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parsing snapshot: %w", err)
	}

	if snap.Fingerprint != m.fingerprint {
		m.logger.Warn("snapshot built with different embedder, rebuilding",
			"snapshot", snap.Fingerprint.String(),
			"index", m.fingerprint.String())
		return m.rebuildFromCorpus(ctx)
	}

	m.mu.Lock()
	m.chunks = snap.Chunks
	m.mu.Unlock()

	m.logger.Info("index loaded", "path", m.snapshotPath, "chunks", len(snap.Chunks))
	return nil
}

func (m *Memory) rebuildFromCorpus(ctx context.Context) error {
	if m.corpus == nil {
		return ErrIndexUnavailable
	}

	chunks, err := m.corpus(ctx)
	if err != nil {
		return fmt.Errorf("loading corpus: %w", err)
	}
	if err := m.Rebuild(ctx, chunks); err != nil {
		return err
	}
	return m.Persist(ctx)
}

// Len reports the number of indexed chunks.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}
