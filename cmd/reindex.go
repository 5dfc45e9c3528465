package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/copilotd/copilot/internal/app"
	"github.com/copilotd/copilot/internal/index"
	"github.com/copilotd/copilot/internal/ingest"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the vector index from the FAQ corpus",
	Long: `Reindex discards the stored index and rebuilds it from the configured FAQ
corpus file. Use it after switching embedding backends or editing the corpus.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReindex()
	},
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}

func runReindex() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	corpus := ingest.FAQCorpus(cfg.FAQPath, cfg.ChunkSize, cfg.ChunkOverlap, a.Embedder)
	chunks, err := corpus(ctx)
	if err != nil {
		return fmt.Errorf("building corpus: %w", err)
	}

	if err := a.Index.Rebuild(ctx, chunks); err != nil {
		if errors.Is(err, index.ErrRebuildInProgress) {
			return fmt.Errorf("another rebuild is in flight, retry later")
		}
		return fmt.Errorf("rebuilding index: %w", err)
	}
	if err := a.Index.Persist(ctx); err != nil {
		return fmt.Errorf("persisting index: %w", err)
	}

	fmt.Printf("Index rebuilt: %d chunks\n", len(chunks))
	return nil
}
