package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/copilotd/copilot/internal/app"
	"github.com/copilotd/copilot/internal/index"
	"github.com/copilotd/copilot/internal/ingest"
)

var ingestFAQ bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Chunk, embed and index documents",
	Long: `Ingest reads text files, splits them into overlapping chunks, embeds each
chunk and adds it to the vector index. With --faq it ingests the canonical
FAQ corpus file instead of file arguments.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(args)
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestFAQ, "faq", false, "ingest the configured FAQ corpus file")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(files []string) error {
	if !ingestFAQ && len(files) == 0 {
		return fmt.Errorf("nothing to ingest: pass file arguments or --faq")
	}

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

	total := 0

	if ingestFAQ {
		entries, err := ingest.LoadFAQ(cfg.FAQPath)
		if err != nil {
			return err
		}
		for _, e := range entries {
			count, err := a.Ingest.Ingest(ctx, ingest.RenderFAQ(e), map[string]string{
				index.MetaSource: "FAQ",
				"question":       e.Question,
			})
			if err != nil {
				return fmt.Errorf("ingesting FAQ entry %q: %w", e.Question, err)
			}
			total += count
		}
		fmt.Printf("Ingested %d FAQ entries (%d chunks)\n", len(entries), total)
	}

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading %s: %w", file, err)
		}
		count, err := a.Ingest.Ingest(ctx, string(data), map[string]string{
			index.MetaSource: filepath.Base(file),
		})
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", file, err)
		}
		total += count
		fmt.Printf("Ingested %s (%d chunks)\n", file, count)
	}

	if err := a.Index.Persist(ctx); err != nil {
		return fmt.Errorf("persisting index: %w", err)
	}
	fmt.Printf("Done: %d chunks indexed\n", total)
	return nil
}
