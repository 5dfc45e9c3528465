// Package cmd defines the copilot CLI.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/copilotd/copilot/internal/config"
	"github.com/copilotd/copilot/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "copilot",
	Short: "Support copilot with retrieval-grounded answers",
	Long: `copilot answers product support questions from an indexed documentation
corpus. Answers are grounded in retrieved excerpts and tagged with their
sources; when nothing relevant is indexed the copilot says so instead of
guessing.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads configuration and builds the logger from it.
func loadConfig() (*config.Config, log.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), JSON: cfg.LogJSON})
	return cfg, logger, nil
}
