// Package app wires the application together.
//
// Setup constructs every component in dependency order and returns an App
// container; Close releases resources in reverse order. Commands consume the
// container instead of wiring components themselves.
package app

import (
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/copilotd/copilot/internal/chat"
	"github.com/copilotd/copilot/internal/config"
	"github.com/copilotd/copilot/internal/conversation"
	"github.com/copilotd/copilot/internal/embedding"
	"github.com/copilotd/copilot/internal/generation"
	"github.com/copilotd/copilot/internal/index"
	"github.com/copilotd/copilot/internal/ingest"
	"github.com/copilotd/copilot/internal/log"
	"github.com/copilotd/copilot/internal/retrieval"
	"github.com/copilotd/copilot/internal/user"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit *genkit.Genkit
	Pool   *pgxpool.Pool

	// Embedder is the backend chosen at startup. EmbeddingDegraded reports
	// that the remote fallback was substituted for the local primary.
	Embedder          embedding.Embedder
	EmbeddingDegraded bool

	Index        index.VectorIndex
	Ingest       *ingest.Service
	Retrieval    *retrieval.Coordinator
	Generation   *generation.Controller
	Users        *user.Store
	Tokens       *user.TokenIssuer
	Turns        *conversation.PostgresStore
	Orchestrator *chat.Orchestrator

	otelShutdown func()
}

// Close releases all resources.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.otelShutdown != nil {
		a.otelShutdown()
	}
	return nil
}
