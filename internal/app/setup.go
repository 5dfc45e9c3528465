package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/copilotd/copilot/db"
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

// generationRPS throttles calls to the generation backend across requests.
const generationRPS = 2

// Setup creates and initializes the application. On error, everything
// already initialized is released.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelShutdown = provideOtelShutdown(ctx, cfg, logger)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder, degraded, err := provideEmbedder(ctx, g, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Embedder = embedder
	a.EmbeddingDegraded = degraded

	idx, err := provideIndex(ctx, cfg, pool, embedder, logger)
	if err != nil {
		return nil, err
	}
	a.Index = idx

	a.Ingest, err = ingest.NewService(ingest.Config{
		ChunkSize: cfg.ChunkSize,
		Overlap:   cfg.ChunkOverlap,
		Embedder:  embedder,
		Indexer:   idx,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	a.Retrieval, err = retrieval.NewCoordinator(retrieval.Config{
		Embedder:  embedder,
		Searcher:  idx,
		TopK:      cfg.TopK,
		Threshold: cfg.Threshold,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	backend, err := generation.NewGenkitBackend(g, cfg.ModelName)
	if err != nil {
		return nil, err
	}
	a.Generation, err = generation.NewController(generation.Config{
		Backend:           backend,
		RequestsPerSecond: generationRPS,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}

	a.Users, err = user.NewStore(pool, logger)
	if err != nil {
		return nil, err
	}
	a.Turns, err = conversation.NewPostgresStore(pool, logger)
	if err != nil {
		return nil, err
	}
	if cfg.JWTSecret != "" {
		a.Tokens, err = user.NewTokenIssuer([]byte(cfg.JWTSecret), time.Duration(cfg.TokenTTLMin)*time.Minute)
		if err != nil {
			return nil, err
		}
	}

	a.Orchestrator, err = chat.NewOrchestrator(chat.Config{
		Users:     userDirectory{store: a.Users},
		Retriever: a.Retrieval,
		Generator: a.Generation,
		Turns:     a.Turns,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	return a, nil
}

// userDirectory adapts the account store to the orchestrator's contract.
type userDirectory struct {
	store *user.Store
}

func (d userDirectory) Lookup(ctx context.Context, userID string) (string, error) {
	u, err := d.store.Lookup(ctx, userID)
	if errors.Is(err, user.ErrNotFound) {
		return "", chat.ErrUserNotFound
	}
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

// provideOtelShutdown exports traces over OTLP HTTP to a local agent. An
// empty agent host disables tracing; export failures never block startup.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	if cfg.OtelAgentHost == "" {
		return func() {}
	}

	// Genkit's TracerProvider reads these at initialization.
	if cfg.OtelServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.OtelServiceName)
	}
	if cfg.OtelEnvironment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.OtelEnvironment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OtelAgentHost),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("creating trace exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)
	logger.Debug("tracing enabled", "agent", cfg.OtelAgentHost, "service", cfg.OtelServiceName)

	shutdown := tracing.TracerProvider().Shutdown
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations and creates the connection pool. pgvector
// types are registered per connection so vector parameters bind natively.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideGenkit initializes Genkit with the Ollama plugin and, when an API
// key is present, the Google AI plugin. Ollama models need explicit
// registration; Google AI models are discovered automatically.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}

	var g *genkit.Genkit
	if googleAIConfigured() {
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin, &googlegenai.GoogleAI{}))
	} else {
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
	}
	if g == nil {
		return nil, errors.New("initializing genkit")
	}

	if model, ok := strings.CutPrefix(cfg.ModelName, "ollama/"); ok {
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{Name: model, Type: "chat"}, nil)
	}
	ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.OllamaEmbedderModel, nil)

	logger.Info("genkit initialized",
		"model", cfg.ModelName, "ollama_host", cfg.OllamaHost, "googleai", googleAIConfigured())
	return g, nil
}

// googleAIConfigured reports whether the Google AI plugin can authenticate.
func googleAIConfigured() bool {
	return os.Getenv("GEMINI_API_KEY") != "" || os.Getenv("GOOGLE_API_KEY") != ""
}

// provideEmbedder probes the local Ollama embedder first and falls back to
// the Google AI embedder when the probe fails.
func provideEmbedder(ctx context.Context, g *genkit.Genkit, cfg *config.Config, logger log.Logger) (embedding.Embedder, bool, error) {
	primary := embedding.Candidate{
		Name:     "ollama/" + cfg.OllamaEmbedderModel,
		Embedder: ollama.Embedder(g, cfg.OllamaHost),
	}

	var fallbackEmbedder ai.Embedder
	if googleAIConfigured() {
		fallbackEmbedder = googlegenai.GoogleAIEmbedder(g, cfg.GoogleEmbedderModel)
	}
	fallback := embedding.Candidate{
		Name:     "googleai/" + cfg.GoogleEmbedderModel,
		Embedder: fallbackEmbedder,
	}

	return embedding.Select(ctx, primary, fallback, logger)
}

// provideIndex builds the configured vector index backend and loads its
// persisted state. A missing corpus is tolerated: the index starts empty and
// fills through the ingestion endpoint.
func provideIndex(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, embedder embedding.Embedder, logger log.Logger) (index.VectorIndex, error) {
	fingerprint := index.Fingerprint{Embedder: embedder.Name(), Dimension: embedder.Dimension()}

	var corpus index.CorpusFunc
	if _, err := os.Stat(cfg.FAQPath); err == nil {
		corpus = ingest.FAQCorpus(cfg.FAQPath, cfg.ChunkSize, cfg.ChunkOverlap, embedder)
	} else {
		logger.Warn("FAQ corpus file missing, automatic rebuilds disabled", "path", cfg.FAQPath)
	}

	var (
		idx index.VectorIndex
		err error
	)
	switch cfg.IndexBackend {
	case config.IndexBackendPostgres:
		idx, err = index.NewPostgres(index.PostgresConfig{
			Pool:        pool,
			Fingerprint: fingerprint,
			Corpus:      corpus,
			Logger:      logger,
		})
	default:
		idx, err = index.NewMemory(index.MemoryConfig{
			Fingerprint:  fingerprint,
			SnapshotPath: cfg.SnapshotPath,
			Corpus:       corpus,
			Logger:       logger,
		})
	}
	if err != nil {
		return nil, err
	}

	if err := idx.Load(ctx); err != nil {
		if errors.Is(err, index.ErrIndexUnavailable) {
			logger.Warn("index starting empty, ingest documents to populate it")
			return idx, nil
		}
		return nil, fmt.Errorf("loading index: %w", err)
	}
	return idx, nil
}
