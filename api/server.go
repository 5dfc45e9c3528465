// Package api exposes the copilot over HTTP.
//
// Routes:
//
//	POST /signup                     register an account
//	POST /login                      exchange credentials for a token
//	POST /api/chat                   ask a question (authenticated)
//	GET  /api/sessions               list the caller's sessions
//	GET  /api/sessions/{id}/turns    read one transcript
//	POST /api/ingest                 ingest a document (authenticated)
//	GET  /health                     liveness probe
//	GET  /ready                      readiness probe
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/copilotd/copilot/internal/log"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds request header reads (Slowloris guard).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is generous because chat responses wait on the
	// generation backend.
	WriteTimeout = 180 * time.Second

	// IdleTimeout caps keep-alive connections between requests.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP front of the copilot.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	auth    *AuthHandler
	chat    *ChatHandler
	history *HistoryHandler
	ingest  *IngestHandler
	health  *HealthHandler
}

// ServerConfig wires the handlers' dependencies.
type ServerConfig struct {
	Accounts     Accounts
	Tokens       TokenSigner
	Orchestrator Orchestrator
	Transcripts  Transcripts
	Ingestor     Ingestor
	Pool         *pgxpool.Pool
	Logger       log.Logger
}

// NewServer creates an HTTP server with all routes registered.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Tokens == nil {
		return nil, errors.New("api: token verifier is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	s := &Server{
		mux:     http.NewServeMux(),
		logger:  logger,
		auth:    NewAuthHandler(cfg.Accounts, cfg.Tokens, logger),
		chat:    NewChatHandler(cfg.Orchestrator, logger),
		history: NewHistoryHandler(cfg.Transcripts, logger),
		ingest:  NewIngestHandler(cfg.Ingestor, logger),
		health:  NewHealthHandler(cfg.Pool, logger),
	}

	authn := requireAuth(cfg.Tokens, logger)

	s.mux.Handle("POST /signup", http.HandlerFunc(s.auth.signup))
	s.mux.Handle("POST /login", http.HandlerFunc(s.auth.login))
	s.mux.Handle("POST /api/chat", authn(http.HandlerFunc(s.chat.ask)))
	s.mux.Handle("GET /api/sessions", authn(http.HandlerFunc(s.history.listSessions)))
	s.mux.Handle("GET /api/sessions/{id}/turns", authn(http.HandlerFunc(s.history.readTranscript)))
	s.mux.Handle("POST /api/ingest", authn(http.HandlerFunc(s.ingest.ingest)))
	s.mux.HandleFunc("GET /health", s.health.liveness)
	s.mux.HandleFunc("GET /ready", s.health.readiness)

	return s, nil
}

// Handler returns the server's handler with middleware applied.
// Order: recovery, then logging, then routing.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
	)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
