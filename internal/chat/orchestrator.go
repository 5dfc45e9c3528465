package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/copilotd/copilot/internal/conversation"
	"github.com/copilotd/copilot/internal/generation"
	"github.com/copilotd/copilot/internal/retrieval"
)

// noContextAnswer is the fixed reply when nothing relevant is indexed.
const noContextAnswer = "I couldn't find anything in the documentation relevant to your question. " +
	"Try rephrasing it, or contact support directly."

// errorAnswer is the reply for unexpected internal failures. It leaks no
// detail about the failure.
const errorAnswer = "Something went wrong while answering your question. Please try again."

// Retriever supplies evidence for a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]retrieval.Evidence, error)
}

// Generator produces a grounded answer. It returns a usable answer even on
// failure, signalled by generation.ErrGenerationDegraded.
type Generator interface {
	Generate(ctx context.Context, question string, evidence []retrieval.Evidence) (string, error)
}

// TurnStore appends transcript turns.
type TurnStore interface {
	Append(ctx context.Context, userID, sessionID, role, content string) error
}

// Orchestrator runs the per-question state machine.
type Orchestrator struct {
	users     UserDirectory
	retriever Retriever
	generator Generator
	turns     TurnStore
	logger    *slog.Logger
}

// Config configures an Orchestrator.
type Config struct {
	Users     UserDirectory
	Retriever Retriever
	Generator Generator
	Turns     TurnStore
	Logger    *slog.Logger
}

// NewOrchestrator creates a chat orchestrator.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Users == nil:
		return nil, errors.New("chat: user directory is required")
	case cfg.Retriever == nil:
		return nil, errors.New("chat: retriever is required")
	case cfg.Generator == nil:
		return nil, errors.New("chat: generator is required")
	case cfg.Turns == nil:
		return nil, errors.New("chat: turn store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		users:     cfg.Users,
		retriever: cfg.Retriever,
		generator: cfg.Generator,
		turns:     cfg.Turns,
		logger:    logger,
	}, nil
}

// Ask answers one question. The only error it returns is ErrUserNotFound
// (or an input validation error); every backend failure is folded into the
// Response status so the caller always has something to show.
func (o *Orchestrator) Ask(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Question) == "" {
		return Response{}, errors.New("question is required")
	}
	if req.UserID == "" || req.SessionID == "" {
		return Response{}, errors.New("user id and session id are required")
	}

	username, err := o.users.Lookup(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Response{}, ErrUserNotFound
		}
		return Response{}, fmt.Errorf("resolving user: %w", err)
	}

	log := o.logger.With("user_id", req.UserID, "session_id", req.SessionID)
	log.Debug("question received", "state", stateReceived)

	// The user's turn goes into the transcript before anything else, whatever
	// happens downstream.
	o.append(ctx, req, conversation.RoleUser, req.Question)

	if isGreeting(req.Question) {
		log.Debug("greeting short-circuit", "state", stateGreeting)
		answer := greetingAnswer(username)
		o.append(ctx, req, conversation.RoleAssistant, answer)
		return Response{Answer: answer, Sources: []Source{}, Status: StatusGreeting}, nil
	}

	log.Debug("retrieving evidence", "state", stateRetrieving)
	evidence, err := o.retriever.Retrieve(ctx, req.Question)
	if err != nil {
		log.Error("retrieval failed", "error", err)
		o.append(ctx, req, conversation.RoleAssistant, errorAnswer)
		return Response{Answer: errorAnswer, Sources: []Source{}, Status: StatusError}, nil
	}

	if len(evidence) == 0 {
		log.Debug("no relevant evidence", "state", stateRetrievedEmpty)
		o.append(ctx, req, conversation.RoleAssistant, noContextAnswer)
		return Response{Answer: noContextAnswer, Sources: []Source{}, Status: StatusNoContext}, nil
	}

	log.Debug("evidence retrieved", "state", stateRetrievedOK, "evidence", len(evidence))

	log.Debug("generating answer", "state", stateGenerating)
	answer, err := o.generator.Generate(ctx, req.Question, evidence)

	status := StatusSuccess
	finalState := stateGenerated
	switch {
	case err == nil:
	case errors.Is(err, generation.ErrGenerationDegraded):
		status = StatusDegraded
		finalState = stateDegraded
		log.Warn("generation degraded", "error", err)
	default:
		// Generators honor the degraded contract; anything else is a
		// programming error, still answered safely.
		status = StatusError
		finalState = stateDegraded
		answer = errorAnswer
		log.Error("generator broke its contract", "error", err)
	}
	log.Debug("generation finished", "state", finalState)

	// Unconditional once generation was attempted.
	o.append(ctx, req, conversation.RoleAssistant, answer)
	log.Debug("turns persisted", "state", statePersisted)

	sources := make([]Source, len(evidence))
	for i, ev := range evidence {
		provenance := ev.Chunk.Metadata["source"]
		if provenance == "" {
			provenance = "unknown"
		}
		sources[i] = Source{Provenance: provenance, Confidence: ev.Confidence}
	}

	log.Debug("responding", "state", stateResponded, "status", status)
	return Response{Answer: answer, Sources: sources, Status: status}, nil
}

// append writes a transcript turn. Persistence failures are logged and
// swallowed: a missing turn is an audit gap, a missing answer is not.
func (o *Orchestrator) append(ctx context.Context, req Request, role, content string) {
	if err := o.turns.Append(ctx, req.UserID, req.SessionID, role, content); err != nil {
		o.logger.Error("appending transcript turn",
			"user_id", req.UserID, "session_id", req.SessionID, "role", role, "error", err)
	}
}
