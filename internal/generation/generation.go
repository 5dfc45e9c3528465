// Package generation produces grounded answers from retrieved evidence.
package generation

import (
	"context"
	"errors"
)

// ErrGenerationDegraded reports that every generation attempt failed and the
// fallback answer was substituted. Callers surface a degraded status, never
// the raw backend error.
var ErrGenerationDegraded = errors.New("generation degraded")

// FallbackAnswer is returned when the generation backend cannot produce an
// answer. It carries no evidence and makes no claims.
const FallbackAnswer = "I'm having trouble generating an answer right now. " +
	"Please try again in a moment, or rephrase your question."

// Backend produces one completion for a system instruction and user prompt.
type Backend interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}
