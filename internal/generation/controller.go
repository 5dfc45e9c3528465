package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/copilotd/copilot/internal/retrieval"
)

const (
	// maxAttempts caps sequential calls to the backend per question.
	maxAttempts = 2

	// backoffInterval is the fixed wait between attempts.
	backoffInterval = 500 * time.Millisecond

	// attemptTimeout bounds each individual backend call.
	attemptTimeout = 60 * time.Second
)

// systemInstruction constrains the model to the supplied evidence.
const systemInstruction = `You are a support assistant. Answer using ONLY the documentation excerpts provided below.
If the excerpts do not contain the answer, say you are not sure instead of guessing.
Do not invent features, policies, or numbers that are not in the excerpts.`

// Controller builds a grounded prompt and calls the backend with bounded
// retries. It never returns a raw backend error to its caller: after the
// attempt cap the answer is the fixed fallback and the error is
// ErrGenerationDegraded.
type Controller struct {
	backend Backend
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Config configures a Controller.
type Config struct {
	Backend Backend

	// RequestsPerSecond throttles backend calls. Zero disables throttling.
	RequestsPerSecond float64

	Logger *slog.Logger
}

// NewController creates a generation controller.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Backend == nil {
		return nil, errors.New("generation: backend is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Controller{backend: cfg.Backend, limiter: limiter, logger: logger}, nil
}

// Generate answers question from evidence. The returned error is nil on
// success or ErrGenerationDegraded when the fallback answer was substituted;
// in both cases the answer is non-empty and safe to show the user.
func (c *Controller) Generate(ctx context.Context, question string, evidence []retrieval.Evidence) (string, error) {
	prompt := buildPrompt(question, evidence)

	var lastErr error
attempts:
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				lastErr = fmt.Errorf("rate limit wait: %w", err)
				break
			}
		}

		answer, err := c.attempt(ctx, prompt)
		if err == nil {
			c.logger.Debug("answer generated", "attempts", attempt)
			return answer, nil
		}
		lastErr = err
		c.logger.Warn("generation attempt failed",
			"attempt", attempt, "max_attempts", maxAttempts, "error", err)

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			lastErr = fmt.Errorf("canceled between attempts: %w", ctx.Err())
			break attempts
		case <-time.After(backoffInterval):
		}
	}

	c.logger.Error("generation exhausted attempts, falling back", "error", lastErr)
	return FallbackAnswer, fmt.Errorf("%w: %w", ErrGenerationDegraded, lastErr)
}

// attempt runs one backend call under the per-attempt timeout. An empty
// answer counts as a failure.
func (c *Controller) attempt(ctx context.Context, prompt string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()

	answer, err := c.backend.Generate(attemptCtx, systemInstruction, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(answer) == "" {
		return "", errors.New("backend returned an empty answer")
	}
	return answer, nil
}

// buildPrompt concatenates the provenance-tagged evidence blocks and the
// question into one grounded prompt.
func buildPrompt(question string, evidence []retrieval.Evidence) string {
	var b strings.Builder
	b.WriteString("Documentation excerpts:\n\n")
	if len(evidence) == 0 {
		b.WriteString("(none)\n\n")
	}
	for i, ev := range evidence {
		source := ev.Chunk.Metadata["source"]
		if source == "" {
			source = "unknown"
		}
		fmt.Fprintf(&b, "[%d] (source: %s, confidence: %d)\n%s\n\n",
			i+1, source, ev.Confidence, ev.Chunk.Content)
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}
