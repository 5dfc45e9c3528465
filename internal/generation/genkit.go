package generation

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// GenkitBackend drives a Genkit-registered chat model.
type GenkitBackend struct {
	g         *genkit.Genkit
	modelName string
}

// NewGenkitBackend creates a backend for the named model, e.g.
// "ollama/qwen3:8b" or "googleai/gemini-2.5-flash".
func NewGenkitBackend(g *genkit.Genkit, modelName string) (*GenkitBackend, error) {
	if g == nil {
		return nil, fmt.Errorf("generation: genkit instance is required")
	}
	if modelName == "" {
		return nil, fmt.Errorf("generation: model name is required")
	}
	return &GenkitBackend{g: g, modelName: modelName}, nil
}

// Generate runs one completion and returns its text.
func (b *GenkitBackend) Generate(ctx context.Context, system, prompt string) (string, error) {
	resp, err := genkit.Generate(ctx, b.g,
		ai.WithModelName(b.modelName),
		ai.WithSystem(system),
		ai.WithPrompt(prompt),
	)
	if err != nil {
		return "", fmt.Errorf("model %s: %w", b.modelName, err)
	}
	return resp.Text(), nil
}
