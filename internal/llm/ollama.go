package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/ollama/ollama/api"

	"lextransition/internal/embedding"
)

// Default sampling settings. Answers are closed-book, so the model is
// kept close to deterministic.
const (
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 1024
)

// stopSequences end generation if the model starts a new prompt section
var stopSequences = []string{"\nQuestion:", "\nSources:"}

// OllamaLLM generates answers with an Ollama model
type OllamaLLM struct {
	Client      *api.Client
	Model       string
	Temperature float64
	MaxTokens   int
	// Seed makes sampling reproducible when non-zero
	Seed int
}

// NewOllamaLLM creates a new Ollama LLM client with default sampling settings
func NewOllamaLLM(host string, model string) (*OllamaLLM, error) {
	hostURL, err := embedding.ResolveHost(host)
	if err != nil {
		return nil, err
	}

	return &OllamaLLM{
		Client:      api.NewClient(hostURL, http.DefaultClient),
		Model:       model,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}, nil
}

// Options returns the model options sent with every request
func (o *OllamaLLM) Options() map[string]any {
	opts := map[string]any{
		"temperature": o.Temperature,
		"stop":        stopSequences,
	}
	if o.MaxTokens > 0 {
		opts["num_predict"] = o.MaxTokens
	}
	if o.Seed != 0 {
		opts["seed"] = o.Seed
	}
	return opts
}

// Generate streams a completion for prompt and returns the trimmed text
func (o *OllamaLLM) Generate(ctx context.Context, prompt string) (string, error) {
	req := &api.GenerateRequest{
		Model:   o.Model,
		Prompt:  prompt,
		Options: o.Options(),
	}

	var answer strings.Builder
	err := o.Client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		answer.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama model %s: %w", o.Model, err)
	}
	return strings.TrimSpace(answer.String()), nil
}
