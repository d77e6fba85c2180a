package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
)

// OllamaEmbedder generates embeddings using Ollama API
type OllamaEmbedder struct {
	Client     *api.Client
	Model      string
	MaxRetries int
	Timeout    time.Duration
}

// ResolveHost parses an Ollama host URL, falling back to OLLAMA_HOST
func ResolveHost(host string) (*url.URL, error) {
	if host == "" {
		return envconfig.Host(), nil
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid ollama host %q: scheme and host required", host)
	}
	return u, nil
}

// NewOllamaEmbedder creates a new Ollama embedder. Retries are disabled;
// set MaxRetries for administrative batch jobs.
func NewOllamaEmbedder(host string, model string) (*OllamaEmbedder, error) {
	hostURL, err := ResolveHost(host)
	if err != nil {
		return nil, err
	}
	client := api.NewClient(hostURL, http.DefaultClient)

	return &OllamaEmbedder{
		Client:  client,
		Model:   model,
		Timeout: time.Second * 30,
	}, nil
}

// Embed generates an embedding for a text
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	var embedding []float64
	var err error

	for retries := 0; retries <= e.MaxRetries; retries++ {
		if retries > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(retries) * time.Second):
			}
		}

		embedding, err = e.createEmbedding(ctx, text)
		if err == nil {
			return embedding, nil
		}
		if ctx.Err() != nil {
			break
		}
	}

	if e.MaxRetries == 0 {
		return nil, err
	}
	return nil, fmt.Errorf("failed to create embedding after %d retries: %w", e.MaxRetries, err)
}

// createEmbedding is a helper function to create a single embedding
func (e *OllamaEmbedder) createEmbedding(ctx context.Context, text string) ([]float64, error) {
	req := api.EmbeddingRequest{
		Model:   e.Model,
		Prompt:  text,
		Options: map[string]any{},
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	resp, err := e.Client.Embeddings(ctx, &req)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("model %s returned an empty embedding", e.Model)
	}

	return resp.Embedding, nil
}
