// Package llm defines the text-generation strategy used to phrase answers:
// the Generator interface, its backends and the closed-book prompt.
package llm

import (
	"context"
	"fmt"
	"time"

	"lextransition/internal/models"
)

// Generator produces text for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type timeoutGenerator struct {
	next    Generator
	timeout time.Duration
}

// WithTimeout bounds every call to g. Failures and timeouts are reported
// as models.ErrGenerationUnavailable; nothing is retried.
func WithTimeout(g Generator, timeout time.Duration) Generator {
	return &timeoutGenerator{next: g, timeout: timeout}
}

func (t *timeoutGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	out, err := t.next.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrGenerationUnavailable, err)
	}
	return out, nil
}
