package embedding

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"lextransition/internal/models"
)

// Embedder turns text into a fixed-length vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// EmbedChunks fills in the embedding of every chunk, running at most limit
// requests at once. The first failure cancels the rest.
func EmbedChunks(ctx context.Context, e Embedder, chunks []models.Chunk, limit int,
	progressFunc func(processed, total int)) error {

	if limit <= 0 {
		limit = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var mu sync.Mutex
	processed := 0
	total := len(chunks)

	for i := range chunks {
		i := i
		g.Go(func() error {
			embedding, err := e.Embed(ctx, chunks[i].Text)
			if err != nil {
				return fmt.Errorf("failed to embed chunk %s: %w", chunks[i].ID, err)
			}

			// each goroutine owns chunks[i]; the mutex guards the counter
			chunks[i].Embedding = embedding
			mu.Lock()
			processed++
			if progressFunc != nil {
				progressFunc(processed, total)
			}
			mu.Unlock()
			return nil
		})
	}

	return g.Wait()
}
