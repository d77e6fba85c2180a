package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lextransition/internal/models"
)

func TestHashingEmbedderDeterministic(t *testing.T) {
	h := NewHashingEmbedder(64)
	a, err := h.Embed(context.Background(), "Punishment for murder")
	require.NoError(t, err)
	b, err := h.Embed(context.Background(), "PUNISHMENT for Murder!")
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)

	var sum float64
	for _, x := range a {
		sum += x * x
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-9)
}

func TestHashingEmbedderEmptyText(t *testing.T) {
	v, err := NewHashingEmbedder(0).Embed(context.Background(), "  ")
	require.NoError(t, err)
	assert.Len(t, v, DefaultHashingDimensions)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"section", "302", "ipc"}, Tokenize("Section 302, IPC."))
}

func TestResolveHost(t *testing.T) {
	u, err := ResolveHost("http://ollama:11434")
	require.NoError(t, err)
	assert.Equal(t, "ollama:11434", u.Host)

	_, err = ResolveHost("ollama")
	assert.Error(t, err)

	u, err = ResolveHost("")
	require.NoError(t, err)
	assert.NotEmpty(t, u.Host)
}

type countingEmbedder struct {
	calls atomic.Int32
	fail  string
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	c.calls.Add(1)
	if text == c.fail {
		return nil, errors.New("boom")
	}
	return []float64{float64(len(text)), 1}, nil
}

func TestEmbedChunks(t *testing.T) {
	chunks := make([]models.Chunk, 20)
	for i := range chunks {
		chunks[i] = models.Chunk{ID: fmt.Sprint(i), Text: fmt.Sprintf("chunk %d", i)}
	}

	var last int
	e := &countingEmbedder{}
	err := EmbedChunks(context.Background(), e, chunks, 4, func(processed, total int) {
		assert.Equal(t, 20, total)
		last = processed
	})
	require.NoError(t, err)
	assert.Equal(t, 20, last)
	for _, c := range chunks {
		assert.Equal(t, float64(len(c.Text)), c.Embedding[0])
	}
}

func TestEmbedChunksFailure(t *testing.T) {
	chunks := []models.Chunk{{ID: "a", Text: "ok"}, {ID: "b", Text: "bad"}}
	err := EmbedChunks(context.Background(), &countingEmbedder{fail: "bad"}, chunks, 1, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk b")
}
