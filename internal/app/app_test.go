package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lextransition/internal/config"
	"lextransition/internal/index"
	"lextransition/internal/ingest"
	"lextransition/internal/llm"
	"lextransition/internal/models"
	"lextransition/internal/processor"
)

const bnsText = `THE BHARATIYA NYAYA SANHITA, 2023
103. Punishment for murder.—(1) Whoever commits murder shall be punished with death or imprisonment for life, and shall also be liable to fine.`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Corpus.SnapshotDir = t.TempDir()
	cfg.Embedding.Dimensions = 64
	return cfg
}

func TestBuildWithoutSnapshotFallsBack(t *testing.T) {
	a, err := Build(testConfig(t), nil)
	require.NoError(t, err)

	assert.Equal(t, 0, a.Index.Snapshot().Len())
	assert.Positive(t, a.Table.Len())

	ans := a.Assembler.Ask(context.Background(), "What replaced Section 302 IPC?")
	assert.Equal(t, models.StatusFallback, ans.Status)
	assert.Equal(t, models.ReasonRetrievalUnavailable, ans.Reason)
}

func TestBuildServesPublishedSnapshot(t *testing.T) {
	cfg := testConfig(t)

	a, err := Build(cfg, nil)
	require.NoError(t, err)

	corpus := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(corpus, "bns.txt"), []byte(bnsText), 0o644))
	in := &ingest.Ingester{
		Store:        a.Store,
		Processor:    processor.NewPDFProcessor(cfg.Corpus.ChunkSize, cfg.Corpus.Overlap),
		Embedder:     a.Embedder,
		EmbedderName: EmbedderName(cfg),
	}
	_, _, err = in.Run(context.Background(), corpus)
	require.NoError(t, err)

	swapped, err := index.Reload(a.Store, a.Index)
	require.NoError(t, err)
	require.True(t, swapped)

	ans := a.Assembler.Ask(context.Background(), "What is the punishment under Section 302 IPC?")
	require.Equal(t, models.StatusDone, ans.Status, ans.Reason)
	assert.NotEmpty(t, ans.Citations)

	// a fresh build picks up the published snapshot directly
	b, err := Build(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, a.Index.Snapshot().Version(), b.Index.Snapshot().Version())
}

func TestBuildRejectsBadMappingFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mapping.Path = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := Build(cfg, nil)
	assert.Error(t, err)
}

func TestProviders(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, "hashing:256", EmbedderName(cfg))

	g, err := NewGenerator(cfg)
	require.NoError(t, err)
	assert.IsType(t, &llm.Extractive{}, g)

	cfg.Ollama.Host = "http://localhost:11434"
	cfg.Embedding.Provider = config.ProviderOllama
	assert.Equal(t, "ollama:nomic-embed-text", EmbedderName(cfg))

	cfg.Ollama.Temperature = 0.4
	cfg.Ollama.Seed = 7
	g, err = NewGenerator(cfg)
	require.NoError(t, err)
	require.IsType(t, &llm.OllamaLLM{}, g)
	o := g.(*llm.OllamaLLM)
	assert.Equal(t, 0.4, o.Temperature)
	assert.Equal(t, llm.DefaultMaxTokens, o.MaxTokens)
	assert.Equal(t, 7, o.Seed)

	cfg.Ollama.Host = "not a url"
	_, err = NewEmbedder(cfg)
	assert.Error(t, err)
}
