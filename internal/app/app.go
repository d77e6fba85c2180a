// Package app wires configuration into the running components shared by
// the server and the command line tools.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"lextransition/internal/config"
	"lextransition/internal/embedding"
	"lextransition/internal/grounding"
	"lextransition/internal/index"
	"lextransition/internal/llm"
	"lextransition/internal/mapping"
	"lextransition/internal/observability"
	"lextransition/internal/retriever"
)

// App holds the components built from a Config
type App struct {
	Config    config.Config
	Logger    *slog.Logger
	Registry  *prometheus.Registry
	Metrics   *observability.Metrics
	Table     *mapping.Table
	Index     *index.Index
	Store     *index.Store
	Embedder  embedding.Embedder
	Generator llm.Generator
	Retriever *retriever.Retriever
	Assembler *grounding.Assembler
}

// Build loads the mapping table and the current snapshot and assembles the
// answer pipeline. A missing snapshot is not an error: the index starts
// empty and every question falls back until one is published.
func Build(cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	table, err := mapping.LoadFile(cfg.Mapping.Path)
	if err != nil {
		return nil, err
	}
	meta := table.Metadata()
	logger.Info("Loaded section mappings", "entries", table.Len(), "version", meta.Version, "path", cfg.Mapping.Path)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	idx := index.New()
	idx.OnPublish(func(s *index.Snapshot) {
		metrics.SnapshotPublished(s.Len())
		logger.Info("Serving snapshot", "version", s.Version(), "chunks", s.Len())
	})

	store, err := index.NewStore(cfg.Corpus.SnapshotDir, logger.With("component", "store"))
	if err != nil {
		return nil, err
	}
	switch snap, err := store.LoadCurrent(); {
	case errors.Is(err, index.ErrNoSnapshot):
		logger.Warn("No corpus snapshot published; answers will fall back until one is built", "dir", store.Root())
	case err != nil:
		return nil, fmt.Errorf("failed to load current snapshot: %w", err)
	default:
		idx.Publish(snap)
	}

	embedder, err := NewEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	generator, err := NewGenerator(cfg)
	if err != nil {
		return nil, err
	}
	generator = llm.WithTimeout(generator, cfg.Grounding.GenerationTimeout)

	if dim := idx.Snapshot().Dimensions(); dim > 0 && strings.EqualFold(cfg.Embedding.Provider, config.ProviderHashing) && dim != cfg.Embedding.Dimensions {
		logger.Warn("Snapshot dimension does not match the embedder; retrieval will be unavailable",
			"snapshot", dim, "embedder", cfg.Embedding.Dimensions)
	}

	r := retriever.New(idx, embedder, cfg.Grounding.RetrievalTimeout, logger.With("component", "retriever"))
	assembler := grounding.New(table, r, generator, cfg.GroundingOptions(), logger.With("component", "grounding"), metrics)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Registry:  reg,
		Metrics:   metrics,
		Table:     table,
		Index:     idx,
		Store:     store,
		Embedder:  embedder,
		Generator: generator,
		Retriever: r,
		Assembler: assembler,
	}, nil
}

// NewEmbedder builds the configured embedder
func NewEmbedder(cfg config.Config) (embedding.Embedder, error) {
	if strings.EqualFold(cfg.Embedding.Provider, config.ProviderOllama) {
		e, err := embedding.NewOllamaEmbedder(cfg.Ollama.Host, cfg.Ollama.EmbeddingModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		e.Timeout = cfg.Ollama.Timeout
		return e, nil
	}
	return embedding.NewHashingEmbedder(cfg.Embedding.Dimensions), nil
}

// EmbedderName identifies the configured embedding model in ingest caches
func EmbedderName(cfg config.Config) string {
	if strings.EqualFold(cfg.Embedding.Provider, config.ProviderOllama) {
		return "ollama:" + cfg.Ollama.EmbeddingModel
	}
	return fmt.Sprintf("hashing:%d", cfg.Embedding.Dimensions)
}

// NewGenerator builds the configured generator without a timeout
func NewGenerator(cfg config.Config) (llm.Generator, error) {
	if !cfg.UseOllamaGenerator() {
		return llm.NewExtractive(), nil
	}
	g, err := llm.NewOllamaLLM(cfg.Ollama.Host, cfg.Ollama.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	g.Temperature = cfg.Ollama.Temperature
	g.MaxTokens = cfg.Ollama.MaxTokens
	g.Seed = cfg.Ollama.Seed
	return g, nil
}

// WatchSnapshots hot-swaps the index when a new snapshot is published to
// the store. It blocks until ctx is done and is a no-op when disabled.
func (a *App) WatchSnapshots(ctx context.Context) error {
	if !a.Config.Corpus.Watch {
		return nil
	}
	return index.Watch(ctx, a.Store, a.Index, a.Logger.With("component", "watch"))
}
