// Package ingest builds corpus snapshots from a directory of official act
// texts, reusing the chunks of files that have not changed since the last run.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"lextransition/internal/embedding"
	"lextransition/internal/index"
	"lextransition/internal/models"
	"lextransition/internal/processor"
)

// CacheFile is kept in the snapshot directory
const CacheFile = ".ingest-cache.json"

type fileRecord struct {
	Hash   string `json:"hash"`
	Act    string `json:"act"`
	Chunks int    `json:"chunks"`
}

type cache struct {
	Embedder string                `json:"embedder"`
	Version  string                `json:"version"`
	Files    map[string]fileRecord `json:"files"`
}

// Stats summarizes one ingestion run
type Stats struct {
	Version   string        `json:"version"`
	Processed int           `json:"processed"`
	Reused    int           `json:"reused"`
	Deleted   int           `json:"deleted"`
	Total     int           `json:"total_chunks"`
	Duration  time.Duration `json:"duration"`
}

// Ingester turns source files into a published snapshot
type Ingester struct {
	Store     *index.Store
	Processor *processor.PDFProcessor
	Embedder  embedding.Embedder
	// EmbedderName identifies the embedding model; a change forces re-embedding
	EmbedderName string
	Concurrency  int
	// Acts overrides act detection per file name
	Acts     map[string]string
	Progress func(processed, total int)
	Logger   *slog.Logger
}

// Run ingests every supported file in dir and saves the result as the
// store's current snapshot
func (in *Ingester) Run(ctx context.Context, dir string) (*index.Snapshot, Stats, error) {
	start := time.Now()
	logger := in.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	files, err := listFiles(dir)
	if err != nil {
		return nil, Stats{}, err
	}
	if len(files) == 0 {
		return nil, Stats{}, fmt.Errorf("no PDF or text files in %s", dir)
	}

	old := in.loadCache(logger)
	previous := in.previousChunks(old, logger)

	next := cache{Embedder: in.EmbedderName, Files: make(map[string]fileRecord, len(files))}
	var (
		stats  Stats
		reused []models.Chunk
		fresh  []models.Chunk
	)
	for _, path := range files {
		name := filepath.Base(path)
		hash, err := processor.HashFile(path)
		if err != nil {
			return nil, Stats{}, err
		}

		if rec, ok := old.Files[name]; ok && rec.Hash == hash {
			if chunks := previous[name]; len(chunks) == rec.Chunks && len(chunks) > 0 {
				logger.Info("Reusing unchanged file", "file", name, "chunks", len(chunks))
				reused = append(reused, chunks...)
				next.Files[name] = rec
				stats.Reused++
				continue
			}
		}

		chunks, err := in.Processor.ProcessFile(ctx, path, in.Acts[name])
		if err != nil {
			return nil, Stats{}, fmt.Errorf("failed to process %s: %w", name, err)
		}
		logger.Info("Processed file", "file", name, "chunks", len(chunks))
		act := ""
		if len(chunks) > 0 {
			act = chunks[0].Provenance.Act
		}
		next.Files[name] = fileRecord{Hash: hash, Act: act, Chunks: len(chunks)}
		fresh = append(fresh, chunks...)
		stats.Processed++
	}
	for name := range old.Files {
		if _, ok := next.Files[name]; !ok {
			logger.Info("Dropping removed file", "file", name)
			stats.Deleted++
		}
	}

	if len(fresh) > 0 {
		if err := embedding.EmbedChunks(ctx, in.Embedder, fresh, in.Concurrency, in.Progress); err != nil {
			return nil, Stats{}, err
		}
	}

	b := index.NewBuilder()
	for _, c := range append(reused, fresh...) {
		if err := b.Add(c); err != nil {
			return nil, Stats{}, fmt.Errorf("failed to build snapshot: %w", err)
		}
	}
	snap := b.Build()
	if err := in.Store.Save(snap); err != nil {
		return nil, Stats{}, err
	}

	next.Version = snap.Version()
	if err := in.saveCache(next); err != nil {
		// the snapshot is already published; the next run just re-embeds
		logger.Warn("Failed to write ingest cache", "error", err)
	}

	stats.Version = snap.Version()
	stats.Total = snap.Len()
	stats.Duration = time.Since(start)
	return snap, stats, nil
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && processor.Supported(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func (in *Ingester) cachePath() string {
	return filepath.Join(in.Store.Root(), CacheFile)
}

// loadCache returns an empty cache when none exists or it is unreadable
func (in *Ingester) loadCache(logger *slog.Logger) cache {
	empty := cache{Files: map[string]fileRecord{}}
	data, err := os.ReadFile(in.cachePath())
	if errors.Is(err, os.ErrNotExist) {
		return empty
	}
	if err != nil {
		logger.Warn("Failed to read ingest cache", "error", err)
		return empty
	}
	var c cache
	if err := json.Unmarshal(data, &c); err != nil {
		logger.Warn("Ignoring corrupt ingest cache", "error", err)
		return empty
	}
	if c.Embedder != in.EmbedderName {
		logger.Info("Embedder changed, re-embedding all files", "previous", c.Embedder, "current", in.EmbedderName)
	}
	if c.Files == nil {
		c.Files = map[string]fileRecord{}
	}
	return c
}

// previousChunks groups the chunks of the snapshot the cache was written
// for by source file. Nothing is reused if that snapshot is gone or the
// embedder changed.
func (in *Ingester) previousChunks(c cache, logger *slog.Logger) map[string][]models.Chunk {
	if c.Version == "" || c.Embedder != in.EmbedderName {
		return nil
	}
	snap, err := in.Store.Load(c.Version)
	if err != nil {
		logger.Warn("Cached snapshot unavailable, reprocessing all files", "version", c.Version, "error", err)
		return nil
	}
	bySource := make(map[string][]models.Chunk)
	for _, ch := range snap.Chunks() {
		bySource[ch.Provenance.Source] = append(bySource[ch.Provenance.Source], ch)
	}
	return bySource
}

func (in *Ingester) saveCache(c cache) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	tmp := in.cachePath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return err
	}
	return os.Rename(tmp, in.cachePath())
}
