package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"lextransition/internal/embedding"
	"lextransition/internal/index"
	"lextransition/internal/models"
)

// DefaultTimeout bounds each query embedding call
const DefaultTimeout = 5 * time.Second

// Query is one retrieval request. Section, when set, also pulls in the
// chunks tagged with that section.
type Query struct {
	Text    string
	Filter  *index.Filter
	Section *models.SectionID
}

// SnapshotSource supplies the snapshot to search
type SnapshotSource interface {
	Snapshot() *index.Snapshot
}

// Retriever embeds queries and searches the corpus index
type Retriever struct {
	source   SnapshotSource
	embedder embedding.Embedder
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a retriever; timeout <= 0 uses DefaultTimeout
func New(source SnapshotSource, embedder embedding.Embedder, timeout time.Duration, logger *slog.Logger) *Retriever {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Retriever{source: source, embedder: embedder, timeout: timeout, logger: logger}
}

// Retrieve runs all queries against one snapshot and merges the hits by
// chunk, keeping each chunk's best score. Results are ordered by score,
// then by first appearance, and truncated to k. An empty index or an
// embedding failure yields models.ErrRetrievalUnavailable. Nothing is retried.
func (r *Retriever) Retrieve(ctx context.Context, k int, queries ...Query) ([]index.Result, error) {
	snap := r.source.Snapshot()
	if snap.Len() == 0 {
		return nil, fmt.Errorf("%w: %v", models.ErrRetrievalUnavailable, index.ErrEmptyIndex)
	}
	if k <= 0 {
		return nil, nil
	}

	var merged []index.Result
	pos := make(map[string]int)
	add := func(c models.Chunk, score float64) {
		if i, ok := pos[c.ID]; ok {
			if score > merged[i].Score {
				merged[i].Score = score
			}
			return
		}
		pos[c.ID] = len(merged)
		merged = append(merged, index.Result{Chunk: c, Score: score})
	}

	for _, q := range queries {
		if q.Section != nil {
			for _, c := range snap.BySection(*q.Section, k) {
				add(c, 1.0)
			}
		}
		if q.Text == "" {
			continue
		}

		texts := []string{q.Text}
		if expanded := Expand(q.Text); expanded != q.Text {
			texts = append(texts, expanded)
		}
		for _, text := range texts {
			vec, err := r.embed(ctx, text)
			if err != nil {
				return nil, fmt.Errorf("%w: embed query: %v", models.ErrRetrievalUnavailable, err)
			}
			results, err := snap.Search(vec, k, q.Filter)
			if err != nil {
				return nil, fmt.Errorf("%w: search: %v", models.ErrRetrievalUnavailable, err)
			}
			for _, res := range results {
				add(res.Chunk, res.Score)
			}
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if len(merged) > k {
		merged = merged[:k]
	}

	r.logger.Debug("Retrieved chunks", "queries", len(queries), "results", len(merged), "snapshot", snap.Version())
	return merged, nil
}

func (r *Retriever) embed(ctx context.Context, text string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.embedder.Embed(ctx, text)
}
