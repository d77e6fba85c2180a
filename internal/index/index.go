package index

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"lextransition/internal/models"
)

var (
	// ErrEmptyIndex is returned when searching a snapshot with no chunks
	ErrEmptyIndex = errors.New("index is empty")
	// ErrDimensionMismatch is returned for vectors of the wrong length
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Result is a scored search hit
type Result struct {
	Chunk models.Chunk `json:"chunk"`
	Score float64      `json:"score"`
}

// Filter restricts a search by code family or act name
type Filter struct {
	Family models.CodeFamily `json:"family,omitempty"`
	Act    string            `json:"act,omitempty"`
}

func (f *Filter) match(c *models.Chunk) bool {
	if f == nil {
		return true
	}
	if f.Family != "" && c.Provenance.Family() != f.Family {
		return false
	}
	if f.Act != "" && !strings.EqualFold(strings.TrimSpace(f.Act), c.Provenance.Act) {
		return false
	}
	return true
}

// Builder accumulates chunks for a new snapshot. It is append-only and
// not safe for concurrent use.
type Builder struct {
	chunks []models.Chunk
	ids    map[string]bool
	dim    int
}

// NewBuilder returns an empty builder; the first chunk fixes the dimension
func NewBuilder() *Builder {
	return &Builder{ids: make(map[string]bool)}
}

// Add appends a chunk. Duplicate IDs and empty or mismatched embeddings are rejected.
func (b *Builder) Add(c models.Chunk) error {
	if c.ID == "" {
		return fmt.Errorf("chunk has no id")
	}
	if b.ids[c.ID] {
		return fmt.Errorf("duplicate chunk id %q", c.ID)
	}
	if len(c.Embedding) == 0 {
		return fmt.Errorf("chunk %q has no embedding", c.ID)
	}
	if b.dim == 0 {
		b.dim = len(c.Embedding)
	} else if len(c.Embedding) != b.dim {
		return fmt.Errorf("%w: chunk %q has %d dimensions, index has %d", ErrDimensionMismatch, c.ID, len(c.Embedding), b.dim)
	}

	emb := make([]float64, len(c.Embedding))
	copy(emb, c.Embedding)
	c.Embedding = emb
	if c.Provenance.Section != nil {
		s := c.Provenance.Section.Normalized()
		c.Provenance.Section = &s
	}

	b.ids[c.ID] = true
	b.chunks = append(b.chunks, c)
	return nil
}

// Len returns the number of chunks added so far
func (b *Builder) Len() int {
	return len(b.chunks)
}

// Build freezes the added chunks into a snapshot with a fresh version
func (b *Builder) Build() *Snapshot {
	return b.BuildVersion(newVersion(time.Now()))
}

// BuildVersion freezes the added chunks into a snapshot with the given version
func (b *Builder) BuildVersion(version string) *Snapshot {
	s := &Snapshot{
		version:   version,
		created:   time.Now().UTC(),
		dim:       b.dim,
		chunks:    make([]models.Chunk, len(b.chunks)),
		norms:     make([]float64, len(b.chunks)),
		bySection: make(map[string][]int),
		byID:      make(map[string]int, len(b.chunks)),
	}
	copy(s.chunks, b.chunks)

	for i := range s.chunks {
		s.norms[i] = norm(s.chunks[i].Embedding)
		s.byID[s.chunks[i].ID] = i
		if sec := s.chunks[i].Provenance.Section; sec != nil {
			s.bySection[sec.Key()] = append(s.bySection[sec.Key()], i)
			if sec.Subsection != "" {
				parent := sec.Parent().Key()
				s.bySection[parent] = append(s.bySection[parent], i)
			}
		}
	}
	return s
}

func newVersion(t time.Time) string {
	return t.UTC().Format("20060102T150405Z") + "-" + uuid.NewString()[:8]
}

// Snapshot is an immutable set of indexed chunks. Concurrent reads are safe.
type Snapshot struct {
	version   string
	created   time.Time
	dim       int
	chunks    []models.Chunk
	norms     []float64
	bySection map[string][]int
	byID      map[string]int
}

// Stats summarizes a snapshot
type Stats struct {
	Version    string         `json:"version"`
	Created    time.Time      `json:"created"`
	Chunks     int            `json:"chunks"`
	Dimensions int            `json:"dimensions"`
	ByAct      map[string]int `json:"by_act"`
	Sections   int            `json:"sections"`
}

// Version identifies the snapshot
func (s *Snapshot) Version() string {
	if s == nil {
		return ""
	}
	return s.version
}

// Len returns the number of chunks
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.chunks)
}

// Dimensions returns the embedding dimension, 0 when empty
func (s *Snapshot) Dimensions() int {
	if s == nil {
		return 0
	}
	return s.dim
}

// Get returns a chunk by ID
func (s *Snapshot) Get(id string) (models.Chunk, bool) {
	if s == nil {
		return models.Chunk{}, false
	}
	i, ok := s.byID[id]
	if !ok {
		return models.Chunk{}, false
	}
	return s.chunks[i], true
}

// Chunks returns the chunks in insertion order. The slice must not be modified.
func (s *Snapshot) Chunks() []models.Chunk {
	if s == nil {
		return nil
	}
	return s.chunks
}

// Search returns up to k chunks by descending cosine similarity to q.
// Scoring is exact, so results are deterministic for a given snapshot and
// query; equal scores keep insertion order.
func (s *Snapshot) Search(q []float64, k int, f *Filter) ([]Result, error) {
	if s.Len() == 0 {
		return nil, ErrEmptyIndex
	}
	if len(q) != s.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(q), s.dim)
	}
	if k <= 0 {
		return nil, nil
	}
	qn := norm(q)

	results := make([]Result, 0, len(s.chunks))
	for i := range s.chunks {
		if !f.match(&s.chunks[i]) {
			continue
		}
		results = append(results, Result{
			Chunk: s.chunks[i],
			Score: cosine(q, qn, s.chunks[i].Embedding, s.norms[i]),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// BySection returns chunks tagged with the section, in insertion order.
// A bare section also matches chunks tagged with one of its subsections;
// a subsection with no tagged chunks falls back to its parent.
func (s *Snapshot) BySection(id models.SectionID, limit int) []models.Chunk {
	if s.Len() == 0 {
		return nil
	}
	idx := s.bySection[id.Key()]
	if len(idx) == 0 && id.Normalized().Subsection != "" {
		idx = s.bySection[id.Parent().Key()]
	}
	if limit > 0 && len(idx) > limit {
		idx = idx[:limit]
	}
	out := make([]models.Chunk, len(idx))
	for i, j := range idx {
		out[i] = s.chunks[j]
	}
	return out
}

// Stats reports counts for the snapshot
func (s *Snapshot) Stats() Stats {
	st := Stats{ByAct: make(map[string]int)}
	if s == nil {
		return st
	}
	st.Version = s.version
	st.Created = s.created
	st.Chunks = len(s.chunks)
	st.Dimensions = s.dim
	for _, c := range s.chunks {
		st.ByAct[c.Provenance.Act]++
	}
	for key := range s.bySection {
		if !strings.Contains(key, "(") {
			st.Sections++
		}
	}
	return st
}

func norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func cosine(a []float64, an float64, b []float64, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot / (an * bn)
}

// Index holds the current snapshot and swaps it atomically. Readers always
// observe a complete snapshot.
type Index struct {
	current   atomic.Pointer[Snapshot]
	onPublish func(*Snapshot)
}

// New returns an index serving an empty snapshot
func New() *Index {
	idx := &Index{}
	idx.current.Store(NewBuilder().BuildVersion("empty"))
	return idx
}

// OnPublish registers a hook called after every swap. Not safe to call
// concurrently with Publish.
func (idx *Index) OnPublish(fn func(*Snapshot)) {
	idx.onPublish = fn
}

// Publish makes s the current snapshot and returns the previous one
func (idx *Index) Publish(s *Snapshot) *Snapshot {
	prev := idx.current.Swap(s)
	if idx.onPublish != nil {
		idx.onPublish(s)
	}
	return prev
}

// Snapshot returns the current snapshot
func (idx *Index) Snapshot() *Snapshot {
	return idx.current.Load()
}

// Search queries the current snapshot
func (idx *Index) Search(q []float64, k int, f *Filter) ([]Result, error) {
	return idx.Snapshot().Search(q, k, f)
}

// BySection queries the current snapshot
func (idx *Index) BySection(id models.SectionID, limit int) []models.Chunk {
	return idx.Snapshot().BySection(id, limit)
}
