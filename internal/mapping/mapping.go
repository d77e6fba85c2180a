package mapping

import (
	"fmt"
	"sort"
	"strings"

	"lextransition/internal/models"
)

// Metadata describes the provenance of a mapping dataset
type Metadata struct {
	Version string   `yaml:"version" json:"version"`
	Sources []string `yaml:"sources" json:"sources"`
	Updated string   `yaml:"updated" json:"updated"`
}

type reverseRef struct {
	old    models.SectionID
	newKey string
	whole  bool // successor has no subsection
}

// Table is an immutable, keyed view of the section correspondence dataset.
// It is safe for concurrent use.
type Table struct {
	entries []models.MappingEntry
	byOld   map[string]int
	reverse map[string][]reverseRef
	meta    Metadata
}

// New validates entries and builds a table. Any invariant violation or
// duplicate old section fails with models.ErrMalformedMappingData.
func New(entries []models.MappingEntry, meta Metadata) (*Table, error) {
	t := &Table{
		entries: make([]models.MappingEntry, 0, len(entries)),
		byOld:   make(map[string]int, len(entries)),
		reverse: make(map[string][]reverseRef),
		meta:    meta,
	}

	for i, e := range entries {
		e = normalizeEntry(e)
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", models.ErrMalformedMappingData, i+1, err)
		}
		key := e.Old.Key()
		if prev, dup := t.byOld[key]; dup {
			return nil, fmt.Errorf("%w: entry %d: %s already mapped by entry %d",
				models.ErrMalformedMappingData, i+1, e.Old, prev+1)
		}
		t.byOld[key] = len(t.entries)
		t.entries = append(t.entries, e)

		for _, n := range e.New {
			parent := n.Parent().Key()
			t.reverse[parent] = append(t.reverse[parent], reverseRef{
				old:    e.Old,
				newKey: n.Key(),
				whole:  n.Subsection == "",
			})
		}
	}

	return t, nil
}

func normalizeEntry(e models.MappingEntry) models.MappingEntry {
	e.Old = e.Old.Normalized()
	news := make([]models.SectionID, len(e.New))
	for i, n := range e.New {
		news[i] = n.Normalized()
	}
	e.New = news
	e.Category = strings.TrimSpace(e.Category)
	e.Note = strings.TrimSpace(e.Note)
	return e
}

// Lookup returns the entry for a legacy section. A subsection without its
// own entry falls back to its parent section. A miss is not an error.
func (t *Table) Lookup(id models.SectionID) (models.MappingEntry, bool) {
	if i, ok := t.byOld[id.Key()]; ok {
		return t.entries[i], true
	}
	if id.Normalized().Subsection != "" {
		if i, ok := t.byOld[id.Parent().Key()]; ok {
			return t.entries[i], true
		}
	}
	return models.MappingEntry{}, false
}

// Get is Lookup for callers that report misses as errors; a miss wraps
// models.ErrNotFound
func (t *Table) Get(id models.SectionID) (models.MappingEntry, error) {
	e, ok := t.Lookup(id)
	if !ok {
		return e, fmt.Errorf("no mapping for %s: %w", id, models.ErrNotFound)
	}
	return e, nil
}

// ReverseLookup returns the legacy sections that map to a successor
// section, in table order. Querying a bare section also matches entries
// that map to one of its subsections.
func (t *Table) ReverseLookup(id models.SectionID) []models.SectionID {
	refs := t.reverse[id.Parent().Key()]
	if len(refs) == 0 {
		return nil
	}

	key := id.Key()
	hasSub := id.Normalized().Subsection != ""
	seen := make(map[string]bool)
	var olds []models.SectionID
	for _, r := range refs {
		if hasSub && r.newKey != key && !r.whole {
			continue
		}
		if seen[r.old.Key()] {
			continue
		}
		seen[r.old.Key()] = true
		olds = append(olds, r.old)
	}
	return olds
}

// Entries returns a copy of all entries in table order
func (t *Table) Entries() []models.MappingEntry {
	out := make([]models.MappingEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// ByCategory returns entries whose category matches name, case-insensitively
func (t *Table) ByCategory(name string) []models.MappingEntry {
	var out []models.MappingEntry
	for _, e := range t.entries {
		if strings.EqualFold(e.Category, strings.TrimSpace(name)) {
			out = append(out, e)
		}
	}
	return out
}

// Categories returns the distinct non-empty categories, sorted
func (t *Table) Categories() []string {
	seen := make(map[string]bool)
	var cats []string
	for _, e := range t.entries {
		if e.Category == "" || seen[e.Category] {
			continue
		}
		seen[e.Category] = true
		cats = append(cats, e.Category)
	}
	sort.Strings(cats)
	return cats
}

// Len returns the number of entries
func (t *Table) Len() int {
	return len(t.entries)
}

// Metadata returns the dataset metadata
func (t *Table) Metadata() Metadata {
	return t.meta
}
