package models

// Chunk is a passage of official law text with its embedding
type Chunk struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	Embedding  []float64  `json:"embedding,omitempty"`
	Provenance Provenance `json:"provenance"`
}

// Provenance records where a chunk came from
type Provenance struct {
	Act     string     `json:"act"`
	Section *SectionID `json:"section,omitempty"`
	Chapter string     `json:"chapter,omitempty"`
	Page    int        `json:"page"`
	Source  string     `json:"source,omitempty"` // source file name
}

// Family returns the code family of the chunk, from its section tag or act name
func (p Provenance) Family() CodeFamily {
	if p.Section != nil && p.Section.Family != "" {
		return p.Section.Family
	}
	f, _ := FamilyForAct(p.Act)
	return f
}

// Citation is a back-reference into the corpus index or the mapping table
type Citation struct {
	ChunkID string     `json:"source_chunk_id"`
	Act     string     `json:"act"`
	Section *SectionID `json:"section,omitempty"`
	Chapter string     `json:"chapter,omitempty"`
	Page    int        `json:"page,omitempty"`
}

// MappingCitationPrefix prefixes citation IDs that point at mapping entries
const MappingCitationPrefix = "mapping:"

// CitationForChunk builds a citation from a chunk's provenance
func CitationForChunk(c Chunk) Citation {
	return Citation{
		ChunkID: c.ID,
		Act:     c.Provenance.Act,
		Section: c.Provenance.Section,
		Chapter: c.Provenance.Chapter,
		Page:    c.Provenance.Page,
	}
}

// CitationsForMapping builds one citation per successor section of an entry.
// Repealed entries cite the old section itself.
func CitationsForMapping(e MappingEntry) []Citation {
	id := MappingCitationPrefix + e.Old.Key()
	if len(e.New) == 0 {
		old := e.Old
		return []Citation{{ChunkID: id, Act: old.Family.Title(), Section: &old}}
	}
	cites := make([]Citation, 0, len(e.New))
	for _, n := range e.New {
		n := n
		cites = append(cites, Citation{ChunkID: id, Act: n.Family.Title(), Section: &n})
	}
	return cites
}

// Key identifies a citation for deduplication
func (c Citation) Key() string {
	if c.Section != nil {
		return c.ChunkID + "|" + c.Section.Key()
	}
	return c.ChunkID
}
