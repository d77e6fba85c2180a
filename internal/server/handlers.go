package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"lextransition/internal/models"
	"lextransition/internal/resolver"
)

// MaxDocumentBytes bounds submitted document text
const MaxDocumentBytes = 1 << 20

// AskRequest represents the request body for POST /api/ask
type AskRequest struct {
	Question string `json:"question" binding:"required"`
}

// DocumentRequest represents OCR output submitted for analysis or resolution
type DocumentRequest struct {
	Text           string    `json:"text" binding:"required"`
	CharConfidence []float64 `json:"char_confidence"`
	Question       string    `json:"question"`
}

func (r DocumentRequest) document() (resolver.Document, error) {
	if len(r.Text) > MaxDocumentBytes {
		return resolver.Document{}, fmt.Errorf("text exceeds %d bytes", MaxDocumentBytes)
	}
	if n := utf8.RuneCountInString(r.Text); len(r.CharConfidence) > n {
		return resolver.Document{}, fmt.Errorf("char_confidence has %d values for %d characters", len(r.CharConfidence), n)
	}
	for i, v := range r.CharConfidence {
		if v < 0 || v > 1 {
			return resolver.Document{}, fmt.Errorf("char_confidence[%d] = %g is outside [0, 1]", i, v)
		}
	}
	return resolver.Document{Text: r.Text, CharConfidence: r.CharConfidence}, nil
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	snap := h.index.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"snapshot": snap.Version(),
		"chunks":   snap.Len(),
		"mappings": h.table.Len(),
	})
}

// Ask handles POST /api/ask. Fallback answers are still 200: the outcome
// is reported in grounding_status.
func (h *Handler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		fail(c, http.StatusBadRequest, "INVALID_REQUEST", "question is empty")
		return
	}

	ok(c, h.answerer.Ask(c.Request.Context(), question))
}

// AnalyzeDocument handles POST /api/documents/analyze
func (h *Handler) AnalyzeDocument(c *gin.Context) {
	var req DocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	doc, err := req.document()
	if err != nil {
		fail(c, http.StatusBadRequest, "INVALID_DOCUMENT", err.Error())
		return
	}

	ok(c, h.answerer.AnalyzeDocument(c.Request.Context(), doc, req.Question))
}

// Resolve handles POST /api/resolve
func (h *Handler) Resolve(c *gin.Context) {
	var req DocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	doc, err := req.document()
	if err != nil {
		fail(c, http.StatusBadRequest, "INVALID_DOCUMENT", err.Error())
		return
	}

	refs := resolver.ResolveDocument(doc)
	if refs == nil {
		refs = []models.Reference{}
	}
	ok(c, gin.H{"references": refs})
}

// ListMappings handles GET /api/mappings, optionally filtered by ?category=
func (h *Handler) ListMappings(c *gin.Context) {
	entries := h.table.Entries()
	if category := c.Query("category"); category != "" {
		entries = h.table.ByCategory(category)
	}
	if entries == nil {
		entries = []models.MappingEntry{}
	}
	ok(c, gin.H{
		"metadata": h.table.Metadata(),
		"count":    len(entries),
		"mappings": entries,
	})
}

func sectionParam(c *gin.Context) (models.SectionID, bool) {
	id, err := models.ParseSectionID(c.Param("family") + " " + c.Param("section"))
	if err != nil {
		fail(c, http.StatusBadRequest, "INVALID_SECTION", err.Error())
		return models.SectionID{}, false
	}
	return id, true
}

// GetMapping handles GET /api/mappings/:family/:section for legacy sections
func (h *Handler) GetMapping(c *gin.Context) {
	id, valid := sectionParam(c)
	if !valid {
		return
	}
	if !id.Family.IsLegacy() {
		fail(c, http.StatusBadRequest, "INVALID_SECTION",
			fmt.Sprintf("%s is not a legacy code; use /api/sections/%s/%s/predecessors", id.Family, id.Family, c.Param("section")))
		return
	}

	entry, err := h.table.Get(id)
	if errors.Is(err, models.ErrNotFound) {
		fail(c, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	ok(c, gin.H{
		"mapping":   entry,
		"summary":   entry.Summary(),
		"citations": models.CitationsForMapping(entry),
	})
}

// Predecessors handles GET /api/sections/:family/:section/predecessors for
// successor sections. An unmapped section returns an empty list.
func (h *Handler) Predecessors(c *gin.Context) {
	id, valid := sectionParam(c)
	if !valid {
		return
	}
	if !id.Family.IsSuccessor() {
		fail(c, http.StatusBadRequest, "INVALID_SECTION", fmt.Sprintf("%s is not a successor code", id.Family))
		return
	}

	olds := h.table.ReverseLookup(id)
	entries := make([]models.MappingEntry, 0, len(olds))
	for _, old := range olds {
		if e, found := h.table.Lookup(old); found {
			entries = append(entries, e)
		}
	}
	if olds == nil {
		olds = []models.SectionID{}
	}
	ok(c, gin.H{
		"section":      id,
		"predecessors": olds,
		"mappings":     entries,
	})
}

// Categories handles GET /api/categories
func (h *Handler) Categories(c *gin.Context) {
	type category struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	out := []category{}
	for _, name := range h.table.Categories() {
		out = append(out, category{Name: name, Count: len(h.table.ByCategory(name))})
	}
	ok(c, gin.H{"categories": out})
}

// IndexStats handles GET /api/index/stats
func (h *Handler) IndexStats(c *gin.Context) {
	ok(c, h.index.Snapshot().Stats())
}
