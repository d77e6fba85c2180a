// Package grounding turns a question or document into an answer whose
// every sentence is traceable to a retrieved passage or mapping entry.
package grounding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"lextransition/internal/index"
	"lextransition/internal/llm"
	"lextransition/internal/models"
	"lextransition/internal/observability"
	"lextransition/internal/resolver"
	"lextransition/internal/retriever"
)

// Policy decides what happens to unattributed sentences
type Policy string

const (
	// PolicyStrip drops unattributed sentences and keeps the rest
	PolicyStrip Policy = "strip"
	// PolicyFallback rejects the whole answer if any sentence is unattributed
	PolicyFallback Policy = "fallback"
)

// ParsePolicy validates a policy name
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyStrip, PolicyFallback:
		return p, nil
	}
	return "", fmt.Errorf("unknown grounding policy %q", s)
}

// DefaultFallbackMessage is returned when no answer can be verified
const DefaultFallbackMessage = "Could not verify an answer against the indexed legal texts."

// DefaultDocumentQuestion is asked of documents submitted without a question
const DefaultDocumentQuestion = "Explain the provisions cited in this document and their corresponding sections in the new codes."

// Options configure an Assembler
type Options struct {
	TopK                   int
	MinReferenceConfidence float64
	Policy                 Policy
	MinOverlap             float64
	MarkerOverlap          float64
	FallbackMessage        string
}

// DefaultOptions returns the standard settings
func DefaultOptions() Options {
	return Options{
		TopK:                   5,
		MinReferenceConfidence: 0.5,
		Policy:                 PolicyStrip,
		MinOverlap:             DefaultMinOverlap,
		MarkerOverlap:          DefaultMarkerOverlap,
		FallbackMessage:        DefaultFallbackMessage,
	}
}

// MappingTable is the read side of the section mapping table
type MappingTable interface {
	Lookup(id models.SectionID) (models.MappingEntry, bool)
	ReverseLookup(id models.SectionID) []models.SectionID
}

// Retriever fetches supporting chunks
type Retriever interface {
	Retrieve(ctx context.Context, k int, queries ...retriever.Query) ([]index.Result, error)
}

// Assembler runs the grounding state machine. It holds no per-request
// state and is safe for concurrent use.
type Assembler struct {
	table     MappingTable
	retriever Retriever
	generator llm.Generator
	verifier  Verifier
	opts      Options
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates an assembler. The generator should already carry its timeout
// (see llm.WithTimeout).
func New(table MappingTable, r Retriever, g llm.Generator, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Assembler {
	def := DefaultOptions()
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	if opts.Policy == "" {
		opts.Policy = def.Policy
	}
	if opts.MinOverlap <= 0 {
		opts.MinOverlap = def.MinOverlap
	}
	if opts.MarkerOverlap <= 0 {
		opts.MarkerOverlap = def.MarkerOverlap
	}
	if opts.FallbackMessage == "" {
		opts.FallbackMessage = def.FallbackMessage
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Assembler{
		table:     table,
		retriever: r,
		generator: g,
		verifier:  Verifier{MinOverlap: opts.MinOverlap, MarkerOverlap: opts.MarkerOverlap},
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
	}
}

// Ask answers a free-text question
func (a *Assembler) Ask(ctx context.Context, question string) models.Answer {
	return a.run(ctx, question, resolver.Document{Text: question}, question)
}

// AnalyzeDocument answers a question about OCR output. An empty question
// asks for an explanation of the cited provisions.
func (a *Assembler) AnalyzeDocument(ctx context.Context, doc resolver.Document, question string) models.Answer {
	if strings.TrimSpace(question) == "" {
		question = DefaultDocumentQuestion
	}
	raw := question + "\n" + truncate(doc.Text, 2000)
	return a.run(ctx, question, doc, raw)
}

// request carries one run through the state machine
type request struct {
	answer          models.Answer
	stageStart      time.Time
	retrievalFailed bool
}

func (a *Assembler) enter(req *request, stage models.Stage) {
	now := time.Now()
	if n := len(req.answer.Stages); n > 0 {
		a.metrics.ObserveStage(string(req.answer.Stages[n-1]), now.Sub(req.stageStart))
	}
	req.answer.Stages = append(req.answer.Stages, stage)
	req.stageStart = now
}

func (a *Assembler) run(ctx context.Context, question string, doc resolver.Document, raw string) models.Answer {
	req := &request{answer: models.Answer{Question: question, Timestamp: time.Now().UTC()}}

	// RESOLVING
	a.enter(req, models.StageResolving)
	refs := resolver.ResolveDocument(doc)
	req.answer.References = refs
	for _, r := range refs {
		a.metrics.RecordReference(r.Cue)
	}
	mappings, queries := a.expand(refs, raw)
	req.answer.Mappings = mappings

	// RETRIEVING
	a.enter(req, models.StageRetrieving)
	results, err := a.retriever.Retrieve(ctx, a.opts.TopK, queries...)
	if err != nil {
		a.logger.Warn("Retrieval unavailable, continuing with empty context", "error", err)
		req.retrievalFailed = true
		results = nil
	}
	a.metrics.RecordRetrieval(len(results))

	var blocks []llm.Block
	if len(results) > 0 {
		for i, e := range mappings {
			blocks = append(blocks, llm.MappingBlock(i+1, e))
		}
		for i, r := range results {
			blocks = append(blocks, llm.ChunkBlock(i+1, r.Chunk))
		}
	}

	// GENERATING
	a.enter(req, models.StageGenerating)
	out, err := a.generator.Generate(ctx, llm.BuildPrompt(question, blocks))
	if err != nil {
		a.logger.Warn("Generation unavailable", "error", err)
		return a.fallback(req, models.ReasonGenerationUnavailable)
	}

	// VERIFYING
	a.enter(req, models.StageVerifying)
	verdicts := a.verifier.Verify(out, blocks)
	var retained []Verdict
	for _, v := range verdicts {
		if v.Supported {
			retained = append(retained, v)
		} else {
			a.logger.Debug("Rejected sentence", "sentence", v.Sentence, "reason", v.Reason)
		}
	}
	a.metrics.RecordSentences(len(retained), len(verdicts)-len(retained))

	if len(retained) == 0 || (a.opts.Policy == PolicyFallback && len(retained) < len(verdicts)) {
		reason := models.ReasonUngrounded
		if req.retrievalFailed {
			reason = models.ReasonRetrievalUnavailable
		}
		return a.fallback(req, reason)
	}

	a.done(req, retained)
	return req.answer
}

// expand looks up mapping entries for confident references and builds the
// retrieval queries: the raw input plus one per resolved section
func (a *Assembler) expand(refs []models.Reference, raw string) ([]models.MappingEntry, []retriever.Query) {
	var mappings []models.MappingEntry
	seenEntry := make(map[string]bool)
	addEntry := func(e models.MappingEntry) {
		if !seenEntry[e.Old.Key()] {
			seenEntry[e.Old.Key()] = true
			mappings = append(mappings, e)
		}
	}

	queries := []retriever.Query{{Text: raw}}
	seenQuery := make(map[string]bool)
	addQuery := func(id models.SectionID) {
		if seenQuery[id.Key()] {
			return
		}
		seenQuery[id.Key()] = true
		queries = append(queries, retriever.Query{
			Text:    fmt.Sprintf("%s section %s", id.Family.Title(), id.Number),
			Filter:  &index.Filter{Family: id.Family},
			Section: &id,
		})
	}

	for _, r := range refs {
		if r.Confidence < a.opts.MinReferenceConfidence {
			continue
		}
		switch {
		case r.Section.Family.IsLegacy():
			addQuery(r.Section)
			if e, ok := a.table.Lookup(r.Section); ok {
				addEntry(e)
				for _, n := range e.New {
					addQuery(n)
				}
			}
		case r.Section.Family.IsSuccessor():
			addQuery(r.Section)
			for _, old := range a.table.ReverseLookup(r.Section) {
				if e, ok := a.table.Lookup(old); ok {
					addEntry(e)
				}
			}
		}
	}
	return mappings, queries
}

func (a *Assembler) done(req *request, retained []Verdict) {
	numbers := make(map[string]int)
	var sentences []string
	for _, v := range retained {
		claim := models.GroundedClaim{Text: v.Text}
		var marks []string
		for _, c := range v.Citations {
			key := c.Key()
			n, ok := numbers[key]
			if !ok {
				req.answer.Citations = append(req.answer.Citations, c)
				n = len(req.answer.Citations)
				numbers[key] = n
			}
			claim.Citations = append(claim.Citations, c)
			mark := fmt.Sprintf("[%d]", n)
			if !contains(marks, mark) {
				marks = append(marks, mark)
			}
		}
		req.answer.Claims = append(req.answer.Claims, claim)
		sentences = append(sentences, v.Text+" "+strings.Join(marks, ""))
	}

	req.answer.Text = strings.Join(sentences, " ")
	req.answer.Status = models.StatusDone
	a.enter(req, models.StageDone)
	a.metrics.RecordAnswer(string(models.StatusDone), "")
}

func (a *Assembler) fallback(req *request, reason string) models.Answer {
	req.answer.Text = a.opts.FallbackMessage
	req.answer.Status = models.StatusFallback
	req.answer.Reason = reason
	req.answer.Claims = nil
	req.answer.Citations = nil
	a.enter(req, models.StageFallback)
	a.metrics.RecordAnswer(string(models.StatusFallback), reason)
	return req.answer
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
