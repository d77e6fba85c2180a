package grounding

import (
	"strings"
	"unicode"

	"lextransition/internal/embedding"
	"lextransition/internal/llm"
	"lextransition/internal/models"
)

// Default overlap thresholds
const (
	DefaultMinOverlap    = 0.6
	DefaultMarkerOverlap = 0.25
)

// stopwords are ignored when measuring token overlap
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "to": true, "in": true, "on": true,
	"for": true, "by": true, "with": true, "and": true, "or": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "shall": true, "may": true,
	"it": true, "its": true, "this": true, "that": true, "which": true, "who": true,
	"as": true, "at": true, "from": true, "under": true, "any": true, "such": true,
	"also": true, "has": true, "have": true, "can": true,
}

// negations flip the meaning of a sentence; a negated sentence needs a
// source carrying the same negation
var negations = map[string]bool{
	"not": true, "no": true, "never": true, "nor": true, "cannot": true, "neither": true, "none": true,
}

// Verifier checks that every sentence of a generated answer is supported
// by at least one of the blocks it was generated from
type Verifier struct {
	MinOverlap    float64
	MarkerOverlap float64
}

// Verdict is the outcome for one sentence
type Verdict struct {
	Sentence  string
	Text      string // sentence without markers
	Supported bool
	Blocks    []string // markers of the supporting blocks
	Citations []models.Citation
	Reason    string
}

type blockTokens struct {
	block      llm.Block
	tokens     map[string]bool
	negations  map[string]bool
	normalized string
}

// Verify splits answer into sentences and judges each against blocks
func (v Verifier) Verify(answer string, blocks []llm.Block) []Verdict {
	prepared := make(map[string]blockTokens, len(blocks))
	order := make([]string, 0, len(blocks))
	for _, b := range blocks {
		all := embedding.Tokenize(b.Header + " " + b.Text)
		set := make(map[string]bool, len(all))
		for _, t := range all {
			set[t] = true
		}
		prepared[b.Marker] = blockTokens{
			block:      b,
			tokens:     set,
			negations:  negationsIn(all),
			normalized: " " + strings.Join(embedding.Tokenize(b.Text), " ") + " ",
		}
		order = append(order, b.Marker)
	}

	var verdicts []Verdict
	for _, s := range llm.SplitSentences(answer) {
		verdicts = append(verdicts, v.verifySentence(s, prepared, order))
	}
	return verdicts
}

func (v Verifier) verifySentence(s string, prepared map[string]blockTokens, order []string) Verdict {
	verdict := Verdict{Sentence: s, Text: llm.StripMarkers(s)}

	marked := make(map[string]bool)
	for _, m := range llm.Markers(s) {
		if _, ok := prepared[m]; !ok {
			verdict.Reason = "cites unknown source [" + m + "]"
			return verdict
		}
		marked[m] = true
	}

	all := embedding.Tokenize(verdict.Text)
	tokens := contentTokens(all)
	if len(tokens) == 0 {
		verdict.Reason = "no content"
		return verdict
	}
	normalized := " " + strings.Join(all, " ") + " "
	negated := negationsIn(all)

	var supporting []string
	for _, m := range order {
		bt := prepared[m]
		if !hasAll(bt.negations, negated) {
			continue
		}
		if strings.Contains(bt.normalized, normalized) {
			supporting = append(supporting, m)
			continue
		}
		overlap := overlapRatio(tokens, bt.tokens)
		if overlap >= v.MinOverlap || (marked[m] && overlap >= v.MarkerOverlap) {
			supporting = append(supporting, m)
		}
	}
	if len(supporting) == 0 {
		verdict.Reason = "not supported by any source"
		if len(negated) > 0 {
			verdict.Reason = "negation not found in any source"
		}
		return verdict
	}

	// every number in the sentence must appear in a supporting source
	for _, t := range tokens {
		if !hasDigit(t) {
			continue
		}
		found := false
		for _, m := range supporting {
			if prepared[m].tokens[t] {
				found = true
				break
			}
		}
		if !found {
			verdict.Reason = "number " + t + " not found in sources"
			return verdict
		}
	}

	// prefer the sources the sentence itself cites
	cited := supporting
	var own []string
	for _, m := range supporting {
		if marked[m] {
			own = append(own, m)
		}
	}
	if len(own) > 0 {
		cited = own
	}

	verdict.Supported = true
	verdict.Blocks = cited
	for _, m := range cited {
		verdict.Citations = append(verdict.Citations, prepared[m].block.Citations...)
	}
	return verdict
}

func contentTokens(all []string) []string {
	seen := make(map[string]bool, len(all))
	var out []string
	for _, t := range all {
		if stopwords[t] || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// negationsIn returns the negation words of a token list. "doesn't"
// tokenizes as "doesn" "t" and counts as "not".
func negationsIn(all []string) map[string]bool {
	found := make(map[string]bool)
	for i, t := range all {
		switch {
		case negations[t]:
			found[t] = true
		case t == "t" && i > 0 && strings.HasSuffix(all[i-1], "n"):
			found["not"] = true
		}
	}
	return found
}

func hasAll(set, want map[string]bool) bool {
	for t := range want {
		if !set[t] {
			return false
		}
	}
	return true
}

func overlapRatio(tokens []string, block map[string]bool) float64 {
	hit := 0
	for _, t := range tokens {
		if block[t] {
			hit++
		}
	}
	return float64(hit) / float64(len(tokens))
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}
