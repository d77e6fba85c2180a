// Package resolver finds section citations in free text and OCR output.
// It is pure: no I/O, no mapping lookups, and the same input always
// yields the same references.
package resolver

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"lextransition/internal/models"
)

// Confidence levels
const (
	ExplicitConfidence  = 1.0
	DocumentConfidence  = 0.6
	AmbiguousConfidence = 0.3

	// FuzzyPenalty scales matches found only after OCR normalization
	FuzzyPenalty = 0.8

	// LowConfidence is the mean OCR character confidence below which a
	// match is treated as noisy
	LowConfidence = 0.5
)

// Cue values recorded on a Reference
const (
	CueExplicit = "explicit"
	CueDocument = "document"
	CueNone     = "none"
)

// Document is OCR output: text plus per-character recognition confidence
// in [0,1]. CharConfidence is indexed by character, not byte; a nil or
// short slice counts missing characters as fully confident.
type Document struct {
	Text           string
	CharConfidence []float64
}

// Resolve returns the section references found in text, ordered by
// position and then by family
func Resolve(text string) []models.Reference {
	return ResolveDocument(Document{Text: text})
}

// ResolveDocument resolves references in OCR output
func ResolveDocument(doc Document) []models.Reference {
	text := doc.Text
	candidates := resolvePass(text, false)

	if len(doc.CharConfidence) > 0 {
		conf := newCharConfidence(text, doc.CharConfidence)
		for i := range candidates {
			if conf.mean(candidates[i].Span) < LowConfidence {
				candidates[i].Confidence = round(candidates[i].Confidence * FuzzyPenalty)
				candidates[i].Fuzzy = true
			}
		}
	}

	if normalized := normalizeConfusables(text); normalized != text {
		candidates = append(candidates, resolvePass(normalized, true)...)
	}

	return dedupe(candidates)
}

func resolvePass(text string, fuzzy bool) []models.Reference {
	groups := scan(text)
	if len(groups) == 0 {
		return nil
	}
	cues := findCues(text)

	var refs []models.Reference
	for _, g := range groups {
		families, conf, cue := inferFamily(text, g, cues)
		if fuzzy {
			conf = round(conf * FuzzyPenalty)
		}
		for _, n := range g.numbers {
			for _, f := range families {
				refs = append(refs, models.Reference{
					Section:    models.NewSectionID(f, n.value, n.sub),
					Confidence: conf,
					Span:       models.Span{Start: n.start, End: n.end},
					Fuzzy:      fuzzy,
					Cue:        cue,
				})
			}
		}
	}
	return refs
}

// inferFamily decides which code a group of numbers belongs to
func inferFamily(text string, g group, cues []cueHit) ([]models.CodeFamily, float64, string) {
	if g.family != "" {
		return []models.CodeFamily{g.family}, ExplicitConfidence, CueExplicit
	}

	// named right after the last number
	if m := cueAfterRe.FindStringSubmatchIndex(text[g.end:]); m != nil {
		if f, _, e := cueFamily(m, 1); f != "" && (endsWord(text, g.end+e) || strings.HasSuffix(text[:g.end+e], ".")) {
			return []models.CodeFamily{f}, ExplicitConfidence, CueExplicit
		}
	}

	// named right before the keyword
	j := g.start
	for j > 0 && strings.ContainsRune(" \t\r\n,(", rune(text[j-1])) {
		j--
	}
	for _, c := range cues {
		if c.end == j {
			return []models.CodeFamily{c.family}, ExplicitConfidence, CueExplicit
		}
	}

	if len(cues) == 0 {
		return models.Families, AmbiguousConfidence, CueNone
	}

	// nearest mention anywhere; ties go to the earlier one
	best, bestDist := cues[0], math.MaxInt
	for _, c := range cues {
		var d int
		switch {
		case c.end <= g.start:
			d = g.start - c.end
		case c.start >= g.end:
			d = c.start - g.end
		}
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return []models.CodeFamily{best.family}, DocumentConfidence, CueDocument
}

// dedupe keeps one reference per section and span, and among overlapping
// spans only the highest-confidence match. Equal-confidence candidates on
// the identical span (ambiguous families) are all kept.
func dedupe(candidates []models.Reference) []models.Reference {
	familyOrder := make(map[models.CodeFamily]int, len(models.Families))
	for i, f := range models.Families {
		familyOrder[f] = i
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Span.Start != b.Span.Start {
			return a.Span.Start < b.Span.Start
		}
		if a.Span.End != b.Span.End {
			return a.Span.End > b.Span.End
		}
		if a.Fuzzy != b.Fuzzy {
			return !a.Fuzzy
		}
		return familyOrder[a.Section.Family] < familyOrder[b.Section.Family]
	})

	var kept []models.Reference
	for _, c := range candidates {
		ok := true
		for _, k := range kept {
			if !k.Span.Overlaps(c.Span) {
				continue
			}
			if k.Span != c.Span || k.Confidence != c.Confidence || k.Section.Equal(c.Section) {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, c)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Span.Start != kept[j].Span.Start {
			return kept[i].Span.Start < kept[j].Span.Start
		}
		return familyOrder[kept[i].Section.Family] < familyOrder[kept[j].Section.Family]
	})
	return kept
}

func round(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}

// charConfidence maps byte spans onto per-character confidences
type charConfidence struct {
	byteToChar []int
	values     []float64
}

func newCharConfidence(text string, values []float64) charConfidence {
	idx := make([]int, len(text)+1)
	n := 0
	for i := range text {
		idx[i] = n
		_, size := utf8.DecodeRuneInString(text[i:])
		for k := 1; k < size; k++ {
			idx[i+k] = n
		}
		n++
	}
	idx[len(text)] = n
	return charConfidence{byteToChar: idx, values: values}
}

func (c charConfidence) mean(s models.Span) float64 {
	from, to := c.byteToChar[s.Start], c.byteToChar[s.End]
	if to <= from {
		return 1
	}
	var sum float64
	for i := from; i < to; i++ {
		if i < len(c.values) {
			sum += c.values[i]
		} else {
			sum++
		}
	}
	return sum / float64(to-from)
}
