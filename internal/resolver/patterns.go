package resolver

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"lextransition/internal/models"
)

// familyCues lists the spellings that name each code. BNSS precedes BNS so
// the longer abbreviation wins.
var familyCues = []struct {
	family  models.CodeFamily
	pattern string
}{
	{models.BNSS, `bnss|bharatiya\s+nagarik\s+suraksha\s+sanhita`},
	{models.BNS, `bns|bharatiya\s+nyaya\s+sanhita`},
	{models.BSA, `bsa|bharatiya\s+sakshya\s+adhiniyam`},
	{models.CrPC, `crpc|cr\.\s?p\.\s?c\.?|code\s+of\s+criminal\s+procedure|criminal\s+procedure\s+code`},
	{models.IPC, `ipc|i\.p\.c\.?|indian\s+penal\s+code|penal\s+code`},
	{models.IEA, `iea|i\.e\.a\.?|indian\s+evidence\s+act|evidence\s+act`},
}

const (
	keywordPattern = `(?:\bsections?|\bsecs?\.?|\bs\.|\bu/s\.?|§§?)`
	numberPattern  = `(\d{1,3}[A-Za-z]{0,2})\b(?:\s*\(\s*([0-9A-Za-z]{1,4})\s*\))?`
)

var (
	cueAlternation = func() string {
		parts := make([]string, len(familyCues))
		for i, c := range familyCues {
			parts[i] = "(" + c.pattern + ")"
		}
		return "(?:" + strings.Join(parts, "|") + ")"
	}()

	// cueRe finds family names anywhere in a document
	cueRe = regexp.MustCompile(`(?i)\b` + cueAlternation)

	// cueAfterRe matches a family named right after a section number,
	// e.g. "302 IPC", "302 of the IPC", "302 (IPC)"
	cueAfterRe = regexp.MustCompile(`(?i)^[\s,(]*(?:(?:of|under|in)\s+)?(?:the\s+)?` + cueAlternation)

	// keywordRe matches "Section 302", "s. 41A", "u/s 438", "§ 103(1)"
	keywordRe = regexp.MustCompile(`(?i)` + keywordPattern + `\s*` + numberPattern)

	// prefixedRe matches a family followed by a number, e.g. "IPC 420", "BNS s. 103"
	prefixedRe = regexp.MustCompile(`(?i)\b` + cueAlternation + `\s*,?\s*(?:` + keywordPattern + `\s*)?` + numberPattern)

	// continuationRe matches list items after a number: ", 307", " and 34", " & 120B"
	continuationRe = regexp.MustCompile(`(?i)^(?:\s*,\s*(?:and\s+|or\s+)?|\s+(?:and|or)\s+|\s*&\s*|\s*/\s*)(?:` + keywordPattern + `\s*)?` + numberPattern)
)

// cueFamily returns the family of the first matched cue group among the
// submatch indices starting at group offset first
func cueFamily(m []int, first int) (models.CodeFamily, int, int) {
	for i := range familyCues {
		g := first + i
		if m[2*g] >= 0 {
			return familyCues[i].family, m[2*g], m[2*g+1]
		}
	}
	return "", -1, -1
}

// endsWord reports whether position i in text is not inside a word
func endsWord(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

type cueHit struct {
	family     models.CodeFamily
	start, end int
}

// findCues returns every family mention in text, in order
func findCues(text string) []cueHit {
	var hits []cueHit
	for _, m := range cueRe.FindAllStringSubmatchIndex(text, -1) {
		f, s, e := cueFamily(m, 1)
		if f == "" || (!endsWord(text, e) && !strings.HasSuffix(text[s:e], ".")) {
			continue
		}
		hits = append(hits, cueHit{family: f, start: s, end: e})
	}
	return hits
}

type number struct {
	value, sub string
	start, end int
}

// group is one run of section numbers sharing a keyword or family prefix
type group struct {
	start, end int
	numbers    []number
	family     models.CodeFamily // set for family-prefixed groups
}

func numberAt(text string, m []int, g int) number {
	n := number{value: text[m[2*g]:m[2*g+1]], start: m[2*g], end: m[1]}
	if m[2*g+2] >= 0 {
		n.sub = text[m[2*g+2]:m[2*g+3]]
	}
	return n
}

// extend appends list continuations to a group
func extend(text string, g *group) {
	for {
		m := continuationRe.FindStringSubmatchIndex(text[g.end:])
		if m == nil {
			return
		}
		for i := range m {
			if m[i] >= 0 {
				m[i] += g.end
			}
		}
		n := numberAt(text, m, 1)
		g.numbers = append(g.numbers, n)
		g.end = m[1]
	}
}

// scan finds keyword and family-prefixed section groups
func scan(text string) []group {
	var groups []group

	for _, m := range keywordRe.FindAllStringSubmatchIndex(text, -1) {
		g := group{start: m[0], end: m[1]}
		n := numberAt(text, m, 1)
		n.start = m[0]
		g.numbers = []number{n}
		extend(text, &g)
		groups = append(groups, g)
	}

	for _, m := range prefixedRe.FindAllStringSubmatchIndex(text, -1) {
		f, _, _ := cueFamily(m, 1)
		if f == "" {
			continue
		}
		numGroup := 1 + len(familyCues)
		g := group{start: m[0], end: m[1], family: f}
		n := numberAt(text, m, numGroup)
		n.start = m[0]
		g.numbers = []number{n}
		extend(text, &g)
		groups = append(groups, g)
	}

	return groups
}
