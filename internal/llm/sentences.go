package llm

import (
	"regexp"
	"strings"
	"unicode"
)

// abbreviations never end a sentence when followed by a period
var abbreviations = map[string]bool{
	"s": true, "ss": true, "sec": true, "secs": true, "no": true, "nos": true,
	"u/s": true, "i.e": true, "e.g": true, "viz": true, "vs": true, "v": true,
	"cl": true, "art": true, "ch": true, "sub": true, "para": true, "etc": true,
	"mr": true, "mrs": true, "ms": true, "dr": true, "hon'ble": true,
	"cr.p.c": true, "i.p.c": true, "i.e.a": true,
}

var markerRe = regexp.MustCompile(`\[([CM]\d+)\]`)

// Markers returns the citation markers in s, e.g. ["C1", "M2"]
func Markers(s string) []string {
	var out []string
	for _, m := range markerRe.FindAllStringSubmatch(s, -1) {
		out = append(out, m[1])
	}
	return out
}

// StripMarkers removes citation markers and tidies the spacing left behind
func StripMarkers(s string) string {
	s = markerRe.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	for _, p := range []string{" .", " ,", " ;", " :", " ?", " !"} {
		s = strings.ReplaceAll(s, p, p[1:])
	}
	return strings.TrimSpace(s)
}

// SplitSentences splits text into sentences. Periods after legal
// abbreviations ("s.", "u/s.", "i.e.") and after a leading section number
// ("103. Punishment") do not end a sentence. Citation markers that follow
// the terminal punctuation stay with their sentence.
func SplitSentences(text string) []string {
	var sentences []string
	start := 0
	n := len(text)

	for i := 0; i < n; i++ {
		c := text[i]
		if c != '.' && c != '?' && c != '!' {
			continue
		}
		// more punctuation or a closing quote/bracket follows
		j := i + 1
		for j < n && strings.IndexByte(`.?!"')`, text[j]) >= 0 {
			j++
		}
		if j < n && !unicode.IsSpace(rune(text[j])) {
			continue
		}
		if c == '.' && !endsSentence(text[start:i]) {
			continue
		}

		// keep trailing markers: "... fine. [C1] [M1]"
		k := j
		for {
			p := k
			for p < n && unicode.IsSpace(rune(text[p])) {
				p++
			}
			loc := markerRe.FindStringIndex(text[p:])
			if loc == nil || loc[0] != 0 {
				break
			}
			k = p + loc[1]
		}

		if s := strings.TrimSpace(text[start:k]); s != "" {
			sentences = append(sentences, s)
		}
		start = k
		i = k - 1
	}

	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// endsSentence reports whether a period after prefix closes the sentence
func endsSentence(prefix string) bool {
	fields := strings.Fields(prefix)
	if len(fields) == 0 {
		return false
	}
	last := strings.ToLower(strings.TrimLeft(fields[len(fields)-1], `("'`))
	if abbreviations[last] {
		return false
	}
	// single initials like "A." in names
	if len(last) == 1 && unicode.IsLetter(rune(last[0])) {
		return false
	}
	// a bare leading number is a heading: "103. Punishment for murder"
	if len(fields) == 1 && isDigits(last) {
		return false
	}
	return true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
