package resolver

import "strings"

// keywords are the words the scanner keys on, repaired when OCR has
// swapped in look-alike characters ("Secti0n", "lPC")
var keywords = []string{"section", "sections", "sec", "secs", "ipc", "crpc", "iea", "bns", "bnss", "bsa"}

// confusableClass folds a byte to its look-alike class: O/o/0, I/l/|/1, S/s/5
func confusableClass(b byte) byte {
	switch b {
	case 'O', 'o', '0':
		return '0'
	case 'I', 'i', 'l', '|', '1':
		return '1'
	case 'S', 's', '5':
		return '5'
	}
	if b >= 'A' && b <= 'Z' {
		return b + 'a' - 'A'
	}
	return b
}

func digitFor(b byte) byte {
	switch b {
	case 'O', 'o':
		return '0'
	case 'I', 'l', '|':
		return '1'
	case 'S', 's':
		return '5'
	}
	return b
}

func isTokenByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '|'
}

func isNumericConfusable(b byte) bool {
	return b >= '0' && b <= '9' || strings.IndexByte("OoIl|Ss", b) >= 0
}

// familyKeywords are only repaired next to a number, so ordinary words
// like "lea" do not turn into family cues
var familyKeywords = map[string]bool{"ipc": true, "crpc": true, "iea": true, "bns": true, "bnss": true, "bsa": true}

// normalizeConfusables rewrites look-alike characters in numeric and
// keyword tokens. Replacements are single ASCII bytes, so byte offsets
// into the result are valid offsets into the input.
func normalizeConfusables(text string) string {
	out := []byte(text)
	var tokens [][2]int
	for i := 0; i < len(out); {
		if !isTokenByte(out[i]) {
			i++
			continue
		}
		j := i
		for j < len(out) && isTokenByte(out[j]) {
			j++
		}
		tokens = append(tokens, [2]int{i, j})
		i = j
	}

	numeric := make([]bool, len(tokens))
	for k, t := range tokens {
		numeric[k] = repairNumber(out[t[0]:t[1]])
	}
	for k, t := range tokens {
		if numeric[k] {
			continue
		}
		nearNumber := k > 0 && numeric[k-1] || k+1 < len(tokens) && numeric[k+1]
		repairKeyword(out[t[0]:t[1]], nearNumber)
	}
	return string(out)
}

func repairKeyword(tok []byte, nearNumber bool) {
	for _, kw := range keywords {
		if len(kw) != len(tok) || strings.EqualFold(kw, string(tok)) {
			continue
		}
		if familyKeywords[kw] && !nearNumber {
			continue
		}
		match := true
		for i := range tok {
			if confusableClass(tok[i]) != confusableClass(kw[i]) {
				match = false
				break
			}
		}
		if match {
			copy(tok, matchCase(tok, kw))
			return
		}
	}
}

// repairNumber converts tokens like "3O2" or "l53" to digits. The token
// must already contain a digit and may end in one letter suffix ("3O4A").
func repairNumber(tok []byte) bool {
	body := tok
	if n := len(tok); n > 1 && !isNumericConfusable(tok[n-1]) && (tok[n-1] >= 'A' && tok[n-1] <= 'Z' || tok[n-1] >= 'a' && tok[n-1] <= 'z') {
		body = tok[:n-1]
	}
	hasDigit := false
	for _, b := range body {
		if !isNumericConfusable(b) {
			return false
		}
		if b >= '0' && b <= '9' {
			hasDigit = true
		}
	}
	if !hasDigit {
		return false
	}
	for i, b := range body {
		body[i] = digitFor(b)
	}
	return true
}

// matchCase spells kw in the case style of tok: "IPC" for "lPC", "Section"
// for "Secti0n"
func matchCase(tok []byte, kw string) string {
	upper, lower := 0, 0
	for _, b := range tok {
		switch {
		case b >= 'A' && b <= 'Z':
			upper++
		case b >= 'a' && b <= 'z':
			lower++
		}
	}
	switch {
	case upper > lower:
		return strings.ToUpper(kw)
	case tok[0] >= 'A' && tok[0] <= 'Z':
		return strings.ToUpper(kw[:1]) + kw[1:]
	}
	return kw
}
