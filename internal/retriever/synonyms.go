package retriever

import (
	"sort"
	"strings"

	"lextransition/internal/embedding"
)

// synonyms maps lay and legacy legal terms to the wording used in the codes
var synonyms = map[string][]string{
	"murder":                   {"culpable homicide", "death", "punishment for murder"},
	"killing":                  {"murder", "culpable homicide"},
	"cheating":                 {"fraud", "dishonestly inducing delivery of property"},
	"fraud":                    {"cheating", "dishonestly"},
	"theft":                    {"stealing", "movable property", "dishonestly taking"},
	"stealing":                 {"theft"},
	"bail":                     {"release", "bond", "surety"},
	"anticipatory bail":        {"apprehension of arrest", "direction for grant of bail"},
	"fir":                      {"first information report", "information in cognizable cases"},
	"punishment":               {"imprisonment", "fine", "sentence"},
	"arrest":                   {"custody", "arrest without warrant"},
	"confession":               {"admission", "statement to police officer"},
	"evidence":                 {"proof", "relevant facts", "admissibility"},
	"electronic record":        {"electronic evidence", "digital record", "certificate"},
	"defamation":               {"imputation", "reputation"},
	"rape":                     {"sexual assault", "consent"},
	"kidnapping":               {"abduction", "lawful guardianship"},
	"dowry":                    {"dowry death", "cruelty"},
	"cruelty":                  {"husband or relative", "harassment"},
	"sedition":                 {"sovereignty unity and integrity", "subversive activities"},
	"summons":                  {"notice of appearance", "process to compel appearance"},
	"hurt":                     {"bodily pain", "grievous hurt"},
	"extortion":                {"putting in fear of injury", "delivery of property"},
	"criminal breach of trust": {"entrustment", "misappropriation"},
}

// Expand appends the code wording for any recognized lay term. Text with
// no recognized term is returned unchanged.
func Expand(text string) string {
	tokens := embedding.Tokenize(text)
	if len(tokens) == 0 {
		return text
	}
	padded := " " + strings.Join(tokens, " ") + " "

	var extra []string
	seen := make(map[string]bool)
	for _, term := range terms {
		if !strings.Contains(padded, " "+term+" ") {
			continue
		}
		for _, syn := range synonyms[term] {
			if seen[syn] || strings.Contains(padded, " "+syn+" ") {
				continue
			}
			seen[syn] = true
			extra = append(extra, syn)
		}
	}
	if len(extra) == 0 {
		return text
	}
	return text + " " + strings.Join(extra, " ")
}

// terms lists the synonym keys in a fixed order so expansion is deterministic
var terms = func() []string {
	keys := make([]string, 0, len(synonyms))
	for term := range synonyms {
		keys = append(keys, term)
	}
	sort.Strings(keys)
	return keys
}()
