package models

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// CodeFamily identifies one of the supported legal codes
type CodeFamily string

const (
	IPC  CodeFamily = "IPC"
	CrPC CodeFamily = "CrPC"
	IEA  CodeFamily = "IEA"
	BNS  CodeFamily = "BNS"
	BNSS CodeFamily = "BNSS"
	BSA  CodeFamily = "BSA"
)

// Families lists every known code family, legacy codes first
var Families = []CodeFamily{IPC, CrPC, IEA, BNS, BNSS, BSA}

// familyAliases maps folded spellings to their code family
var familyAliases = map[string]CodeFamily{
	"ipc":             IPC,
	"indianpenalcode": IPC,
	"penalcode":       IPC,

	"crpc":                    CrPC,
	"codeofcriminalprocedure": CrPC,
	"criminalprocedurecode":   CrPC,

	"iea":               IEA,
	"indianevidenceact": IEA,
	"evidenceact":       IEA,

	"bns":                   BNS,
	"bharatiyanyayasanhita": BNS,

	"bnss":                            BNSS,
	"bharatiyanagariksurakshasanhita": BNSS,

	"bsa":                       BSA,
	"bharatiyasakshyaadhiniyam": BSA,
}

// actTitles holds the official short titles of each code
var actTitles = map[CodeFamily]string{
	IPC:  "Indian Penal Code, 1860",
	CrPC: "Code of Criminal Procedure, 1973",
	IEA:  "Indian Evidence Act, 1872",
	BNS:  "Bharatiya Nyaya Sanhita, 2023",
	BNSS: "Bharatiya Nagarik Suraksha Sanhita, 2023",
	BSA:  "Bharatiya Sakshya Adhiniyam, 2023",
}

// ParseCodeFamily parses a family name, abbreviation or dotted form ("Cr.P.C.")
func ParseCodeFamily(s string) (CodeFamily, bool) {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	f, ok := familyAliases[b.String()]
	return f, ok
}

// IsLegacy reports whether the family is one of the superseded codes
func (f CodeFamily) IsLegacy() bool {
	return f == IPC || f == CrPC || f == IEA
}

// IsSuccessor reports whether the family is one of the 2023 codes
func (f CodeFamily) IsSuccessor() bool {
	return f == BNS || f == BNSS || f == BSA
}

// Valid reports whether f is a known family
func (f CodeFamily) Valid() bool {
	return f.IsLegacy() || f.IsSuccessor()
}

// Successor returns the code that replaced a legacy family
func (f CodeFamily) Successor() CodeFamily {
	switch f {
	case IPC:
		return BNS
	case CrPC:
		return BNSS
	case IEA:
		return BSA
	}
	return ""
}

// Predecessor returns the code a successor family replaced
func (f CodeFamily) Predecessor() CodeFamily {
	switch f {
	case BNS:
		return IPC
	case BNSS:
		return CrPC
	case BSA:
		return IEA
	}
	return ""
}

// Title returns the official short title of the code
func (f CodeFamily) Title() string {
	return actTitles[f]
}

// FamilyForAct infers the code family from an act title or abbreviation
func FamilyForAct(act string) (CodeFamily, bool) {
	if f, ok := ParseCodeFamily(act); ok {
		return f, true
	}
	folded := strings.ToLower(act)
	for f, title := range actTitles {
		name := strings.ToLower(strings.SplitN(title, ",", 2)[0])
		if strings.Contains(folded, name) {
			return f, true
		}
	}
	return "", false
}

// SectionID identifies a section (and optional subsection) of a code.
// It encodes as its cited form ("BNS 303(2)") in JSON and YAML.
type SectionID struct {
	Family     CodeFamily
	Number     string
	Subsection string
}

// NewSectionID builds a normalized section identifier
func NewSectionID(family CodeFamily, number, subsection string) SectionID {
	return SectionID{
		Family:     family,
		Number:     NormalizeSectionNumber(number),
		Subsection: NormalizeSectionNumber(subsection),
	}
}

// NormalizeSectionNumber trims, upper-cases and strips punctuation and
// whitespace so OCR noise like "302 " or "302-a" compares as "302" / "302A"
func NormalizeSectionNumber(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// Normalized returns the identifier with normalized number and subsection
func (s SectionID) Normalized() SectionID {
	return NewSectionID(s.Family, s.Number, s.Subsection)
}

// Equal compares two identifiers after normalization
func (s SectionID) Equal(o SectionID) bool {
	return s.Normalized() == o.Normalized()
}

// IsZero reports whether the identifier is unset
func (s SectionID) IsZero() bool {
	return s.Family == "" && s.Number == ""
}

// Parent drops the subsection
func (s SectionID) Parent() SectionID {
	return SectionID{Family: s.Family, Number: NormalizeSectionNumber(s.Number)}
}

// Key returns the canonical map key, e.g. "IPC:302" or "BNS:303(2)"
func (s SectionID) Key() string {
	n := s.Normalized()
	if n.Subsection != "" {
		return fmt.Sprintf("%s:%s(%s)", n.Family, n.Number, n.Subsection)
	}
	return fmt.Sprintf("%s:%s", n.Family, n.Number)
}

// String renders the identifier the way it is cited, e.g. "BNS 303(2)"
func (s SectionID) String() string {
	n := s.Normalized()
	if n.Subsection != "" {
		return fmt.Sprintf("%s %s(%s)", n.Family, n.Number, n.Subsection)
	}
	return fmt.Sprintf("%s %s", n.Family, n.Number)
}

var sectionIDPattern = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z.\s]*?)\s*(?:[Ss]ection|[Ss]ec\.?|[Ss]\.)?\s*(\d+[A-Za-z]{0,2})\s*(?:\(\s*([0-9A-Za-z]{1,4})\s*\))?\s*$`)

// ParseSectionID parses identifiers like "IPC 302", "BNS 303(2)" or "Cr.P.C. s. 41A"
func ParseSectionID(s string) (SectionID, error) {
	m := sectionIDPattern.FindStringSubmatch(s)
	if m == nil {
		return SectionID{}, fmt.Errorf("invalid section identifier %q", s)
	}
	family, ok := ParseCodeFamily(m[1])
	if !ok {
		return SectionID{}, fmt.Errorf("unknown code family %q in %q", m[1], s)
	}
	return NewSectionID(family, m[2], m[3]), nil
}

// MarshalText implements encoding.TextMarshaler
func (s SectionID) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *SectionID) UnmarshalText(text []byte) error {
	id, err := ParseSectionID(string(text))
	if err != nil {
		return err
	}
	*s = id
	return nil
}
