package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ChangeType classifies how a provision changed in the successor code
type ChangeType uint8

const (
	// Wording marks a drafting or language change with the same effect
	Wording ChangeType = 1 << iota
	// Penalty marks a change to punishment or fine
	Penalty
	// Scope marks a change to the ingredients or reach of the provision
	Scope
	// Repealed marks a provision with no successor
	Repealed
	// New marks content added by the successor code
	New
)

var changeTypeNames = []struct {
	t    ChangeType
	name string
}{
	{Wording, "WORDING"},
	{Penalty, "PENALTY"},
	{Scope, "SCOPE"},
	{Repealed, "REPEALED"},
	{New, "NEW"},
}

// String returns the upper-case name of a single change type
func (c ChangeType) String() string {
	for _, n := range changeTypeNames {
		if n.t == c {
			return n.name
		}
	}
	return "UNKNOWN"
}

// ParseChangeType converts a name like "penalty" to a ChangeType
func ParseChangeType(s string) (ChangeType, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for _, n := range changeTypeNames {
		if n.name == name {
			return n.t, nil
		}
	}
	return 0, fmt.Errorf("unknown change type %q", s)
}

// ChangeSet is a set of change types
type ChangeSet uint8

// NewChangeSet builds a set from individual change types
func NewChangeSet(types ...ChangeType) ChangeSet {
	var c ChangeSet
	for _, t := range types {
		c |= ChangeSet(t)
	}
	return c
}

// ParseChangeSet parses a list of change type names
func ParseChangeSet(names []string) (ChangeSet, error) {
	var c ChangeSet
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		t, err := ParseChangeType(name)
		if err != nil {
			return 0, err
		}
		c |= ChangeSet(t)
	}
	return c, nil
}

// Has reports whether t is in the set
func (c ChangeSet) Has(t ChangeType) bool {
	return c&ChangeSet(t) != 0
}

// Names returns the member names in declaration order
func (c ChangeSet) Names() []string {
	var names []string
	for _, n := range changeTypeNames {
		if c.Has(n.t) {
			names = append(names, n.name)
		}
	}
	return names
}

// String renders the set as "PENALTY|SCOPE"
func (c ChangeSet) String() string {
	return strings.Join(c.Names(), "|")
}

// MarshalJSON encodes the set as a list of names
func (c ChangeSet) MarshalJSON() ([]byte, error) {
	names := c.Names()
	if names == nil {
		names = []string{}
	}
	return json.Marshal(names)
}

// UnmarshalJSON decodes a list of names
func (c *ChangeSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	parsed, err := ParseChangeSet(names)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// MappingEntry records how one legacy section maps to its successor sections
type MappingEntry struct {
	Old      SectionID   `json:"old"`
	New      []SectionID `json:"new"`
	Changes  ChangeSet   `json:"changes"`
	Note     string      `json:"note,omitempty"`
	Category string      `json:"category,omitempty"`
	Source   string      `json:"source,omitempty"`
}

// Validate checks the structural invariants of a mapping entry
func (e MappingEntry) Validate() error {
	if e.Old.Number == "" {
		return fmt.Errorf("old section is empty")
	}
	if !e.Old.Family.IsLegacy() {
		return fmt.Errorf("old section %s is not an IPC/CrPC/IEA section", e.Old)
	}
	if e.Changes.Has(Repealed) {
		if len(e.New) > 0 {
			return fmt.Errorf("repealed section %s must not list successors", e.Old)
		}
		return nil
	}
	if len(e.New) == 0 {
		return fmt.Errorf("section %s has no successor and is not marked REPEALED", e.Old)
	}
	for _, n := range e.New {
		if n.Number == "" {
			return fmt.Errorf("section %s lists an empty successor", e.Old)
		}
		if !n.Family.IsSuccessor() {
			return fmt.Errorf("successor %s of %s is not a BNS/BNSS/BSA section", n, e.Old)
		}
	}
	return nil
}

// IsRepealed reports whether the old section has no successor
func (e MappingEntry) IsRepealed() bool {
	return e.Changes.Has(Repealed)
}

// Summary renders the entry as plain sentences, used as generation context
func (e MappingEntry) Summary() string {
	var b strings.Builder
	if e.IsRepealed() {
		fmt.Fprintf(&b, "%s is repealed and has no successor section.", e.Old)
	} else {
		news := make([]string, len(e.New))
		for i, n := range e.New {
			news[i] = n.String()
		}
		fmt.Fprintf(&b, "%s corresponds to %s.", e.Old, strings.Join(news, " and "))
	}
	if names := e.Changes.Names(); len(names) > 0 {
		lower := make([]string, len(names))
		for i, n := range names {
			lower[i] = strings.ToLower(n)
		}
		sort.Strings(lower)
		fmt.Fprintf(&b, " Changes: %s.", strings.Join(lower, ", "))
	}
	if e.Note != "" {
		fmt.Fprintf(&b, " %s.", strings.TrimRight(e.Note, ". "))
	}
	return b.String()
}
