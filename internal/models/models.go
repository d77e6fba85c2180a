package models

import (
	"fmt"
	"time"
)

// Span is a byte range [Start, End) in the input text
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the span length
func (s Span) Len() int {
	return s.End - s.Start
}

// Overlaps reports whether two spans share at least one byte
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Reference is a section citation found in free text
type Reference struct {
	Section    SectionID `json:"section"`
	Confidence float64   `json:"confidence"`
	Span       Span      `json:"span"`
	Fuzzy      bool      `json:"fuzzy,omitempty"` // matched only after OCR normalization
	Cue        string    `json:"cue,omitempty"`   // explicit, document or none
}

// GroundedClaim is one answer sentence with its supporting citations
type GroundedClaim struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations"`
}

// GroundingStatus is the terminal state of an answer
type GroundingStatus string

const (
	StatusDone     GroundingStatus = "DONE"
	StatusFallback GroundingStatus = "FALLBACK"
)

// Stage names a step of the grounding state machine
type Stage string

const (
	StageResolving  Stage = "RESOLVING"
	StageRetrieving Stage = "RETRIEVING"
	StageGenerating Stage = "GENERATING"
	StageVerifying  Stage = "VERIFYING"
	StageDone       Stage = "DONE"
	StageFallback   Stage = "FALLBACK"
)

// Fallback reasons recorded on an Answer
const (
	ReasonRetrievalUnavailable  = "retrieval_unavailable"
	ReasonGenerationUnavailable = "generation_unavailable"
	ReasonUngrounded            = "ungrounded"
)

// Answer is the grounded response to a question or document
type Answer struct {
	Question   string          `json:"question"`
	Text       string          `json:"answer"`
	Claims     []GroundedClaim `json:"claims"`
	Citations  []Citation      `json:"citations"`
	Status     GroundingStatus `json:"grounding_status"`
	Reason     string          `json:"reason,omitempty"`
	References []Reference     `json:"references,omitempty"`
	Mappings   []MappingEntry  `json:"mappings,omitempty"`
	Stages     []Stage         `json:"stages"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Err maps a FALLBACK reason to its sentinel error; nil for DONE answers
func (a Answer) Err() error {
	if a.Status != StatusFallback {
		return nil
	}
	switch a.Reason {
	case ReasonRetrievalUnavailable:
		return ErrRetrievalUnavailable
	case ReasonGenerationUnavailable:
		return ErrGenerationUnavailable
	case ReasonUngrounded:
		return ErrUngroundedAnswer
	}
	return fmt.Errorf("fallback: %s", a.Reason)
}
