package models

import "errors"

var (
	// ErrNotFound is an expected miss, e.g. no mapping for a section
	ErrNotFound = errors.New("not found")
	// ErrRetrievalUnavailable means the corpus index or embedding service could not serve
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	// ErrGenerationUnavailable means the text-generation service failed or timed out
	ErrGenerationUnavailable = errors.New("generation unavailable")
	// ErrUngroundedAnswer means verification rejected the generated content
	ErrUngroundedAnswer = errors.New("answer could not be grounded in cited sources")
	// ErrMalformedMappingData means the mapping data source is corrupt
	ErrMalformedMappingData = errors.New("malformed mapping data")
)
