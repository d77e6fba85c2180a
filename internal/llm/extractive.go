package llm

import (
	"context"
	"strings"
)

// Extractive answers by quoting the opening sentences of the supplied
// blocks, each cited with its marker. It never adds text of its own, so
// it works offline and is closed-book by construction.
type Extractive struct {
	// MaxChunks caps how many [C#] blocks are quoted; mapping blocks are always quoted
	MaxChunks int
	// SentencesPerBlock caps how many sentences are quoted per block
	SentencesPerBlock int
}

// NewExtractive returns an extractive generator with default limits
func NewExtractive() *Extractive {
	return &Extractive{MaxChunks: 2, SentencesPerBlock: 2}
}

// Generate quotes from the prompt's blocks. A prompt with no blocks yields
// an empty answer.
func (e *Extractive) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var out []string
	chunks := 0
	for _, b := range ParseBlocks(prompt) {
		if strings.HasPrefix(b.Marker, "C") {
			if chunks >= e.MaxChunks {
				continue
			}
			chunks++
		}
		sentences := SplitSentences(b.Text)
		if len(sentences) > e.SentencesPerBlock {
			sentences = sentences[:e.SentencesPerBlock]
		}
		for _, s := range sentences {
			out = append(out, StripMarkers(s)+" ["+b.Marker+"]")
		}
	}
	return strings.Join(out, " "), nil
}
