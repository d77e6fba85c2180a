package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// DefaultHashingDimensions is the vector size of the hashing embedder
const DefaultHashingDimensions = 256

// HashingEmbedder is a deterministic, offline embedder using the hashing
// trick over case-folded word unigrams and bigrams
type HashingEmbedder struct {
	Dimensions int
}

// NewHashingEmbedder returns a hashing embedder; dims <= 0 uses the default
func NewHashingEmbedder(dims int) *HashingEmbedder {
	if dims <= 0 {
		dims = DefaultHashingDimensions
	}
	return &HashingEmbedder{Dimensions: dims}
}

// Embed never fails unless ctx is done
func (h *HashingEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float64, h.Dimensions)
	tokens := Tokenize(text)
	for i, tok := range tokens {
		h.add(vec, tok, 1)
		if i > 0 {
			h.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}

	var sum float64
	for _, x := range vec {
		sum += x * x
	}
	if sum > 0 {
		n := math.Sqrt(sum)
		for i := range vec {
			vec[i] /= n
		}
	}
	return vec, nil
}

func (h *HashingEmbedder) add(vec []float64, feature string, weight float64) {
	f := fnv.New64a()
	f.Write([]byte(feature))
	sum := f.Sum64()
	bucket := int(sum % uint64(h.Dimensions))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[bucket] += weight
}

// Tokenize splits text into case-folded letter/digit runs
func Tokenize(text string) []string {
	folded := cases.Fold().String(text)
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
