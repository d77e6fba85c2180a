package resolver

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lextransition/internal/models"
)

func sections(refs []models.Reference) []string {
	var out []string
	for _, r := range refs {
		out = append(out, r.Section.String())
	}
	return out
}

func TestResolveExplicitCue(t *testing.T) {
	text := "Under Section 302 IPC, what is the punishment?"
	refs := Resolve(text)
	require.Len(t, refs, 1)

	r := refs[0]
	assert.True(t, r.Section.Equal(models.NewSectionID(models.IPC, "302", "")))
	assert.Equal(t, 1.0, r.Confidence)
	assert.Equal(t, CueExplicit, r.Cue)
	assert.False(t, r.Fuzzy)
	assert.Equal(t, "Section 302", text[r.Span.Start:r.Span.End])
}

func TestResolveOCRConfusables(t *testing.T) {
	refs := Resolve("Secti0n l53 IPC")
	require.Len(t, refs, 1)
	assert.Equal(t, "IPC 153", refs[0].Section.String())
	assert.InDelta(t, 0.8, refs[0].Confidence, 1e-9)
	assert.True(t, refs[0].Fuzzy)

	refs = Resolve("Section 3O2 of the Indian Penal Code")
	require.Len(t, refs, 1)
	assert.Equal(t, "IPC 302", refs[0].Section.String())
	assert.InDelta(t, 0.8, refs[0].Confidence, 1e-9)
}

func TestResolveAmbiguousFamily(t *testing.T) {
	refs := Resolve("What does section 420 say?")
	require.Len(t, refs, len(models.Families))
	for i, r := range refs {
		assert.Equal(t, models.Families[i], r.Section.Family)
		assert.Equal(t, "420", r.Section.Number)
		assert.Equal(t, 0.3, r.Confidence)
		assert.Equal(t, CueNone, r.Cue)
		assert.Equal(t, refs[0].Span, r.Span)
	}
}

func TestResolveDocumentCue(t *testing.T) {
	refs := Resolve("Refer to the BNSS. Read section 482 carefully.")
	require.Len(t, refs, 1)
	assert.Equal(t, "BNSS 482", refs[0].Section.String())
	assert.Equal(t, 0.6, refs[0].Confidence)
	assert.Equal(t, CueDocument, refs[0].Cue)
}

func TestResolveNearestCueTieGoesEarlier(t *testing.T) {
	refs := Resolve("IPC x Section 5 x BNS")
	require.Len(t, refs, 1)
	assert.Equal(t, "IPC 5", refs[0].Section.String())
	assert.Equal(t, 0.6, refs[0].Confidence)
}

func TestResolveLists(t *testing.T) {
	refs := Resolve("Charged under Sections 302, 307 and 34 IPC.")
	assert.Equal(t, []string{"IPC 302", "IPC 307", "IPC 34"}, sections(refs))
	for _, r := range refs {
		assert.Equal(t, 1.0, r.Confidence)
	}
}

func TestResolveForms(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"BNS s. 103(1) prescribes death", []string{"BNS 103(1)"}},
		{"booked u/s 498A IPC", []string{"IPC 498A"}},
		{"IPC 420 and BNS 318(4)", []string{"IPC 420", "BNS 318(4)"}},
		{"Sec. 65B of the Indian Evidence Act", []string{"IEA 65B"}},
		{"§ 35 BNSS", []string{"BNSS 35"}},
		{"anticipatory bail under s. 438 Cr.P.C.", []string{"CrPC 438"}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			refs := Resolve(tt.text)
			assert.Equal(t, tt.want, sections(refs))
			for _, r := range refs {
				assert.Equal(t, 1.0, r.Confidence)
			}
		})
	}
}

func TestResolveNoReferences(t *testing.T) {
	assert.Empty(t, Resolve("The weather is nice today."))
	assert.Empty(t, Resolve(""))
	assert.Empty(t, Resolve("Bharatiya Nyaya Sanhita, 2023"))
}

func TestResolveIdempotent(t *testing.T) {
	inputs := []string{
		"Under Section 302 IPC, what is the punishment?",
		"Secti0n l53 IPC",
		"What does section 420 say?",
		"Sections 378, 379 IPC map to BNS 303",
	}
	for _, in := range inputs {
		assert.Equal(t, Resolve(in), Resolve(in), in)
	}
}

func TestResolveSpansAreValid(t *testing.T) {
	text := "Under § 103 BNS and Section 302 IPC, also s. 34"
	for _, r := range Resolve(text) {
		require.True(t, r.Span.Start >= 0 && r.Span.End <= len(text) && r.Span.Start < r.Span.End)
		assert.Contains(t, text[r.Span.Start:r.Span.End], r.Section.Number)
	}
}

func TestResolveDocumentLowConfidence(t *testing.T) {
	text := "Section 302 IPC"
	conf := make([]float64, len(text))
	for i := range conf {
		conf[i] = 0.3
	}
	refs := ResolveDocument(Document{Text: text, CharConfidence: conf})
	require.Len(t, refs, 1)
	assert.InDelta(t, 0.8, refs[0].Confidence, 1e-9)
	assert.True(t, refs[0].Fuzzy)

	for i := range conf {
		conf[i] = 0.95
	}
	refs = ResolveDocument(Document{Text: text, CharConfidence: conf})
	require.Len(t, refs, 1)
	assert.Equal(t, 1.0, refs[0].Confidence)
}

func TestNormalizeConfusables(t *testing.T) {
	tests := map[string]string{
		"Secti0n l53 IPC": "Section 153 IPC",
		"s. 3O4A":         "s. 304A",
		"lPC 42O":         "IPC 420",
		"Is this so?":     "Is this so?",
		"5ections 1|":     "sections 11",
		"A lea of 302":    "A lea of 302",
	}
	for in, want := range tests {
		got := normalizeConfusables(in)
		assert.Equal(t, want, got, in)
		assert.Equal(t, len(in), len(got))
	}
}

func TestResolveIgnoresFamilyLookalikeWords(t *testing.T) {
	text := "A lea of 302 and section 5 of the code."
	refs := Resolve(text)
	require.NotEmpty(t, refs)

	var families []models.CodeFamily
	for _, r := range refs {
		assert.False(t, r.Fuzzy, r.Section.String())
		if text[r.Span.Start:r.Span.End] == "section 5" || text[r.Span.Start:r.Span.End] == "5" {
			families = append(families, r.Section.Family)
		}
	}
	assert.ElementsMatch(t, models.Families, families)
}

func TestResolveNeverTouchesUnrelatedText(t *testing.T) {
	text := strings.Repeat("lorem ipsum ", 50)
	assert.Empty(t, Resolve(text))
}
