package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lextransition/internal/models"
)

func TestFormatAnswer(t *testing.T) {
	bns := models.NewSectionID(models.BNS, "103", "")
	ans := models.Answer{
		Text:   "Section 302 IPC corresponds to Section 103 BNS.",
		Status: models.StatusDone,
		Citations: []models.Citation{
			{ChunkID: "c1", Act: "Bharatiya Nyaya Sanhita, 2023", Section: &bns, Page: 31},
			{ChunkID: models.MappingCitationPrefix + "IPC:302", Act: "Bharatiya Nyaya Sanhita, 2023", Section: &bns},
			{ChunkID: "c2"},
		},
	}

	out := formatAnswer(ans)
	assert.Contains(t, out, "Sources:\n")
	assert.Contains(t, out, "  1. [Section: BNS 103 - Bharatiya Nyaya Sanhita, 2023, Page: 31]")
	assert.Contains(t, out, "  2. [Section: BNS 103 - Bharatiya Nyaya Sanhita, 2023, Mapping table]")
	assert.Contains(t, out, "  3. [Section: N/A - N/A, Page: 0]")
	assert.NotContains(t, out, "FALLBACK")
}

func TestFormatFallbackAnswer(t *testing.T) {
	out := formatAnswer(models.Answer{
		Text:   "No grounded answer is available.",
		Status: models.StatusFallback,
		Reason: models.ReasonUngrounded,
	})
	assert.Contains(t, out, "[FALLBACK: ungrounded]")
	assert.NotContains(t, out, "Sources:")
}

func TestFormatMapping(t *testing.T) {
	e := models.MappingEntry{
		Old:      models.NewSectionID(models.IPC, "302", ""),
		New:      []models.SectionID{models.NewSectionID(models.BNS, "103", "")},
		Category: "offences affecting life",
	}
	assert.Equal(t, "IPC 302 corresponds to BNS 103. (offences affecting life)", formatMapping(e))
}

func TestFormatReferences(t *testing.T) {
	assert.Equal(t, "No section references found\n", formatReferences(nil))

	out := formatReferences([]models.Reference{{
		Section:    models.NewSectionID(models.IPC, "420", ""),
		Confidence: 0.9,
		Span:       models.Span{Start: 3, End: 10},
		Fuzzy:      true,
	}})
	assert.Contains(t, out, "IPC 420")
	assert.Contains(t, out, "confidence 0.90 at 3-10")
	assert.Contains(t, out, "(OCR-corrected)")
}

func TestResolveCommand(t *testing.T) {
	jsonOutput = false
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"resolve", "charged under Section 302 IPC"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "IPC 302")
}

func TestMapCommandRejectsBadSection(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"map", "not-a-section"})

	assert.Error(t, root.Execute())
}
