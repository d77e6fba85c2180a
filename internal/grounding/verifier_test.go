package grounding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lextransition/internal/llm"
	"lextransition/internal/models"
)

func testBlocks() []llm.Block {
	sec := models.NewSectionID(models.BNSS, "482", "")
	return []llm.Block{
		llm.MappingBlock(1, models.MappingEntry{
			Old: models.NewSectionID(models.CrPC, "438", ""),
			New: []models.SectionID{sec},
		}),
		llm.ChunkBlock(1, models.Chunk{
			ID:         "bnss-482",
			Text:       "Where any person has reason to believe that he may be arrested on an accusation of having committed a non-bailable offence, he may apply to the High Court or the Court of Session for a direction under this section.",
			Provenance: models.Provenance{Act: models.BNSS.Title(), Section: &sec, Page: 140},
		}),
	}
}

func TestVerifierSupport(t *testing.T) {
	v := Verifier{MinOverlap: DefaultMinOverlap, MarkerOverlap: DefaultMarkerOverlap}

	tests := []struct {
		name      string
		sentence  string
		supported bool
		blocks    []string
	}{
		{"verbatim substring", "CrPC 438 corresponds to BNSS 482.", true, []string{"M1"}},
		{"paraphrase with marker", "A person fearing arrest for a non-bailable offence may apply to the High Court. [C1]", true, []string{"C1"}},
		{"high overlap without marker", "Any person who believes he may be arrested may apply to the Court of Session.", true, []string{"C1"}},
		{"unrelated", "Murder is punishable with death. [C1]", false, nil},
		{"unknown marker", "CrPC 438 corresponds to BNSS 482. [C7]", false, nil},
		{"wrong number", "CrPC 438 corresponds to BNSS 483. [M1]", false, nil},
		{"no content", "It is. [C1]", false, nil},
		{"negated mapping", "CrPC 438 does not correspond to BNSS 482. [M1]", false, nil},
		{"contracted negation", "CrPC 438 doesn't correspond to BNSS 482. [M1]", false, nil},
		{"invented repeal", "CrPC 438 has no successor. [M1]", false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdicts := v.Verify(tt.sentence, testBlocks())
			require.Len(t, verdicts, 1)
			assert.Equal(t, tt.supported, verdicts[0].Supported, verdicts[0].Reason)
			assert.Equal(t, tt.blocks, verdicts[0].Blocks)
			if tt.supported {
				assert.NotEmpty(t, verdicts[0].Citations)
			}
		})
	}
}

func TestVerifierMappingCitation(t *testing.T) {
	v := Verifier{MinOverlap: DefaultMinOverlap, MarkerOverlap: DefaultMarkerOverlap}
	verdicts := v.Verify("CrPC 438 corresponds to BNSS 482. [M1]", testBlocks())
	require.Len(t, verdicts, 1)
	require.Len(t, verdicts[0].Citations, 1)

	c := verdicts[0].Citations[0]
	assert.Equal(t, "mapping:CrPC:438", c.ChunkID)
	assert.Equal(t, models.BNSS.Title(), c.Act)
	assert.Equal(t, "BNSS 482", c.Section.String())
}

func TestVerifierNoBlocks(t *testing.T) {
	v := Verifier{MinOverlap: DefaultMinOverlap, MarkerOverlap: DefaultMarkerOverlap}
	for _, verdict := range v.Verify("Bail may be granted. Anticipatory bail exists.", nil) {
		assert.False(t, verdict.Supported)
	}
}

func TestVerifierNegationNeedsNegatedSource(t *testing.T) {
	v := Verifier{MinOverlap: DefaultMinOverlap, MarkerOverlap: DefaultMarkerOverlap}
	blocks := []llm.Block{
		llm.MappingBlock(1, models.MappingEntry{
			Old:     models.NewSectionID(models.IPC, "302", ""),
			New:     []models.SectionID{models.NewSectionID(models.BNS, "103", "")},
			Changes: models.NewChangeSet(models.Penalty),
		}),
		llm.MappingBlock(2, models.MappingEntry{
			Old:     models.NewSectionID(models.IPC, "309", ""),
			Changes: models.NewChangeSet(models.Repealed),
		}),
	}

	verdicts := v.Verify("IPC 302 does not correspond to BNS 103. [M1]", blocks)
	require.Len(t, verdicts, 1)
	assert.False(t, verdicts[0].Supported)
	assert.Equal(t, "negation not found in any source", verdicts[0].Reason)

	verdicts = v.Verify("IPC 302 has no successor. [M1]", blocks)
	require.Len(t, verdicts, 1)
	assert.False(t, verdicts[0].Supported)

	verdicts = v.Verify("IPC 309 has no successor section. [M2]", blocks)
	require.Len(t, verdicts, 1)
	assert.True(t, verdicts[0].Supported, verdicts[0].Reason)
	assert.Equal(t, []string{"M2"}, verdicts[0].Blocks)
}
