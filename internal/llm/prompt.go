package llm

import (
	"fmt"
	"regexp"
	"strings"

	"lextransition/internal/models"
)

// Block is one numbered source offered to the generator: a retrieved
// chunk ([C1], [C2], ...) or a mapping entry ([M1], ...)
type Block struct {
	Marker    string
	Header    string
	Text      string
	Citations []models.Citation
}

// ChunkBlock builds the block for the i-th retrieved chunk (1-based)
func ChunkBlock(i int, c models.Chunk) Block {
	p := c.Provenance
	parts := []string{p.Act}
	if p.Section != nil {
		parts = append(parts, "Section "+p.Section.Number+subsection(*p.Section))
	}
	if p.Chapter != "" {
		parts = append(parts, "Chapter "+p.Chapter)
	}
	if p.Page > 0 {
		parts = append(parts, fmt.Sprintf("Page %d", p.Page))
	}
	return Block{
		Marker:    fmt.Sprintf("C%d", i),
		Header:    strings.Join(parts, ", "),
		Text:      strings.TrimSpace(c.Text),
		Citations: []models.Citation{models.CitationForChunk(c)},
	}
}

func subsection(id models.SectionID) string {
	if id.Subsection == "" {
		return ""
	}
	return "(" + id.Subsection + ")"
}

// MappingBlock builds the block for the i-th mapping entry (1-based)
func MappingBlock(i int, e models.MappingEntry) Block {
	return Block{
		Marker:    fmt.Sprintf("M%d", i),
		Header:    "Correspondence table entry for " + e.Old.String(),
		Text:      e.Summary(),
		Citations: models.CitationsForMapping(e),
	}
}

// BuildPrompt writes a closed-book prompt: the model may only use the
// numbered blocks and must cite them after every sentence
func BuildPrompt(question string, blocks []Block) string {
	var promptBuilder strings.Builder

	promptBuilder.WriteString("You are LexTransition, an assistant for the transition from the IPC, CrPC and Indian Evidence Act ")
	promptBuilder.WriteString("to the Bharatiya Nyaya Sanhita, Bharatiya Nagarik Suraksha Sanhita and Bharatiya Sakshya Adhiniyam. ")
	promptBuilder.WriteString("Answer ONLY from the numbered sources below. Do not use any other knowledge. ")
	promptBuilder.WriteString("End every sentence with the marker of the source that supports it, e.g. [C1] or [M1]. ")
	promptBuilder.WriteString("Quote section numbers exactly as they appear in the sources. ")
	promptBuilder.WriteString("If the sources do not answer the question, say that the indexed texts do not cover it.\n\n")

	promptBuilder.WriteString("Sources:\n")
	for _, b := range blocks {
		fmt.Fprintf(&promptBuilder, "[%s] %s\n%s\n\n", b.Marker, b.Header, b.Text)
	}

	promptBuilder.WriteString("Question: " + strings.TrimSpace(question) + "\n\n")
	promptBuilder.WriteString("Answer: ")

	return promptBuilder.String()
}

var blockHeaderRe = regexp.MustCompile(`(?m)^\[([CM]\d+)\] [^\n]*\n`)

// ParseBlocks recovers marker and text of the blocks in a prompt built by BuildPrompt
func ParseBlocks(prompt string) []Block {
	end := strings.LastIndex(prompt, "\nQuestion: ")
	if end < 0 {
		end = len(prompt)
	}
	body := prompt[:end]

	locs := blockHeaderRe.FindAllStringSubmatchIndex(body, -1)
	blocks := make([]Block, 0, len(locs))
	for i, loc := range locs {
		textEnd := len(body)
		if i+1 < len(locs) {
			textEnd = locs[i+1][0]
		}
		blocks = append(blocks, Block{
			Marker: body[loc[2]:loc[3]],
			Text:   strings.TrimSpace(body[loc[1]:textEnd]),
		})
	}
	return blocks
}
