package main

import (
	"fmt"
	"strings"

	"lextransition/internal/models"
)

func formatAnswer(ans models.Answer) string {
	var sb strings.Builder

	// Add the answer
	sb.WriteString(ans.Text)
	sb.WriteString("\n\n")

	if ans.Status == models.StatusFallback {
		sb.WriteString(fmt.Sprintf("[%s: %s]\n", ans.Status, ans.Reason))
	}

	// Add sources if available
	if len(ans.Citations) > 0 {
		sb.WriteString("Sources:\n")
		for i, c := range ans.Citations {
			sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, formatCitation(c)))
		}
	}

	return sb.String()
}

func formatCitation(c models.Citation) string {
	section := "N/A"
	if c.Section != nil {
		section = c.Section.String()
	}
	act := c.Act
	if act == "" {
		act = "N/A"
	}
	if strings.HasPrefix(c.ChunkID, models.MappingCitationPrefix) {
		return fmt.Sprintf("[Section: %s - %s, Mapping table]", section, act)
	}
	return fmt.Sprintf("[Section: %s - %s, Page: %d]", section, act, c.Page)
}

func formatMapping(e models.MappingEntry) string {
	var sb strings.Builder
	sb.WriteString(e.Summary())
	if e.Category != "" {
		sb.WriteString(fmt.Sprintf(" (%s)", e.Category))
	}
	return sb.String()
}

func formatReferences(refs []models.Reference) string {
	if len(refs) == 0 {
		return "No section references found\n"
	}
	var sb strings.Builder
	for _, r := range refs {
		sb.WriteString(fmt.Sprintf("  %-10s confidence %.2f at %d-%d", r.Section, r.Confidence, r.Span.Start, r.Span.End))
		if r.Fuzzy {
			sb.WriteString(" (OCR-corrected)")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
