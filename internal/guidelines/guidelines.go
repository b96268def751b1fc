// Package guidelines provides storage and retrieval of clinical triage
// guideline sections. Sections are retrieved by free-text search and
// injected into the assessment prompt as supporting context.
package guidelines

import (
	"context"
	"strings"
)

// Section is a single retrievable unit of guideline text, usually one
// heading's worth of a larger document.
type Section struct {
	ID      string `json:"id"`
	Heading string `json:"heading"`
	Content string `json:"content"`
}

// Store retrieves guideline sections relevant to a query.
type Store interface {
	// Search returns up to k sections ranked by relevance to query.
	// An empty result is not an error.
	Search(ctx context.Context, query string, k int) ([]Section, error)
}

// FormatContext renders sections as a prompt-ready block. Returns the
// empty string when there are no sections.
func FormatContext(sections []Section) string {
	if len(sections) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Relevant triage guidelines:\n")
	for _, s := range sections {
		b.WriteString("\n## ")
		b.WriteString(s.Heading)
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(s.Content))
		b.WriteString("\n")
	}
	return b.String()
}
