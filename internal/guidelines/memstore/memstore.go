// Package memstore provides an in-memory implementation of guidelines.Store
// backed by a markdown guideline document.
package memstore

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/vaibhavuttam8/triade-agent/internal/guidelines"
)

// stopwords are query terms too common to carry relevance signal.
var stopwords = map[string]struct{}{
	"and": {}, "are": {}, "for": {}, "has": {}, "have": {}, "her": {},
	"his": {}, "our": {}, "that": {}, "the": {}, "this": {}, "was": {},
	"with": {}, "you": {}, "your": {},
}

// headingWeight boosts term hits in section headings over body hits.
const headingWeight = 3

// Store holds guideline sections in memory. Suitable for dev/testing
// and for single-file guideline documents.
type Store struct {
	mu       sync.RWMutex
	sections []guidelines.Section // document order
}

// New initializes a Store over the given sections.
func New(sections []guidelines.Section) *Store {
	cp := make([]guidelines.Section, len(sections))
	copy(cp, sections)
	return &Store{sections: cp}
}

// Load reads a markdown guideline document and splits it into sections,
// one per heading line. Text before the first heading becomes a General
// section.
func Load(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read guidelines: %w", err)
	}
	sections := splitSections(string(raw))
	if len(sections) == 0 {
		return nil, fmt.Errorf("no guideline sections in %s", path)
	}
	return New(sections), nil
}

// Sections returns a copy of every stored section in document order.
func (s *Store) Sections() []guidelines.Section {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]guidelines.Section, len(s.sections))
	copy(cp, s.sections)
	return cp
}

// Search ranks sections by weighted term overlap with the query and
// returns the top k. Sections with no overlap are excluded.
func (s *Store) Search(_ context.Context, query string, k int) ([]guidelines.Section, error) {
	terms := queryTerms(query)
	if len(terms) == 0 || k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		idx   int
		score int
	}
	ranked := make([]scored, 0, len(s.sections))
	for i, sec := range s.sections {
		heading := strings.ToLower(sec.Heading)
		content := strings.ToLower(sec.Content)
		score := 0
		for _, t := range terms {
			if strings.Contains(heading, t) {
				score += headingWeight
			}
			if strings.Contains(content, t) {
				score++
			}
		}
		if score > 0 {
			ranked = append(ranked, scored{idx: i, score: score})
		}
	}

	// Stable sort keeps document order between equal scores.
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]guidelines.Section, 0, k)
	for _, r := range ranked[:k] {
		out = append(out, s.sections[r.idx])
	}
	return out, nil
}

// queryTerms lowercases and tokenizes a query, dropping short terms,
// stopwords, and duplicates.
func queryTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		if _, ok := stopwords[f]; ok {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

// splitSections chunks markdown by heading lines. Heading level is
// ignored; every "#"-prefixed line starts a new section.
func splitSections(doc string) []guidelines.Section {
	var (
		sections []guidelines.Section
		heading  = "General"
		body     []string
		seen     = map[string]int{}
	)

	flush := func() {
		content := strings.TrimSpace(strings.Join(body, "\n"))
		body = body[:0]
		if content == "" {
			return
		}
		id := slug(heading)
		seen[id]++
		if n := seen[id]; n > 1 {
			id = fmt.Sprintf("%s-%d", id, n)
		}
		sections = append(sections, guidelines.Section{ID: id, Heading: heading, Content: content})
	}

	for _, line := range strings.Split(doc, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			flush()
			heading = strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			if heading == "" {
				heading = "General"
			}
			continue
		}
		body = append(body, line)
	}
	flush()

	return sections
}

// slug converts a heading to a lowercase identifier.
func slug(heading string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(heading) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
