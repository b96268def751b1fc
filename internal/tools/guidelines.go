// internal/tools/guidelines.go
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vaibhavuttam8/triade-agent/internal/guidelines"
)

// guidelineTopK caps how many sections one search returns to the model.
const guidelineTopK = 3

// GuidelineSearch lets the model pull clinic triage protocol text
// relevant to the reported symptoms.
type GuidelineSearch struct {
	store guidelines.Store
}

func NewGuidelineSearch(store guidelines.Store) *GuidelineSearch {
	return &GuidelineSearch{store: store}
}

func (g *GuidelineSearch) Name() string { return "search_guidelines" }

func (g *GuidelineSearch) Description() string {
	return `Search the clinic's triage guidelines for protocol text relevant to the
patient's reported symptoms. Use this before recording an assessment when the
right disposition is not obvious from the message alone.
Returns the most relevant guideline sections with headings.`
}

func (g *GuidelineSearch) Parameters() json.RawMessage {
	return json.RawMessage(`{
        "type": "object",
        "properties": {
            "query": {
                "type": "string",
                "description": "Symptoms or topic to look up, e.g. 'chest pain shortness of breath'"
            }
        },
        "required": ["query"]
    }`)
}

func (g *GuidelineSearch) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var input struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if input.Query == "" {
		return nil, fmt.Errorf("query is required")
	}

	sections, err := g.store.Search(ctx, input.Query, guidelineTopK)
	if err != nil {
		return nil, fmt.Errorf("guideline search failed: %w", err)
	}

	output := map[string]any{
		"section_count": len(sections),
		"sections":      sections,
	}
	if len(sections) == 0 {
		output["note"] = "no guideline sections matched; rely on standard triage judgment"
	}

	return json.Marshal(output)
}
