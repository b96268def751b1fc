package triage

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadLexiconFile reads a replacement lexicon from a YAML file keyed by tier
// name, each tier holding an ordered list of {phrase, context} entries.
// Declaration order in the file becomes the detector's match order. The
// resource tier affects detection only; the predictor's padding indicators
// are fixed, and the built-in indicator band fills in when the file omits
// the tier.
//
//	critical:
//	  - phrase: chest pain
//	  - phrase: severe cramping
//	    context: [pregnancy]
//	high_risk:
//	  - phrase: seizure
func LoadLexiconFile(path string) (*Lexicon, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}

	var bands map[Tier][]Keyword
	if err := yaml.Unmarshal(raw, &bands); err != nil {
		return nil, fmt.Errorf("parse lexicon %s: %w", path, err)
	}
	if len(bands) == 0 {
		return nil, fmt.Errorf("lexicon %s: no tiers defined", path)
	}
	if _, ok := bands[TierResource]; !ok {
		bands[TierResource] = resourceIndicatorBand()
	}

	lex, err := NewLexicon(bands)
	if err != nil {
		return nil, fmt.Errorf("lexicon %s: %w", path, err)
	}
	return lex, nil
}
