package triage

import (
	"fmt"
	"strings"
)

// Tier selects one of the keyword lexicon's five bands.
type Tier string

const (
	TierCritical  Tier = "critical"
	TierHighRisk  Tier = "high_risk"
	TierResource  Tier = "resource"
	TierVitalSign Tier = "vital_sign"
	TierPediatric Tier = "pediatric"
)

// Valid reports whether t is a known lexicon tier.
func (t Tier) Valid() bool {
	switch t {
	case TierCritical, TierHighRisk, TierResource, TierVitalSign, TierPediatric:
		return true
	}
	return false
}

// Keyword is a single lexicon entry. A non-empty Context set gates the match:
// the phrase counts only if at least one context word also occurs somewhere
// in the text.
type Keyword struct {
	Phrase  string   `yaml:"phrase"`
	Context []string `yaml:"context,omitempty"`
}

// Lexicon holds the ordered keyword bands the detector matches against.
// Order within a band is declaration order and fixes the output order of
// Detect, so identical input always yields identical output.
type Lexicon struct {
	bands map[Tier][]Keyword
}

// NewLexicon builds a lexicon from explicit bands. Unknown tiers and empty
// phrases are rejected, as is a missing or empty critical band: a lexicon
// that cannot flag life-threatening language is a configuration mistake.
func NewLexicon(bands map[Tier][]Keyword) (*Lexicon, error) {
	for tier, kws := range bands {
		if !tier.Valid() {
			return nil, fmt.Errorf("unknown lexicon tier %q", tier)
		}
		for i, kw := range kws {
			if strings.TrimSpace(kw.Phrase) == "" {
				return nil, fmt.Errorf("tier %s entry %d: empty phrase", tier, i)
			}
		}
	}
	if len(bands[TierCritical]) == 0 {
		return nil, fmt.Errorf("lexicon has no critical tier")
	}
	copied := make(map[Tier][]Keyword, len(bands))
	for tier, kws := range bands {
		copied[tier] = append([]Keyword(nil), kws...)
	}
	return &Lexicon{bands: copied}, nil
}

// DefaultLexicon returns the built-in lexicon.
func DefaultLexicon() *Lexicon {
	return &Lexicon{bands: map[Tier][]Keyword{
		TierCritical:  criticalKeywords,
		TierHighRisk:  highRiskKeywords,
		TierResource:  resourceIndicatorBand(),
		TierVitalSign: vitalSignKeywords,
		TierPediatric: pediatricKeywords,
	}}
}

// Detect scans text for the tier's keywords and returns the matched phrases
// in lexicon declaration order. Matching is case-insensitive substring
// search. Never fails; empty or unmatched input yields an empty result.
func (l *Lexicon) Detect(text string, tier Tier) []string {
	lowered := strings.ToLower(text)
	var matched []string
	for _, kw := range l.bands[tier] {
		if matchKeyword(lowered, kw) {
			matched = append(matched, kw.Phrase)
		}
	}
	return matched
}

// matchKeyword expects text already lowercased.
func matchKeyword(lowered string, kw Keyword) bool {
	if !strings.Contains(lowered, strings.ToLower(kw.Phrase)) {
		return false
	}
	if len(kw.Context) == 0 {
		return true
	}
	for _, w := range kw.Context {
		if strings.Contains(lowered, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

var criticalKeywords = []Keyword{
	{Phrase: "cardiac arrest"},
	{Phrase: "not breathing"},
	{Phrase: "stopped breathing"},
	{Phrase: "no pulse"},
	{Phrase: "chest pain"},
	{Phrase: "shortness of breath"},
	{Phrase: "difficulty breathing"},
	{Phrase: "severe headache"},
	{Phrase: "vomiting blood"},
	{Phrase: "coughing up blood"},
	{Phrase: "severe abdominal pain"},
	{Phrase: "difficulty speaking"},
	{Phrase: "face numbness"},
	{Phrase: "allergic reaction"},
	{Phrase: "throat closing"},
	{Phrase: "severe cramping", Context: []string{"pregnancy"}},
	{Phrase: "high fever"},
	{Phrase: "stiff neck"},
	{Phrase: "suicidal thoughts"},
	{Phrase: "heart palpitations"},
	{Phrase: "deep cut"},
	{Phrase: "won't stop bleeding"},
	{Phrase: "asthma attack"},
	{Phrase: "unconscious"},
	{Phrase: "vision loss"},
	{Phrase: "severe eye pain"},
	{Phrase: "lips turning blue"},
	{Phrase: "sudden severe pain"},
	{Phrase: "numbness and tingling", Context: []string{"arm", "face"}},
	{Phrase: "severe swelling"},
	{Phrase: "difficulty swallowing"},
	{Phrase: "panic attacks"},
	{Phrase: "red, swollen, warm", Context: []string{"skin"}},
	{Phrase: "severe bleeding"},
}

var highRiskKeywords = []Keyword{
	{Phrase: "seizure"},
	{Phrase: "head injury"},
	{Phrase: "overdose"},
	{Phrase: "severe burn"},
	{Phrase: "sudden confusion"},
	{Phrase: "disoriented"},
	{Phrase: "lethargic"},
	{Phrase: "fainted"},
	{Phrase: "fainting"},
	{Phrase: "worst headache"},
	{Phrase: "blood in stool"},
	{Phrase: "blood in urine"},
	{Phrase: "severe dehydration"},
	{Phrase: "chest tightness"},
	{Phrase: "pregnant", Context: []string{"bleeding", "pain", "cramping"}},
	{Phrase: "immunocompromised", Context: []string{"fever"}},
	{Phrase: "chemotherapy", Context: []string{"fever"}},
}

var vitalSignKeywords = []Keyword{
	{Phrase: "racing heart"},
	{Phrase: "heart racing"},
	{Phrase: "rapid heartbeat"},
	{Phrase: "weak pulse"},
	{Phrase: "breathing fast"},
	{Phrase: "rapid breathing"},
	{Phrase: "catch my breath"},
	{Phrase: "fever", Context: []string{"103", "104", "105"}},
	{Phrase: "temperature", Context: []string{"103", "104", "105"}},
	{Phrase: "low blood pressure"},
	{Phrase: "blood pressure dropping"},
	{Phrase: "low oxygen"},
	{Phrase: "lightheaded"},
	{Phrase: "cold and clammy"},
}

var pediatricKeywords = []Keyword{
	{Phrase: "newborn"},
	{Phrase: "infant"},
	{Phrase: "month old"},
	{Phrase: "baby", Context: []string{"fever", "vomiting", "rash", "breathing", "fell"}},
	{Phrase: "toddler", Context: []string{"fever", "fell", "swallowed", "choking"}},
	{Phrase: "my child", Context: []string{"fever", "pain", "vomiting", "breathing", "rash"}},
	{Phrase: "child swallowed"},
	{Phrase: "croup"},
}

// resourceIndicatorBand exposes the predictor's indicator phrases as a
// detector band so callers can surface them like any other tier.
func resourceIndicatorBand() []Keyword {
	band := make([]Keyword, 0, len(multiResourceIndicators)+len(singleResourceIndicators))
	band = append(band, multiResourceIndicators...)
	band = append(band, singleResourceIndicators...)
	return band
}
