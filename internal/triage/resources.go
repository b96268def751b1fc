package triage

import "strings"

// resourceRule maps a condition phrase to the resource categories a visit
// for it typically consumes.
type resourceRule struct {
	phrase     string
	categories []ResourceCategory
}

var resourceRules = []resourceRule{
	{"abdominal pain", []ResourceCategory{ResourceLab, ResourceImaging}},
	{"kidney stone", []ResourceCategory{ResourceImaging, ResourceMedication, ResourceIV}},
	{"fracture", []ResourceCategory{ResourceImaging, ResourceProcedure}},
	{"broken bone", []ResourceCategory{ResourceImaging, ResourceProcedure}},
	{"broken arm", []ResourceCategory{ResourceImaging, ResourceProcedure}},
	{"broken ankle", []ResourceCategory{ResourceImaging, ResourceProcedure}},
	{"dislocated", []ResourceCategory{ResourceImaging, ResourceProcedure}},
	{"sprained", []ResourceCategory{ResourceImaging}},
	{"twisted ankle", []ResourceCategory{ResourceImaging}},
	{"stitches", []ResourceCategory{ResourceProcedure}},
	{"laceration", []ResourceCategory{ResourceProcedure}},
	{"dehydrated", []ResourceCategory{ResourceIV, ResourceLab}},
	{"dehydration", []ResourceCategory{ResourceIV, ResourceLab}},
	{"keep fluids down", []ResourceCategory{ResourceIV}},
	{"vomiting", []ResourceCategory{ResourceIV, ResourceMedication}},
	{"diarrhea", []ResourceCategory{ResourceLab, ResourceIV}},
	{"fever", []ResourceCategory{ResourceLab}},
	{"infection", []ResourceCategory{ResourceLab, ResourceMedication}},
	{"urinary", []ResourceCategory{ResourceLab, ResourceMedication}},
	{"strep", []ResourceCategory{ResourceLab, ResourceMedication}},
	{"sore throat", []ResourceCategory{ResourceLab}},
	{"pneumonia", []ResourceCategory{ResourceImaging, ResourceLab, ResourceMedication}},
	{"ear infection", []ResourceCategory{ResourceMedication}},
	{"pink eye", []ResourceCategory{ResourceMedication}},
	{"sinus", []ResourceCategory{ResourceMedication}},
	{"migraine", []ResourceCategory{ResourceMedication}},
	{"back pain", []ResourceCategory{ResourceMedication}},
	{"burn", []ResourceCategory{ResourceMedication}},
	{"asthma", []ResourceCategory{ResourceMedication}},
	{"allergies", []ResourceCategory{ResourceMedication}},
	{"diabetes", []ResourceCategory{ResourceLab}},
	{"blood sugar", []ResourceCategory{ResourceLab}},
	{"blood pressure", []ResourceCategory{ResourceLab}},
	{"pregnancy test", []ResourceCategory{ResourceLab}},
	{"blood test", []ResourceCategory{ResourceLab}},
	{"blood work", []ResourceCategory{ResourceLab}},
	{"urine test", []ResourceCategory{ResourceLab}},
	{"x-ray", []ResourceCategory{ResourceImaging}},
	{"ultrasound", []ResourceCategory{ResourceImaging}},
	{"mri", []ResourceCategory{ResourceImaging}},
	{"ct scan", []ResourceCategory{ResourceImaging}},
	{"anxiety", []ResourceCategory{ResourceSpecialist}},
	{"depression", []ResourceCategory{ResourceSpecialist}},
	{"mental health", []ResourceCategory{ResourceSpecialist}},
	{"counseling", []ResourceCategory{ResourceSpecialist}},
	{"therapy", []ResourceCategory{ResourceSpecialist}},
	{"referral", []ResourceCategory{ResourceSpecialist}},
	{"cardiologist", []ResourceCategory{ResourceSpecialist}},
	{"neurologist", []ResourceCategory{ResourceSpecialist}},
	{"dermatologist", []ResourceCategory{ResourceSpecialist}},
}

// Indicator phrases for the padding rules. They never map to a category
// directly; they only signal how resource-hungry the visit sounds when the
// rule table comes up short.
var multiResourceIndicators = []Keyword{
	{Phrase: "multiple symptoms"},
	{Phrase: "getting worse"},
	{Phrase: "several days"},
	{Phrase: "for days"},
	{Phrase: "spreading"},
	{Phrase: "keeps coming back"},
	{Phrase: "came back"},
	{Phrase: "whole body"},
}

var singleResourceIndicators = []Keyword{
	{Phrase: "prescription"},
	{Phrase: "refill"},
	{Phrase: "medication for"},
	{Phrase: "doctor's note"},
	{Phrase: "test results"},
}

// Predictor estimates which resource categories an inquiry will consume.
// The distinct-category count drives the severity ladder's lower rungs.
type Predictor struct {
	rules  []resourceRule
	multi  []Keyword
	single []Keyword
}

// NewPredictor returns a predictor over the built-in rule table.
func NewPredictor() *Predictor {
	return &Predictor{
		rules:  resourceRules,
		multi:  multiResourceIndicators,
		single: singleResourceIndicators,
	}
}

// Predict unions the categories of every rule whose phrase occurs in text
// (case-insensitive, first-mention order) and returns them with the distinct
// count. When the table under-determines the visit, two padding rules fill
// in: a multiple-resources indicator pads with lab then imaging up to two
// categories, and a single-resource indicator with nothing else matched adds
// medication. Never fails.
func (p *Predictor) Predict(text string) ([]ResourceCategory, int) {
	lowered := strings.ToLower(text)

	var cats []ResourceCategory
	seen := make(map[ResourceCategory]bool)
	add := func(c ResourceCategory) {
		if !seen[c] {
			seen[c] = true
			cats = append(cats, c)
		}
	}

	for _, r := range p.rules {
		if strings.Contains(lowered, r.phrase) {
			for _, c := range r.categories {
				add(c)
			}
		}
	}

	if len(cats) < 2 && matchesAny(lowered, p.multi) {
		for _, c := range []ResourceCategory{ResourceLab, ResourceImaging} {
			if len(cats) >= 2 {
				break
			}
			add(c)
		}
	}

	if len(cats) == 0 && matchesAny(lowered, p.single) {
		add(ResourceMedication)
	}

	return cats, len(cats)
}

// matchesAny expects text already lowercased.
func matchesAny(lowered string, kws []Keyword) bool {
	for _, kw := range kws {
		if matchKeyword(lowered, kw) {
			return true
		}
	}
	return false
}
