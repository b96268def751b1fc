package triage

import (
	"errors"
	"fmt"
	"math"
)

// Severity is an Emergency Severity Index level. Level 1 is the most acute,
// level 5 is non-urgent. The zero value is not a valid level.
type Severity int

const (
	SeverityResuscitation Severity = 1
	SeverityEmergent      Severity = 2
	SeverityUrgent        Severity = 3
	SeveritySemiUrgent    Severity = 4
	SeverityNonUrgent     Severity = 5
)

// Valid reports whether s is one of the five ESI levels.
func (s Severity) Valid() bool {
	return s >= SeverityResuscitation && s <= SeverityNonUrgent
}

func (s Severity) String() string {
	switch s {
	case SeverityResuscitation:
		return "resuscitation"
	case SeverityEmergent:
		return "emergent"
	case SeverityUrgent:
		return "urgent"
	case SeveritySemiUrgent:
		return "semi-urgent"
	case SeverityNonUrgent:
		return "non-urgent"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// Urgency maps the level onto the legacy four-point dispatch scale.
func (s Severity) Urgency() Urgency {
	switch s {
	case SeverityResuscitation:
		return UrgencyCritical
	case SeverityEmergent:
		return UrgencyHigh
	case SeverityUrgent:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// RequiresHumanAttention reports whether the level routes to a human queue
// (levels 1 through 3).
func (s Severity) RequiresHumanAttention() bool {
	return s >= SeverityResuscitation && s <= SeverityUrgent
}

// Urgency is the legacy four-point dispatch scale. Numerically higher is more
// urgent; the dispatch queue drains lanes in descending numeric order.
type Urgency int

const (
	UrgencyLow      Urgency = 1
	UrgencyMedium   Urgency = 2
	UrgencyHigh     Urgency = 3
	UrgencyCritical Urgency = 4
)

// Valid reports whether u is one of the four dispatch lanes.
func (u Urgency) Valid() bool {
	return u >= UrgencyLow && u <= UrgencyCritical
}

func (u Urgency) String() string {
	switch u {
	case UrgencyLow:
		return "low"
	case UrgencyMedium:
		return "medium"
	case UrgencyHigh:
		return "high"
	case UrgencyCritical:
		return "critical"
	}
	return fmt.Sprintf("urgency(%d)", int(u))
}

// ResourceCategory is a class of clinical resource a visit is expected to
// consume. The predictor counts distinct categories; the count feeds the
// severity ladder's lower rungs.
type ResourceCategory string

const (
	ResourceLab        ResourceCategory = "lab"
	ResourceImaging    ResourceCategory = "imaging"
	ResourceIV         ResourceCategory = "iv"
	ResourceMedication ResourceCategory = "medication"
	ResourceSpecialist ResourceCategory = "specialist"
	ResourceProcedure  ResourceCategory = "procedure"
	ResourceNone       ResourceCategory = "none"
)

// Valid reports whether rc is a known resource category.
func (rc ResourceCategory) Valid() bool {
	switch rc {
	case ResourceLab, ResourceImaging, ResourceIV, ResourceMedication,
		ResourceSpecialist, ResourceProcedure, ResourceNone:
		return true
	}
	return false
}

// Signal is the external model's read of an inquiry. The classifier treats it
// as untrusted evidence: the score feeds the decision ladder, the hints only
// annotate the result. The zero value is a valid degraded signal.
type Signal struct {
	Response         string             `json:"response"`
	UrgencyScore     float64            `json:"urgency_score"`
	Confidence       float64            `json:"confidence"`
	SeverityHint     Severity           `json:"severity_hint,omitempty"`
	ResourceHints    []ResourceCategory `json:"resource_hints,omitempty"`
	VitalSignHints   []string           `json:"vital_sign_hints,omitempty"`
	SuggestedActions []string           `json:"suggested_actions,omitempty"`
}

// Validate rejects structurally invalid signals: scores outside [0,1]
// (NaN included) and out-of-range hints. A zero signal passes.
func (s *Signal) Validate() error {
	var errs []error
	if !inUnitInterval(s.UrgencyScore) {
		errs = append(errs, fmt.Errorf("urgency_score %v outside [0,1]", s.UrgencyScore))
	}
	if !inUnitInterval(s.Confidence) {
		errs = append(errs, fmt.Errorf("confidence %v outside [0,1]", s.Confidence))
	}
	if s.SeverityHint != 0 && !s.SeverityHint.Valid() {
		errs = append(errs, fmt.Errorf("severity_hint %d outside 1..5", int(s.SeverityHint)))
	}
	for _, rc := range s.ResourceHints {
		if !rc.Valid() {
			errs = append(errs, fmt.Errorf("unknown resource hint %q", rc))
		}
	}
	return errors.Join(errs...)
}

func inUnitInterval(f float64) bool {
	return !math.IsNaN(f) && f >= 0 && f <= 1
}

// Result is the outcome of classifying one inquiry. Immutable once produced.
type Result struct {
	Severity               Severity           `json:"severity"`
	Urgency                Urgency            `json:"urgency"`
	RecommendedAction      string             `json:"recommended_action"`
	Reasoning              string             `json:"reasoning"`
	RequiresHumanAttention bool               `json:"requires_human_attention"`
	Resources              []ResourceCategory `json:"resources,omitempty"`
	VitalSignConcerns      []string           `json:"vital_sign_concerns,omitempty"`
	CriticalKeywords       []string           `json:"critical_keywords,omitempty"`
	Degraded               bool               `json:"degraded,omitempty"`
}
