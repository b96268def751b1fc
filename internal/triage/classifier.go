package triage

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/vaibhavuttam8/triade-agent/internal/triage")

// actionBySeverity is the fixed recommendation table. Presentation only;
// routing decisions key off Severity and Urgency, never off this text.
var actionBySeverity = map[Severity]string{
	SeverityResuscitation: "Immediate transfer to emergency response team",
	SeverityEmergent:      "Priority routing to available healthcare provider",
	SeverityUrgent:        "Schedule consultation within 24 hours",
	SeveritySemiUrgent:    "Schedule routine appointment",
	SeverityNonUrgent:     "Provide self-care instructions and resources",
}

// Score thresholds for the decision ladder. All comparisons are strict.
const (
	scoreCritical  = 0.9
	scoreHighRisk  = 0.7
	scoreVitalSign = 0.5
	scorePediatric = 0.4
)

// Classifier is the deterministic severity engine. It holds no per-call
// state: Classify is a pure function of the signal, the keyword matches, and
// the resource prediction, so one instance is safe for concurrent use.
type Classifier struct {
	lexicon   *Lexicon
	predictor *Predictor
}

// NewClassifier creates a classifier. Nil arguments select the built-in
// lexicon and rule table.
func NewClassifier(lexicon *Lexicon, predictor *Predictor) *Classifier {
	if lexicon == nil {
		lexicon = DefaultLexicon()
	}
	if predictor == nil {
		predictor = NewPredictor()
	}
	return &Classifier{lexicon: lexicon, predictor: predictor}
}

// Classify assigns a severity level to text given the external signal.
// The decision ladder is evaluated top down, first match wins:
//
//  1. critical keyword, or score above 0.9  -> level 1
//  2. high-risk keyword, or score above 0.7 -> level 2
//  3. vital-sign keyword and (score above 0.5 or resource count >= 2) -> level 2
//  4. pediatric keyword and score above 0.4 -> level 2 if any resource, else 3
//  5. resource count: >=2 -> level 3, ==1 -> level 4, 0 -> level 5
//
// Signal hints annotate the result but never move the ladder. The only
// failure mode is a structurally invalid signal; retrying is a caller
// concern.
func (c *Classifier) Classify(ctx context.Context, sig Signal, text string) (*Result, error) {
	_, span := tracer.Start(ctx, "triage.Classify", trace.WithAttributes(
		attribute.Float64("frontdesk.signal.score", sig.UrgencyScore),
		attribute.Float64("frontdesk.signal.confidence", sig.Confidence),
	))
	defer span.End()

	if err := sig.Validate(); err != nil {
		err = fmt.Errorf("invalid signal: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid signal")
		return nil, err
	}

	critical := c.lexicon.Detect(text, TierCritical)
	highRisk := c.lexicon.Detect(text, TierHighRisk)
	vitals := c.lexicon.Detect(text, TierVitalSign)
	pediatric := c.lexicon.Detect(text, TierPediatric)
	resources, count := c.predictor.Predict(text)
	score := sig.UrgencyScore

	var severity Severity
	var reasoning string
	switch {
	case len(critical) > 0:
		severity = SeverityResuscitation
		reasoning = "critical keywords: " + strings.Join(critical, ", ")
	case score > scoreCritical:
		severity = SeverityResuscitation
		reasoning = fmt.Sprintf("external score %.2f above critical threshold %.2f", score, scoreCritical)
	case len(highRisk) > 0:
		severity = SeverityEmergent
		reasoning = "high-risk keywords: " + strings.Join(highRisk, ", ")
	case score > scoreHighRisk:
		severity = SeverityEmergent
		reasoning = fmt.Sprintf("external score %.2f above high-risk threshold %.2f", score, scoreHighRisk)
	case len(vitals) > 0 && (score > scoreVitalSign || count >= 2):
		severity = SeverityEmergent
		reasoning = fmt.Sprintf("vital sign concerns: %s (score %.2f, expected resources %d)",
			strings.Join(vitals, ", "), score, count)
	case len(pediatric) > 0 && score > scorePediatric:
		if count >= 1 {
			severity = SeverityEmergent
		} else {
			severity = SeverityUrgent
		}
		reasoning = fmt.Sprintf("pediatric concerns: %s (expected resources %d)",
			strings.Join(pediatric, ", "), count)
	case count >= 2:
		severity = SeverityUrgent
		reasoning = fmt.Sprintf("expected to consume %d resource categories", count)
	case count == 1:
		severity = SeveritySemiUrgent
		reasoning = "expected to consume one resource category"
	default:
		severity = SeverityNonUrgent
		reasoning = "no acuity indicators, no expected resources"
	}
	if sig.SeverityHint != 0 && sig.SeverityHint != severity {
		reasoning += fmt.Sprintf("; model hinted level %d", int(sig.SeverityHint))
	}

	res := &Result{
		Severity:               severity,
		Urgency:                severity.Urgency(),
		RecommendedAction:      actionBySeverity[severity],
		Reasoning:              reasoning,
		RequiresHumanAttention: severity.RequiresHumanAttention(),
		Resources:              mergeResources(resources, sig.ResourceHints),
		VitalSignConcerns:      mergeStrings(vitals, sig.VitalSignHints),
		CriticalKeywords:       critical,
	}

	span.SetAttributes(
		attribute.Int("frontdesk.triage.severity", int(severity)),
		attribute.String("frontdesk.triage.urgency", res.Urgency.String()),
		attribute.Int("frontdesk.triage.resource_count", count),
		attribute.Int("frontdesk.triage.critical_hits", len(critical)),
		attribute.Bool("frontdesk.triage.requires_human", res.RequiresHumanAttention),
	)
	return res, nil
}

// ClassifyDegraded classifies with a zero signal, for callers whose model
// call failed. The ladder then runs on keywords and resource counts alone,
// which is exactly the safety net that still forces level 1 on critical
// language.
func (c *Classifier) ClassifyDegraded(ctx context.Context, text string) (*Result, error) {
	res, err := c.Classify(ctx, Signal{}, text)
	if err != nil {
		return nil, err
	}
	res.Degraded = true
	return res, nil
}

// mergeResources unions predicted categories with valid signal hints,
// predicted first, preserving first-mention order.
func mergeResources(predicted []ResourceCategory, hints []ResourceCategory) []ResourceCategory {
	if len(hints) == 0 {
		return predicted
	}
	seen := make(map[ResourceCategory]bool, len(predicted))
	out := append([]ResourceCategory(nil), predicted...)
	for _, c := range predicted {
		seen[c] = true
	}
	for _, c := range hints {
		if c.Valid() && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func mergeStrings(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a))
	out := append([]string(nil), a...)
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
