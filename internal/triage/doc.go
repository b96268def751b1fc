// Package triage is the deterministic severity core of the front desk. It
// defines the domain model (severity, urgency, resource categories, external
// signal), the tiered keyword lexicon, the resource predictor, and the ESI
// classifier that turns free text plus an external model signal into a
// severity level, an urgency lane, and a recommended action.
package triage
