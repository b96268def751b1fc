// internal/agent/processor.go

// Package agent orchestrates inquiry processing: prompt assembly, the model
// conversation loop with tool use, deterministic classification, conversation
// history, and dispatch into the priority queue.
package agent

import (
	"context"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/vaibhavuttam8/triade-agent/internal/dispatch"
	"github.com/vaibhavuttam8/triade-agent/internal/guidelines"
	"github.com/vaibhavuttam8/triade-agent/internal/history"
	"github.com/vaibhavuttam8/triade-agent/internal/inquiry"
	"github.com/vaibhavuttam8/triade-agent/internal/triage"
)

const (
	// recentTurns is how much prior conversation goes into the prompt.
	recentTurns = 5

	// guidelineSections is how many guideline sections are retrieved up
	// front and offered to the model as context.
	guidelineSections = 3
)

// degradedReply is sent when the model is unavailable and classification
// fell back to keyword matching alone.
const degradedReply = "We are experiencing a temporary technical issue on our side. " +
	"Your message has been recorded and our staff will follow up as soon as possible. " +
	"If this is a medical emergency, call 911 or go to the nearest emergency room now."

// fallbackReply covers the rare case where the model recorded an assessment
// but produced no reply text at all.
const fallbackReply = "Thank you for your message. Our staff will review it and get back to you shortly."

// Notifier delivers out-of-band alerts when an urgent inquiry lands on the
// queue. Implementations must tolerate concurrent calls.
type Notifier interface {
	UrgentEnqueued(ctx context.Context, e dispatch.Entry, res *triage.Result)
}

// Outcome is what one processed inquiry produced.
type Outcome struct {
	// Reply is the text to send back to the patient.
	Reply string
	// Result is the deterministic classification.
	Result *triage.Result
	// Entry is set when the inquiry was placed on the dispatch queue.
	Entry *dispatch.Entry
	// SuggestedActions are the model's proposed next steps, if any.
	SuggestedActions []string
}

// Processor is the business boundary for inquiry handling. It runs the model
// conversation, classifies the outcome, updates conversation history, and
// dispatches anything that needs human attention.
type Processor struct {
	engine     *Engine
	classifier *triage.Classifier
	guidelines guidelines.Store
	history    *history.Manager
	queue      *dispatch.Queue
	notifier   Notifier
	logger     log.Logger
	hooks      triage.ProcessorHooks
}

// NewProcessor wires the pipeline. The guideline store and notifier may be
// nil; everything else is required.
func NewProcessor(engine *Engine, classifier *triage.Classifier, store guidelines.Store, hist *history.Manager, queue *dispatch.Queue, notifier Notifier, logger log.Logger, hooks triage.ProcessorHooks) *Processor {
	if logger == nil {
		logger = log.Nop()
	}
	if engine == nil {
		panic(xerrors.New("engine is required"))
	}
	if classifier == nil {
		panic(xerrors.New("classifier is required"))
	}
	if hist == nil {
		panic(xerrors.New("history manager is required"))
	}
	if queue == nil {
		panic(xerrors.New("dispatch queue is required"))
	}
	return &Processor{
		engine:     engine,
		classifier: classifier,
		guidelines: store,
		history:    hist,
		queue:      queue,
		notifier:   notifier,
		logger:     logger,
		hooks:      hooks,
	}
}

// Process handles one inquiry end to end. A cancelled context aborts before
// any assistant-turn or queue mutation; a failing model degrades to
// keyword-only classification instead of failing the inquiry.
func (p *Processor) Process(ctx context.Context, inq *inquiry.Inquiry) (*Outcome, error) {
	start := time.Now()
	L := p.logger.With("subject_id", inq.SubjectID, "channel", string(inq.Channel))

	recent := p.history.Recent(inq.SubjectID, recentTurns)
	p.history.AppendUser(inq.SubjectID, inq.Message, inq.Channel)

	guidelineCtx := p.guidelineContext(ctx, inq.Message)

	run, runErr := p.engine.Run(ctx, inq, recent, guidelineCtx)
	if runErr != nil && ctx.Err() != nil {
		p.emitFailed(inq, start)
		return nil, ctx.Err()
	}

	var (
		result  *triage.Result
		reply   string
		actions []string
		err     error
		outcome = "classified"
	)

	if runErr != nil {
		L.Error(ctx, runErr, "model assessment unavailable, degrading to keyword classification")
		outcome = "degraded"
		result, err = p.classifier.ClassifyDegraded(ctx, inq.Message)
		if err != nil {
			p.emitFailed(inq, start)
			return nil, err
		}
		reply = degradedReply
	} else {
		result, err = p.classifier.Classify(ctx, run.Signal, inq.Message)
		if err != nil {
			L.Error(ctx, err, "model signal rejected, degrading to keyword classification")
			outcome = "degraded"
			result, err = p.classifier.ClassifyDegraded(ctx, inq.Message)
			if err != nil {
				p.emitFailed(inq, start)
				return nil, err
			}
			reply = degradedReply
		} else {
			reply = run.Signal.Response
			if reply == "" {
				reply = run.Reply
			}
			if reply == "" {
				reply = fallbackReply
			}
			actions = run.Signal.SuggestedActions
		}
	}

	if err := ctx.Err(); err != nil {
		p.emitFailed(inq, start)
		return nil, err
	}

	var score, confidence float64
	if outcome == "classified" {
		score = run.Signal.UrgencyScore
		confidence = run.Signal.Confidence
	}
	p.history.AppendAssistant(inq.SubjectID, reply, score, confidence)

	out := &Outcome{Reply: reply, Result: result, SuggestedActions: actions}

	if result.RequiresHumanAttention {
		entry := p.queue.Enqueue(dispatch.Entry{
			SubjectID:      inq.SubjectID,
			Urgency:        result.Urgency,
			Severity:       result.Severity,
			Channel:        inq.Channel,
			ContextSummary: p.history.Summary(inq.SubjectID),
			Patient:        inq.Patient,
		})
		out.Entry = &entry

		L.Info(ctx, "inquiry escalated",
			"severity", int(result.Severity),
			"urgency", entry.Urgency.String(),
			"entry_id", entry.ID)

		if p.notifier != nil && result.Severity <= triage.SeverityEmergent {
			// Delivery must not hold up the patient reply.
			go p.notifier.UrgentEnqueued(context.WithoutCancel(ctx), entry, result)
		}
	}

	duration := time.Since(start).Seconds()
	if p.hooks.OnOutcome != nil {
		p.hooks.OnOutcome(&triage.OutcomeEvent{
			Channel:  string(inq.Channel),
			Outcome:  outcome,
			Severity: result.Severity,
			Duration: duration,
			Enqueued: out.Entry != nil,
		})
	}

	L.Info(ctx, "inquiry processed",
		"outcome", outcome,
		"severity", int(result.Severity),
		"requires_human", result.RequiresHumanAttention,
		"duration_seconds", duration)

	return out, nil
}

func (p *Processor) guidelineContext(ctx context.Context, message string) string {
	if p.guidelines == nil {
		return ""
	}
	sections, err := p.guidelines.Search(ctx, message, guidelineSections)
	if err != nil {
		p.logger.Error(ctx, err, "guideline search failed, continuing without context")
		return ""
	}
	return guidelines.FormatContext(sections)
}

func (p *Processor) emitFailed(inq *inquiry.Inquiry, start time.Time) {
	if p.hooks.OnOutcome != nil {
		p.hooks.OnOutcome(&triage.OutcomeEvent{
			Channel:  string(inq.Channel),
			Outcome:  "failed",
			Duration: time.Since(start).Seconds(),
		})
	}
}
