// internal/agent/engine.go
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vaibhavuttam8/triade-agent/internal/history"
	"github.com/vaibhavuttam8/triade-agent/internal/inquiry"
	"github.com/vaibhavuttam8/triade-agent/internal/tools"
	"github.com/vaibhavuttam8/triade-agent/internal/triage"
)

var tracer = otel.Tracer("github.com/vaibhavuttam8/triade-agent/internal/agent")

const (
	// MaxAssessmentRounds caps the conversation loop. On the final round
	// the model is forced to record its assessment.
	MaxAssessmentRounds = 3

	// ResponseTokens is the per-call output token budget.
	ResponseTokens = 1024

	// AssessmentToolName is the terminal tool the model calls to hand its
	// assessment back to the deterministic classifier.
	AssessmentToolName = "record_triage_assessment"
)

// ErrNoAssessment is returned when the model ends the conversation without
// ever calling the assessment tool.
var ErrNoAssessment = xerrors.New("model recorded no assessment")

// AssessmentRun is the outcome of one conversation loop.
type AssessmentRun struct {
	// Signal is the model's recorded assessment.
	Signal triage.Signal
	// Reply is the last non-empty text block the model produced. The
	// signal's own response text takes precedence when present.
	Reply string
	// Model is the backend model that served the run.
	Model string

	InputTokens  int
	OutputTokens int
	ToolCalls    int
	ToolsUsed    []string
	Duration     float64
}

// Engine runs the model conversation loop for a single inquiry: it sends the
// prompt, executes any tool calls the model makes, and loops until the model
// records an assessment or the round budget runs out.
type Engine struct {
	provider Provider
	registry *tools.Registry
	logger   log.Logger
	hooks    triage.ProcessorHooks
}

func NewEngine(provider Provider, registry *tools.Registry, logger log.Logger, hooks triage.ProcessorHooks) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	if provider == nil {
		panic(xerrors.New("llm provider is required"))
	}
	if registry == nil {
		registry = tools.NewRegistry()
	}
	return &Engine{
		provider: provider,
		registry: registry,
		logger:   logger,
		hooks:    hooks,
	}
}

// Run drives the conversation until the model records an assessment. The
// returned error is ErrNoAssessment when the round budget is exhausted, or
// the provider's error when a call fails; callers decide how to degrade.
func (e *Engine) Run(ctx context.Context, inq *inquiry.Inquiry, recent []history.Record, guidelineCtx string) (*AssessmentRun, error) {
	start := time.Now()
	L := e.logger.With("subject_id", inq.SubjectID, "channel", string(inq.Channel))

	messages := []Message{{
		Role:    "user",
		Content: []ContentBlock{{Type: "text", Text: buildUserMessage(inq, recent)}},
	}}
	defs := append(e.registry.ToToolDefs(), assessmentToolDef())

	run := &AssessmentRun{}

	for round := 1; round <= MaxAssessmentRounds; round++ {
		req := &LLMRequest{
			MaxTokens: ResponseTokens,
			System:    buildSystemPrompt(guidelineCtx),
			Messages:  messages,
			Tools:     defs,
		}
		if round == MaxAssessmentRounds {
			req.ForceTool = AssessmentToolName
		}

		resp, err := e.sendWithSpan(ctx, inq, round-1, req)
		if err != nil {
			return nil, fmt.Errorf("llm call: %w", err)
		}

		run.Model = resp.Model
		run.InputTokens += resp.Usage.InputTokens
		run.OutputTokens += resp.Usage.OutputTokens

		L.Info(ctx, "llm response",
			"round", round,
			"stop_reason", string(resp.StopReason),
			"input_tokens", resp.Usage.InputTokens,
			"output_tokens", resp.Usage.OutputTokens)

		messages = append(messages, Message{Role: "assistant", Content: resp.Content})

		var toolResults []ContentBlock
		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				if strings.TrimSpace(block.Text) != "" {
					run.Reply = block.Text
				}
			case "tool_use":
				if block.Name == AssessmentToolName {
					var sig triage.Signal
					if err := json.Unmarshal(block.Input, &sig); err != nil {
						return nil, fmt.Errorf("decode assessment: %w", err)
					}
					run.Signal = sig
					run.Duration = time.Since(start).Seconds()
					return run, nil
				}
				run.ToolCalls++
				run.ToolsUsed = append(run.ToolsUsed, block.Name)
				toolResults = append(toolResults, e.executeTool(ctx, inq, block))
			}
		}

		if resp.StopReason == StopToolUse && len(toolResults) > 0 {
			messages = append(messages, Message{Role: "user", Content: toolResults})
			continue
		}

		// The model ended its turn without recording an assessment.
		if round < MaxAssessmentRounds {
			messages = append(messages, Message{Role: "user", Content: []ContentBlock{{
				Type: "text",
				Text: "Record your triage assessment for this inquiry now using the " + AssessmentToolName + " tool.",
			}}})
		}
	}

	return nil, ErrNoAssessment
}

func (e *Engine) sendWithSpan(ctx context.Context, inq *inquiry.Inquiry, seq int, req *LLMRequest) (*LLMResponse, error) {
	ctx, span := tracer.Start(ctx, "llm.call", trace.WithAttributes(
		attribute.String("gen_ai.operation.name", "llm.call"),
		attribute.String("frontdesk.subject.id", inq.SubjectID),
		attribute.String("frontdesk.inquiry.channel", string(inq.Channel)),
		attribute.Int64("frontdesk.chat.seq", int64(seq)),
	))
	defer span.End()

	if body, err := json.Marshal(req.Messages); err == nil {
		span.AddEvent("llm.request", trace.WithAttributes(
			attribute.String("llm.request.body", string(body)),
		))
	}

	start := time.Now()
	resp, err := e.provider.Send(ctx, req)
	dur := time.Since(start).Seconds()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("gen_ai.response.model", resp.Model),
		attribute.Int("gen_ai.usage.input_tokens", resp.Usage.InputTokens),
		attribute.Int("gen_ai.usage.output_tokens", resp.Usage.OutputTokens),
	)
	if body, err := json.Marshal(resp.Content); err == nil {
		span.AddEvent("llm.response", trace.WithAttributes(
			attribute.String("llm.response.body", string(body)),
			attribute.String("llm.stop_reason", string(resp.StopReason)),
		))
	}

	if e.hooks.OnLLMCall != nil {
		e.hooks.OnLLMCall(resp.Usage.InputTokens, resp.Usage.OutputTokens, dur)
	}
	return resp, nil
}

func (e *Engine) executeTool(ctx context.Context, inq *inquiry.Inquiry, block ContentBlock) ContentBlock {
	ctx, span := tracer.Start(ctx, "tool.execute", trace.WithAttributes(
		attribute.String("gen_ai.operation.name", "tool.execute"),
		attribute.String("gen_ai.tool.name", block.Name),
		attribute.String("frontdesk.subject.id", inq.SubjectID),
		attribute.String("frontdesk.tool.input", string(block.Input)),
	))
	defer span.End()

	span.AddEvent("tool.request", trace.WithAttributes(
		attribute.String("tool.request.body", string(block.Input)),
	))

	start := time.Now()

	result := ContentBlock{Type: "tool_result", ToolUseID: block.ID}
	tool, ok := e.registry.Get(block.Name)
	if !ok {
		result.Content = fmt.Sprintf("unknown tool: %s", block.Name)
		result.IsError = true
	} else if output, err := tool.Execute(ctx, block.Input); err != nil {
		e.logger.Error(ctx, err, "tool execution failed", "tool", block.Name)
		result.Content = fmt.Sprintf("tool error: %v", err)
		result.IsError = true
	} else {
		result.Content = string(output)
	}

	dur := time.Since(start).Seconds()

	span.SetAttributes(attribute.Bool("frontdesk.tool.is_error", result.IsError))
	span.AddEvent("tool.result", trace.WithAttributes(
		attribute.String("tool.result.body", result.Content),
	))
	if result.IsError {
		span.SetStatus(codes.Error, result.Content)
	}

	if e.hooks.OnToolCall != nil {
		e.hooks.OnToolCall(block.Name, dur, result.IsError)
	}
	return result
}

type assessmentSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Required   []string       `json:"required"`
}

func assessmentToolDef() tools.ToolDef {
	schema, _ := json.Marshal(assessmentSchema{
		Type: "object",
		Properties: map[string]any{
			"response": map[string]any{
				"type":        "string",
				"description": "The reply to send to the patient.",
			},
			"urgency_score": map[string]any{
				"type":        "number",
				"description": "Urgency from 0.0 (routine) to 1.0 (life-threatening).",
			},
			"confidence": map[string]any{
				"type":        "number",
				"description": "Confidence in the urgency score, 0.0 to 1.0.",
			},
			"severity_hint": map[string]any{
				"type":        "integer",
				"description": "Optional ESI level suggestion, 1 (resuscitation) to 5 (non-urgent).",
			},
			"resource_hints": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Resource categories the patient is likely to need.",
			},
			"vital_sign_hints": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Vital sign concerns mentioned or implied by the message.",
			},
			"suggested_actions": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Concrete next steps for the patient or staff.",
			},
		},
		Required: []string{"response", "urgency_score", "confidence"},
	})
	return tools.ToolDef{
		Name: AssessmentToolName,
		Description: `Record your triage assessment for the current inquiry. Call this exactly
once, after you have gathered what you need. The score and hints feed a
deterministic classifier that makes the final routing decision.`,
		InputSchema: schema,
	}
}

func buildSystemPrompt(guidelineCtx string) string {
	base := `You are the front desk assistant for a medical practice. Patients reach
you by phone transcript, live chat, or the web portal. For every inquiry:

1. Read the message and the recent conversation carefully.
2. Use the search_guidelines tool when a clinic protocol might apply.
3. Write a short, calm, empathetic reply. Acknowledge the concern, say
   what happens next, and never diagnose or prescribe.
4. If the message suggests a life-threatening emergency, tell the patient
   to call 911 or go to the nearest emergency room immediately.
5. Finish by recording your assessment with the ` + AssessmentToolName + `
   tool: the reply text, an urgency score from 0.0 (routine) to 1.0
   (life-threatening), and your confidence in that score.

The final routing decision is made by a separate deterministic system.
Your score is advisory evidence, not the decision.`

	if guidelineCtx == "" {
		return base
	}
	return base + "\n\n" + guidelineCtx
}

func buildUserMessage(inq *inquiry.Inquiry, recent []history.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Channel: %s\n", inq.Channel)

	if p := inq.Patient; p != nil {
		b.WriteString("\nPatient record on file:\n")
		if p.FullName != "" {
			fmt.Fprintf(&b, "  Name: %s\n", p.FullName)
		}
		if p.DateOfBirth != "" {
			fmt.Fprintf(&b, "  Date of birth: %s\n", p.DateOfBirth)
		}
		if len(p.MedicalHistory) > 0 {
			fmt.Fprintf(&b, "  Medical history: %s\n", strings.Join(p.MedicalHistory, ", "))
		}
		if len(p.CurrentMedications) > 0 {
			fmt.Fprintf(&b, "  Current medications: %s\n", strings.Join(p.CurrentMedications, ", "))
		}
		if len(p.Allergies) > 0 {
			fmt.Fprintf(&b, "  Allergies: %s\n", strings.Join(p.Allergies, ", "))
		}
	}

	if len(recent) > 0 {
		b.WriteString("\nRecent conversation:\n")
		for _, r := range recent {
			fmt.Fprintf(&b, "[%s] %s: %s\n", r.Timestamp.Format("15:04"), r.Role, r.Content)
		}
	}

	b.WriteString("\nNew message:\n")
	b.WriteString(inq.Message)
	return b.String()
}
