package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/vaibhavuttam8/triade-agent/internal/dispatch"
	"github.com/vaibhavuttam8/triade-agent/internal/guidelines"
	"github.com/vaibhavuttam8/triade-agent/internal/history"
	"github.com/vaibhavuttam8/triade-agent/internal/tools"
	"github.com/vaibhavuttam8/triade-agent/internal/triage"
)

// fakeGuidelineStore records the last search and returns canned sections.
type fakeGuidelineStore struct {
	mu       sync.Mutex
	sections []guidelines.Section
	err      error
	lastQ    string
	lastK    int
}

func (f *fakeGuidelineStore) Search(_ context.Context, query string, k int) ([]guidelines.Section, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQ = query
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	return f.sections, nil
}

// mockNotifier delivers each call on a channel so tests can wait for the
// async notification goroutine.
type mockNotifier struct {
	ch chan dispatch.Entry
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{ch: make(chan dispatch.Entry, 4)}
}

func (m *mockNotifier) UrgentEnqueued(_ context.Context, e dispatch.Entry, _ *triage.Result) {
	m.ch <- e
}

func (m *mockNotifier) wait(t *testing.T) dispatch.Entry {
	t.Helper()
	select {
	case e := <-m.ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notifier call")
		return dispatch.Entry{}
	}
}

func (m *mockNotifier) expectNoCall(t *testing.T) {
	t.Helper()
	select {
	case e := <-m.ch:
		t.Fatalf("unexpected notifier call for %s", e.SubjectID)
	case <-time.After(100 * time.Millisecond):
	}
}

// assessmentProvider replies immediately with a recorded assessment.
func assessmentProvider(input string) *mockProvider {
	return &mockProvider{
		responses: []*LLMResponse{{
			Content:    []ContentBlock{assessmentBlock("c-1", input)},
			StopReason: StopToolUse,
			Usage:      Usage{InputTokens: 100, OutputTokens: 50},
			Model:      claudeTestModel,
		}},
	}
}

func newTestProcessor(provider Provider, store guidelines.Store, notifier Notifier, hooks triage.ProcessorHooks) (*Processor, *history.Manager, *dispatch.Queue) {
	engine := NewEngine(provider, tools.NewRegistry(), log.Nop(), hooks)
	classifier := triage.NewClassifier(nil, nil)
	hist := history.New(time.Hour, log.Nop())
	queue := dispatch.New(dispatch.Hooks{})
	proc := NewProcessor(engine, classifier, store, hist, queue, notifier, log.Nop(), hooks)
	return proc, hist, queue
}

func TestProcess_ClassifiedAndEnqueued(t *testing.T) {
	t.Parallel()

	provider := assessmentProvider(`{"response":"Call 911 now.","urgency_score":0.95,"confidence":0.9,"suggested_actions":["call 911"]}`)
	notifier := newMockNotifier()

	var (
		mu    sync.Mutex
		event *triage.OutcomeEvent
	)
	hooks := triage.ProcessorHooks{OnOutcome: func(e *triage.OutcomeEvent) {
		mu.Lock()
		defer mu.Unlock()
		event = e
	}}

	proc, hist, queue := newTestProcessor(provider, nil, notifier, hooks)

	// No lexicon keywords; the score alone must drive level 1.
	out, err := proc.Process(context.Background(), testInquiry("something is very wrong, please respond quickly"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if out.Reply != "Call 911 now." {
		t.Errorf("reply = %q, want the signal response", out.Reply)
	}
	if out.Result.Severity != triage.SeverityResuscitation {
		t.Errorf("severity = %d, want 1", out.Result.Severity)
	}
	if out.Result.Degraded {
		t.Error("result should not be degraded")
	}
	if out.Entry == nil {
		t.Fatal("expected a queue entry")
	}
	if out.Entry.Urgency != triage.UrgencyCritical {
		t.Errorf("entry urgency = %v, want critical", out.Entry.Urgency)
	}
	if out.Entry.ID == "" {
		t.Error("expected an assigned entry ID")
	}
	if len(out.SuggestedActions) != 1 || out.SuggestedActions[0] != "call 911" {
		t.Errorf("suggested actions = %v", out.SuggestedActions)
	}

	if got := queue.Depth(triage.UrgencyCritical); got != 1 {
		t.Errorf("critical lane depth = %d, want 1", got)
	}

	recs := hist.Recent("subj-test", 10)
	if len(recs) != 2 {
		t.Fatalf("history records = %d, want 2", len(recs))
	}
	if recs[0].Role != history.RoleUser || recs[1].Role != history.RoleAssistant {
		t.Errorf("history roles = %v/%v, want user/assistant", recs[0].Role, recs[1].Role)
	}
	if recs[1].Content != "Call 911 now." {
		t.Errorf("assistant record = %q, want the reply", recs[1].Content)
	}
	if recs[1].UrgencyScore != 0.95 {
		t.Errorf("assistant urgency score = %v, want 0.95", recs[1].UrgencyScore)
	}

	entry := notifier.wait(t)
	if entry.SubjectID != "subj-test" {
		t.Errorf("notified subject = %q, want subj-test", entry.SubjectID)
	}

	mu.Lock()
	defer mu.Unlock()
	if event == nil {
		t.Fatal("expected an outcome event")
	}
	if event.Outcome != "classified" {
		t.Errorf("outcome = %q, want classified", event.Outcome)
	}
	if event.Severity != triage.SeverityResuscitation {
		t.Errorf("outcome severity = %d, want 1", event.Severity)
	}
	if !event.Enqueued {
		t.Error("outcome should report enqueued")
	}
	if event.Channel != "chat" {
		t.Errorf("outcome channel = %q, want chat", event.Channel)
	}
}

func TestProcess_RoutineNotEnqueued(t *testing.T) {
	t.Parallel()

	provider := assessmentProvider(`{"response":"We are open 8am to 5pm.","urgency_score":0.1,"confidence":0.95}`)
	proc, hist, queue := newTestProcessor(provider, nil, nil, triage.ProcessorHooks{})

	out, err := proc.Process(context.Background(), testInquiry("what are your office hours this week?"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if out.Result.Severity != triage.SeverityNonUrgent {
		t.Errorf("severity = %d, want 5", out.Result.Severity)
	}
	if out.Entry != nil {
		t.Errorf("entry = %+v, want nil", out.Entry)
	}
	if st := queue.Status(); st.Total != 0 {
		t.Errorf("queue total = %d, want 0", st.Total)
	}
	if recs := hist.Recent("subj-test", 10); len(recs) != 2 {
		t.Errorf("history records = %d, want 2", len(recs))
	}
}

func TestProcess_UrgentEnqueuedWithoutNotification(t *testing.T) {
	t.Parallel()

	// Two resource categories put this at level 3: queued for staff, but
	// below the out-of-band notification bar.
	provider := assessmentProvider(`{"response":"Let's get you seen.","urgency_score":0.3,"confidence":0.8}`)
	notifier := newMockNotifier()
	proc, _, queue := newTestProcessor(provider, nil, notifier, triage.ProcessorHooks{})

	out, err := proc.Process(context.Background(), testInquiry("I keep vomiting and have diarrhea since last night"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if out.Result.Severity != triage.SeverityUrgent {
		t.Fatalf("severity = %d, want 3", out.Result.Severity)
	}
	if out.Entry == nil {
		t.Fatal("expected a queue entry")
	}
	if got := queue.Depth(triage.UrgencyMedium); got != 1 {
		t.Errorf("medium lane depth = %d, want 1", got)
	}
	notifier.expectNoCall(t)
}

func TestProcess_DegradedStillEscalates(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{errs: []error{errors.New("model overloaded")}}
	notifier := newMockNotifier()

	var (
		mu    sync.Mutex
		event *triage.OutcomeEvent
	)
	hooks := triage.ProcessorHooks{OnOutcome: func(e *triage.OutcomeEvent) {
		mu.Lock()
		defer mu.Unlock()
		event = e
	}}

	proc, hist, queue := newTestProcessor(provider, nil, notifier, hooks)

	out, err := proc.Process(context.Background(), testInquiry("I am having chest pain right now"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if !out.Result.Degraded {
		t.Error("result should be degraded")
	}
	if out.Result.Severity != triage.SeverityResuscitation {
		t.Errorf("severity = %d, want 1 from the critical keyword", out.Result.Severity)
	}
	if out.Reply != degradedReply {
		t.Errorf("reply = %q, want the degraded fallback", out.Reply)
	}
	if out.Entry == nil {
		t.Fatal("expected a queue entry despite the model failure")
	}
	if got := queue.Depth(triage.UrgencyCritical); got != 1 {
		t.Errorf("critical lane depth = %d, want 1", got)
	}

	recs := hist.Recent("subj-test", 10)
	if len(recs) != 2 || recs[1].Content != degradedReply {
		t.Errorf("history = %+v, want user turn plus degraded reply", recs)
	}

	notifier.wait(t)

	mu.Lock()
	defer mu.Unlock()
	if event == nil || event.Outcome != "degraded" {
		t.Fatalf("outcome event = %+v, want degraded", event)
	}
}

func TestProcess_InvalidSignalDegrades(t *testing.T) {
	t.Parallel()

	provider := assessmentProvider(`{"response":"hm","urgency_score":1.5,"confidence":0.9}`)
	proc, _, _ := newTestProcessor(provider, nil, nil, triage.ProcessorHooks{})

	out, err := proc.Process(context.Background(), testInquiry("just checking in"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if !out.Result.Degraded {
		t.Error("an out-of-range signal must degrade, not fail")
	}
	if out.Reply != degradedReply {
		t.Errorf("reply = %q, want the degraded fallback", out.Reply)
	}
	if out.Entry != nil {
		t.Errorf("entry = %+v, want nil for a routine message", out.Entry)
	}
}

// cancelProvider cancels the request context and returns its error,
// simulating a shutdown racing an in-flight call.
type cancelProvider struct {
	cancel context.CancelFunc
}

func (p *cancelProvider) Send(ctx context.Context, _ *LLMRequest) (*LLMResponse, error) {
	p.cancel()
	return nil, ctx.Err()
}

func TestProcess_CancelledContextAborts(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu    sync.Mutex
		event *triage.OutcomeEvent
	)
	hooks := triage.ProcessorHooks{OnOutcome: func(e *triage.OutcomeEvent) {
		mu.Lock()
		defer mu.Unlock()
		event = e
	}}

	proc, hist, queue := newTestProcessor(&cancelProvider{cancel: cancel}, nil, nil, hooks)

	_, err := proc.Process(ctx, testInquiry("I am having chest pain right now"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Process() error = %v, want context.Canceled", err)
	}

	// The received message is recorded; nothing else may be.
	recs := hist.Recent("subj-test", 10)
	if len(recs) != 1 || recs[0].Role != history.RoleUser {
		t.Errorf("history = %+v, want only the user turn", recs)
	}
	if st := queue.Status(); st.Total != 0 {
		t.Errorf("queue total = %d, want 0", st.Total)
	}

	mu.Lock()
	defer mu.Unlock()
	if event == nil || event.Outcome != "failed" {
		t.Fatalf("outcome event = %+v, want failed", event)
	}
}

func TestProcess_GuidelineContextInPrompt(t *testing.T) {
	t.Parallel()

	store := &fakeGuidelineStore{sections: []guidelines.Section{
		{ID: "chest-pain-protocol", Heading: "Chest Pain Protocol", Content: "Always escalate."},
	}}
	provider := assessmentProvider(`{"response":"ok","urgency_score":0.1,"confidence":0.9}`)
	proc, _, _ := newTestProcessor(provider, store, nil, triage.ProcessorHooks{})

	msg := "should I worry about mild soreness?"
	if _, err := proc.Process(context.Background(), testInquiry(msg)); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	store.mu.Lock()
	if store.lastQ != msg {
		t.Errorf("search query = %q, want the inquiry message", store.lastQ)
	}
	if store.lastK != guidelineSections {
		t.Errorf("search k = %d, want %d", store.lastK, guidelineSections)
	}
	store.mu.Unlock()

	system := provider.reqs[0].System
	if !strings.Contains(system, "Relevant triage guidelines") {
		t.Error("system prompt missing guideline context")
	}
	if !strings.Contains(system, "Chest Pain Protocol") {
		t.Error("system prompt missing the retrieved section")
	}
}

func TestProcess_GuidelineSearchErrorContinues(t *testing.T) {
	t.Parallel()

	store := &fakeGuidelineStore{err: errors.New("index offline")}
	provider := assessmentProvider(`{"response":"ok","urgency_score":0.1,"confidence":0.9}`)
	proc, _, _ := newTestProcessor(provider, store, nil, triage.ProcessorHooks{})

	out, err := proc.Process(context.Background(), testInquiry("hello"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if out.Result.Degraded {
		t.Error("a guideline store failure must not degrade classification")
	}
	if strings.Contains(provider.reqs[0].System, "Relevant triage guidelines") {
		t.Error("system prompt should omit guideline context on store failure")
	}
}

func TestProcess_ThreadsConversationHistory(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		responses: []*LLMResponse{
			{
				Content:    []ContentBlock{assessmentBlock("c-1", `{"response":"How long has this been going on?","urgency_score":0.2,"confidence":0.6}`)},
				StopReason: StopToolUse,
				Usage:      Usage{InputTokens: 10, OutputTokens: 5},
			},
			{
				Content:    []ContentBlock{assessmentBlock("c-2", `{"response":"Thanks, noted.","urgency_score":0.2,"confidence":0.7}`)},
				StopReason: StopToolUse,
				Usage:      Usage{InputTokens: 10, OutputTokens: 5},
			},
		},
	}
	proc, _, _ := newTestProcessor(provider, nil, nil, triage.ProcessorHooks{})

	if _, err := proc.Process(context.Background(), testInquiry("my back has been sore")); err != nil {
		t.Fatalf("first Process() error = %v", err)
	}
	if _, err := proc.Process(context.Background(), testInquiry("it started three days ago")); err != nil {
		t.Fatalf("second Process() error = %v", err)
	}

	second := provider.reqs[1].Messages[0].Content[0].Text
	if !strings.Contains(second, "Recent conversation:") {
		t.Error("second prompt missing the history block")
	}
	if !strings.Contains(second, "my back has been sore") {
		t.Error("second prompt missing the first user turn")
	}
	if !strings.Contains(second, "How long has this been going on?") {
		t.Error("second prompt missing the assistant turn")
	}
	if !strings.Contains(second, "New message:\nit started three days ago") {
		t.Error("second prompt missing the new message")
	}
}

func TestNewProcessor_RequiresDeps(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for nil engine")
		}
	}()
	NewProcessor(nil, triage.NewClassifier(nil, nil), nil, history.New(time.Hour, nil), dispatch.New(dispatch.Hooks{}), nil, nil, triage.ProcessorHooks{})
}
