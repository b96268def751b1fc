package deskapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"

	"github.com/vaibhavuttam8/triade-agent/internal/agent"
	"github.com/vaibhavuttam8/triade-agent/internal/dispatch"
	"github.com/vaibhavuttam8/triade-agent/internal/history"
	"github.com/vaibhavuttam8/triade-agent/internal/inquiry"
	"github.com/vaibhavuttam8/triade-agent/internal/triage"
)

// fakeInquiryService returns a canned outcome and records the last inquiry.
type fakeInquiryService struct {
	mu   sync.Mutex
	out  *agent.Outcome
	err  error
	last *inquiry.Inquiry
}

func (f *fakeInquiryService) Process(_ context.Context, inq *inquiry.Inquiry) (*agent.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = inq
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return f.out, nil
	}
	return &agent.Outcome{
		Reply: "thanks for reaching out",
		Result: &triage.Result{
			Severity:          triage.SeverityNonUrgent,
			Urgency:           triage.UrgencyLow,
			RecommendedAction: "Provide self-care instructions and resources",
		},
	}, nil
}

func (f *fakeInquiryService) lastInquiry() *inquiry.Inquiry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func newTestAPI(t *testing.T) (*API, *fakeInquiryService, *dispatch.Queue, *history.Manager) {
	t.Helper()
	svc := &fakeInquiryService{}
	queue := dispatch.New(dispatch.Hooks{})
	hist := history.New(time.Hour, nil)
	api := New(nil, svc, queue, hist)
	return api, svc, queue, hist
}

func newTestRouter(t *testing.T) (chi.Router, *fakeInquiryService, *dispatch.Queue, *history.Manager) {
	t.Helper()
	api, svc, queue, hist := newTestAPI(t)
	r := chi.NewRouter()
	api.RegisterRoutes(r)
	return r, svc, queue, hist
}

func postJSON(t *testing.T, r chi.Router, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

//  New / constructor

func TestNew_NilLogger(t *testing.T) {
	t.Parallel()

	api, _, _, _ := newTestAPI(t)
	if api.logger == nil {
		t.Fatal("New(nil, ...) left logger nil; expected Nop logger")
	}
}

func TestNew_WithLogger(t *testing.T) {
	t.Parallel()

	api := New(log.Nop(), &fakeInquiryService{}, dispatch.New(dispatch.Hooks{}), history.New(time.Hour, nil))
	if api.logger == nil {
		t.Fatal("New(logger, ...) left logger nil")
	}
}

func TestNew_NilService_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("New(nil, nil, ...) did not panic; expected panic for nil service")
		}
	}()
	New(nil, nil, dispatch.New(dispatch.Hooks{}), history.New(time.Hour, nil))
}

// Routing

func TestRegisterRoutes_Inquiries(t *testing.T) {
	t.Parallel()

	r, _, _, _ := newTestRouter(t)

	tests := []struct {
		name       string
		method     string
		body       string
		wantStatus int
	}{
		{"POST valid inquiry", http.MethodPost, `{"user_id":"u1","message":"hello"}`, http.StatusOK},
		{"POST invalid JSON", http.MethodPost, `{bad`, http.StatusBadRequest},
		{"GET not allowed", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"PUT not allowed", http.MethodPut, "", http.StatusMethodNotAllowed},
		{"DELETE not allowed", http.MethodDelete, "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tt.method, "/api/v1/inquiries", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("%s /api/v1/inquiries = %d, want %d", tt.method, rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRegisterRoutes_NotFound(t *testing.T) {
	t.Parallel()

	r, _, _, _ := newTestRouter(t)

	paths := []string{
		"/",
		"/api/v1",
		"/api/v2/inquiries",
		"/api/v1/queue",
		"/api/v1/context",
		"/api/v1/unknown",
	}

	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != http.StatusNotFound {
				t.Errorf("GET %s = %d, want %d", path, rec.Code, http.StatusNotFound)
			}
		})
	}
}

// Inquiry intake

func TestHandleSubmitInquiry_Escalated(t *testing.T) {
	t.Parallel()

	r, svc, _, _ := newTestRouter(t)
	svc.out = &agent.Outcome{
		Reply: "Please call 911 now.",
		Result: &triage.Result{
			Severity:               triage.SeverityResuscitation,
			Urgency:                triage.UrgencyCritical,
			RecommendedAction:      "Immediate transfer to emergency response team",
			RequiresHumanAttention: true,
			CriticalKeywords:       []string{"chest pain"},
		},
		Entry: &dispatch.Entry{
			ID:         "01TESTENTRY",
			SubjectID:  "u1",
			Urgency:    triage.UrgencyCritical,
			EnqueuedAt: time.Now(),
		},
		SuggestedActions: []string{"call 911"},
	}

	rec := postJSON(t, r, "/api/v1/inquiries", `{"user_id":"u1","channel":"phone","message":"I am having chest pain"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp inquiryResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Reply != "Please call 911 now." {
		t.Errorf("reply = %q", resp.Reply)
	}
	if resp.Triage == nil || resp.Triage.Severity != triage.SeverityResuscitation {
		t.Errorf("triage = %+v, want severity 1", resp.Triage)
	}
	if !resp.Triage.RequiresHumanAttention {
		t.Error("expected requires_human_attention")
	}
	if resp.Queue == nil || resp.Queue.EntryID != "01TESTENTRY" || resp.Queue.Urgency != "critical" {
		t.Errorf("queue info = %+v", resp.Queue)
	}
	if len(resp.SuggestedActions) != 1 || resp.SuggestedActions[0] != "call 911" {
		t.Errorf("suggested actions = %v", resp.SuggestedActions)
	}

	if got := svc.lastInquiry(); got == nil || got.Channel != inquiry.ChannelPhone {
		t.Errorf("service saw inquiry %+v, want phone channel", got)
	}
}

func TestHandleSubmitInquiry_DefaultsChannel(t *testing.T) {
	t.Parallel()

	r, svc, _, _ := newTestRouter(t)

	rec := postJSON(t, r, "/api/v1/inquiries", `{"user_id":"u2","message":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	got := svc.lastInquiry()
	if got == nil {
		t.Fatal("service was not called")
	}
	if got.Channel != inquiry.ChannelChat {
		t.Errorf("channel = %q, want chat default", got.Channel)
	}
	if got.Timestamp.IsZero() {
		t.Error("expected a stamped timestamp")
	}
}

func TestHandleSubmitInquiry_ValidationError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"missing message", `{"user_id":"u1"}`},
		{"missing user id", `{"message":"hello"}`},
		{"unknown channel", `{"user_id":"u1","channel":"fax","message":"hello"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r, svc, _, _ := newTestRouter(t)
			rec := postJSON(t, r, "/api/v1/inquiries", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			if svc.lastInquiry() != nil {
				t.Error("service must not be called for invalid input")
			}
		})
	}
}

func TestHandleSubmitInquiry_ServiceError(t *testing.T) {
	t.Parallel()

	r, svc, _, _ := newTestRouter(t)
	svc.err = errors.New("pipeline exploded")

	rec := postJSON(t, r, "/api/v1/inquiries", `{"user_id":"u1","message":"hello"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if !strings.Contains(rec.Body.String(), "internal error") {
		t.Errorf("body = %q, want internal error", rec.Body.String())
	}
}

func TestHandleChat_ReplyOnly(t *testing.T) {
	t.Parallel()

	r, _, _, _ := newTestRouter(t)

	rec := postJSON(t, r, "/api/v1/chat", `{"user_id":"u1","message":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["reply"] != "thanks for reaching out" {
		t.Errorf("reply = %v", resp["reply"])
	}
	if _, ok := resp["triage"]; ok {
		t.Error("chat response must not carry the triage block")
	}
}

// Queue endpoints

func TestHandleQueueStatus(t *testing.T) {
	t.Parallel()

	r, _, queue, _ := newTestRouter(t)
	queue.Enqueue(dispatch.Entry{SubjectID: "a", Urgency: triage.UrgencyCritical, Severity: 1})
	queue.Enqueue(dispatch.Entry{SubjectID: "b", Urgency: triage.UrgencyLow, Severity: 5})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/queue/status", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp queueStatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2", resp.Total)
	}
	if resp.Lanes["critical"] != 1 || resp.Lanes["low"] != 1 {
		t.Errorf("lanes = %v", resp.Lanes)
	}
	if resp.Served != 0 {
		t.Errorf("served = %d, want 0", resp.Served)
	}
}

func TestHandleQueueNext_PopsByPriority(t *testing.T) {
	t.Parallel()

	r, _, queue, _ := newTestRouter(t)
	queue.Enqueue(dispatch.Entry{SubjectID: "routine", Urgency: triage.UrgencyLow, Severity: 5})
	queue.Enqueue(dispatch.Entry{SubjectID: "critical", Urgency: triage.UrgencyCritical, Severity: 1})

	rec := postJSON(t, r, "/api/v1/queue/next", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var first queueEntryResponse
	if err := json.NewDecoder(rec.Body).Decode(&first); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if first.SubjectID != "critical" || first.Urgency != "critical" {
		t.Errorf("first pop = %+v, want the critical entry", first)
	}
	if first.WaitSeconds < 0 {
		t.Errorf("wait seconds = %v, want non-negative", first.WaitSeconds)
	}

	rec = postJSON(t, r, "/api/v1/queue/next", "")
	var second queueEntryResponse
	if err := json.NewDecoder(rec.Body).Decode(&second); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if second.SubjectID != "routine" {
		t.Errorf("second pop = %+v, want the routine entry", second)
	}

	rec = postJSON(t, r, "/api/v1/queue/next", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d on empty queue", rec.Code, http.StatusNotFound)
	}
	if !strings.Contains(rec.Body.String(), "queue empty") {
		t.Errorf("body = %q, want queue empty", rec.Body.String())
	}
}

func TestHandleQueueRemove_Tombstones(t *testing.T) {
	t.Parallel()

	r, _, queue, _ := newTestRouter(t)
	queue.Enqueue(dispatch.Entry{SubjectID: "gone", Urgency: triage.UrgencyHigh, Severity: 2})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/queue/gone", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	rec = postJSON(t, r, "/api/v1/queue/next", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d after tombstoning the only entry", rec.Code, http.StatusNotFound)
	}
}

func TestHandleQueueRemove_AbsentSubject(t *testing.T) {
	t.Parallel()

	r, _, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/queue/nobody", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d; removing an absent subject is normal", rec.Code, http.StatusOK)
	}
}

// Context lookup

func TestHandleGetContext(t *testing.T) {
	t.Parallel()

	r, _, _, hist := newTestRouter(t)
	hist.AppendUser("u9", "my throat hurts", inquiry.ChannelChat)
	hist.AppendAssistant("u9", "How long has it hurt?", 0.3, 0.8)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/context/u9", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp contextResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.SubjectID != "u9" {
		t.Errorf("user_id = %q, want u9", resp.SubjectID)
	}
	if resp.Records != 2 {
		t.Errorf("records = %d, want 2", resp.Records)
	}
	if resp.LastUpdated.IsZero() {
		t.Error("expected a last_updated timestamp")
	}
	if !strings.Contains(resp.Summary, "my throat hurts") {
		t.Errorf("summary = %q, want it to include the conversation", resp.Summary)
	}
}

func TestHandleGetContext_NotFound(t *testing.T) {
	t.Parallel()

	r, _, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/context/stranger", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if !strings.Contains(rec.Body.String(), "not found") {
		t.Errorf("body = %q, want not found", rec.Body.String())
	}
}

// Fuzz

func FuzzInquirySubmission(f *testing.F) {
	svc := &fakeInquiryService{}
	api := New(nil, svc, dispatch.New(dispatch.Hooks{}), history.New(time.Hour, nil))
	r := chi.NewRouter()
	api.RegisterRoutes(r)

	seeds := []struct {
		body        []byte
		contentType string
	}{
		{nil, ""},
		{[]byte(""), "application/json"},
		{[]byte("{}"), "application/json"},
		{[]byte(`{"user_id":"u1","message":"hello"}`), "application/json"},
		{[]byte(`{"user_id":"u1","channel":"phone","message":"chest pain","patient":{"full_name":"A B"}}`), "application/json"},
		{[]byte("{invalid json"), "application/json"},
		{[]byte("\x00\x01\x02\xff\xfe"), "application/octet-stream"},
		{[]byte("<xml>not json</xml>"), "text/xml"},
		{[]byte(strings.Repeat("a", 10000)), "text/plain"},
	}
	for _, s := range seeds {
		f.Add(s.body, s.contentType)
	}

	f.Fuzz(func(t *testing.T, body []byte, contentType string) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/inquiries", strings.NewReader(string(body)))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		rec := httptest.NewRecorder()

		// Must not panic
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK && rec.Code != http.StatusBadRequest {
			t.Errorf("POST /api/v1/inquiries with body len=%d content-type=%q = %d, want 200 or 400",
				len(body), contentType, rec.Code)
		}
	})
}
