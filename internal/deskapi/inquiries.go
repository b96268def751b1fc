package deskapi

import (
	"encoding/json"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vaibhavuttam8/triade-agent/internal/agent"
	"github.com/vaibhavuttam8/triade-agent/internal/inquiry"
	"github.com/vaibhavuttam8/triade-agent/internal/triage"
)

type inquiryResponse struct {
	Reply            string         `json:"reply"`
	Triage           *triage.Result `json:"triage"`
	SuggestedActions []string       `json:"suggested_actions,omitempty"`
	Queue            *queueInfo     `json:"queue,omitempty"`
}

type queueInfo struct {
	EntryID    string    `json:"entry_id"`
	Urgency    string    `json:"urgency"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

func (a *API) handleSubmitInquiry(w http.ResponseWriter, r *http.Request) {
	inq, ok := a.decodeInquiry(w, r)
	if !ok {
		return
	}

	out, ok := a.process(w, r, inq)
	if !ok {
		return
	}

	resp := inquiryResponse{
		Reply:            out.Reply,
		Triage:           out.Result,
		SuggestedActions: out.SuggestedActions,
	}
	if out.Entry != nil {
		resp.Queue = &queueInfo{
			EntryID:    out.Entry.ID,
			Urgency:    out.Entry.Urgency.String(),
			EnqueuedAt: out.Entry.EnqueuedAt,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleChat runs the same pipeline as inquiry intake but answers with the
// reply alone, for conversational clients that poll queue state separately.
func (a *API) handleChat(w http.ResponseWriter, r *http.Request) {
	inq, ok := a.decodeInquiry(w, r)
	if !ok {
		return
	}

	out, ok := a.process(w, r, inq)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(chatResponse{Reply: out.Reply})
}

func (a *API) decodeInquiry(w http.ResponseWriter, r *http.Request) (*inquiry.Inquiry, bool) {
	var inq inquiry.Inquiry
	if err := json.NewDecoder(r.Body).Decode(&inq); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return nil, false
	}
	if inq.Channel == "" {
		inq.Channel = inquiry.ChannelChat
	}
	if inq.Timestamp.IsZero() {
		inq.Timestamp = time.Now()
	}
	if err := inq.Validate(); err != nil {
		a.logger.Info(r.Context(), "rejected inquiry", "reason", err.Error())
		http.Error(w, `{"error":"invalid inquiry"}`, http.StatusBadRequest)
		return nil, false
	}
	return &inq, true
}

func (a *API) process(w http.ResponseWriter, r *http.Request, inq *inquiry.Inquiry) (*agent.Outcome, bool) {
	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("frontdesk.subject.id", inq.SubjectID),
		attribute.String("frontdesk.inquiry.channel", string(inq.Channel)),
	)

	out, err := a.svc.Process(r.Context(), inq)
	if err != nil {
		a.logger.Error(r.Context(), err, "inquiry processing failed", "subject_id", inq.SubjectID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return nil, false
	}

	span.SetAttributes(
		attribute.Int("frontdesk.triage.severity", int(out.Result.Severity)),
		attribute.Bool("frontdesk.triage.enqueued", out.Entry != nil),
	)
	return out, true
}
