package deskapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vaibhavuttam8/triade-agent/internal/dispatch"
	"github.com/vaibhavuttam8/triade-agent/internal/inquiry"
)

type queueStatusResponse struct {
	Lanes              map[string]int `json:"lanes"`
	Total              int            `json:"total"`
	Served             int            `json:"served"`
	AverageWaitSeconds float64        `json:"average_wait_seconds"`
}

type queueEntryResponse struct {
	ID             string               `json:"id"`
	SubjectID      string               `json:"user_id"`
	Urgency        string               `json:"urgency"`
	Severity       int                  `json:"severity"`
	Channel        string               `json:"channel,omitempty"`
	EnqueuedAt     time.Time            `json:"enqueued_at"`
	WaitSeconds    float64              `json:"wait_seconds"`
	ContextSummary string               `json:"context_summary,omitempty"`
	Patient        *inquiry.PatientInfo `json:"patient,omitempty"`
}

type contextResponse struct {
	SubjectID   string    `json:"user_id"`
	Records     int       `json:"records"`
	LastUpdated time.Time `json:"last_updated"`
	Summary     string    `json:"summary"`
}

func (a *API) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	st := a.queue.Status()

	lanes := make(map[string]int, len(st.Depths))
	for u, n := range st.Depths {
		lanes[u.String()] = n
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(queueStatusResponse{
		Lanes:              lanes,
		Total:              st.Total,
		Served:             st.Served,
		AverageWaitSeconds: st.AverageWait.Seconds(),
	})
}

func (a *API) handleQueueNext(w http.ResponseWriter, r *http.Request) {
	entry, ok := a.queue.Pop()
	if !ok {
		http.Error(w, `{"error":"queue empty"}`, http.StatusNotFound)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("frontdesk.subject.id", entry.SubjectID),
		attribute.String("frontdesk.queue.urgency", entry.Urgency.String()),
	)

	a.logger.Info(r.Context(), "queue entry served",
		"subject_id", entry.SubjectID,
		"urgency", entry.Urgency.String(),
		"wait_seconds", time.Since(entry.EnqueuedAt).Seconds())

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toQueueEntryResponse(entry))
}

func (a *API) handleQueueRemove(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("frontdesk.subject.id", subjectID))

	// Removal is a tombstone; removing an absent subject is not an error.
	a.queue.Remove(subjectID)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "removed",
		"user_id": subjectID,
	})
}

func (a *API) handleGetContext(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("frontdesk.subject.id", subjectID))

	cx, ok := a.contexts.Get(subjectID)
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(contextResponse{
		SubjectID:   cx.SubjectID,
		Records:     len(cx.Records),
		LastUpdated: cx.LastUpdated,
		Summary:     a.contexts.Summary(subjectID),
	})
}

func toQueueEntryResponse(e *dispatch.Entry) queueEntryResponse {
	return queueEntryResponse{
		ID:             e.ID,
		SubjectID:      e.SubjectID,
		Urgency:        e.Urgency.String(),
		Severity:       int(e.Severity),
		Channel:        string(e.Channel),
		EnqueuedAt:     e.EnqueuedAt,
		WaitSeconds:    time.Since(e.EnqueuedAt).Seconds(),
		ContextSummary: e.ContextSummary,
		Patient:        e.Patient,
	}
}
