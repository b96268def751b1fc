// Package deskapi exposes the front desk over HTTP: inquiry intake, the
// staff dispatch queue, and conversation context lookups.
package deskapi

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/vaibhavuttam8/triade-agent/internal/agent"
	"github.com/vaibhavuttam8/triade-agent/internal/dispatch"
	"github.com/vaibhavuttam8/triade-agent/internal/history"
	"github.com/vaibhavuttam8/triade-agent/internal/inquiry"
)

// InquiryService defines the business operation deskapi needs for intake.
type InquiryService interface {
	Process(ctx context.Context, inq *inquiry.Inquiry) (*agent.Outcome, error)
}

// QueueService defines the dispatch queue operations staff clients use.
type QueueService interface {
	Status() dispatch.Status
	Pop() (*dispatch.Entry, bool)
	Remove(subjectID string)
}

// ContextService reads per-subject conversation state.
type ContextService interface {
	Get(subjectID string) (history.Context, bool)
	Summary(subjectID string) string
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger   log.Logger
	svc      InquiryService
	queue    QueueService
	contexts ContextService
}

// New creates a new API handler.
func New(logger log.Logger, svc InquiryService, queue QueueService, contexts ContextService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("inquiry service is required"))
	}
	if queue == nil {
		panic(xerrors.New("dispatch queue is required"))
	}
	if contexts == nil {
		panic(xerrors.New("context service is required"))
	}
	return &API{
		logger:   logger,
		svc:      svc,
		queue:    queue,
		contexts: contexts,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/inquiries", a.handleSubmitInquiry)
		r.Post("/chat", a.handleChat)
		r.Route("/queue", func(r chi.Router) {
			r.Get("/status", a.handleQueueStatus)
			r.Post("/next", a.handleQueueNext)
			r.Delete("/{subjectID}", a.handleQueueRemove)
		})
		r.Get("/context/{subjectID}", a.handleGetContext)
	})
}
