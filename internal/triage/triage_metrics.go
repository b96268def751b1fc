package triage

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	InquiriesTotal       *prometheus.CounterVec
	ProcessDuration      *prometheus.HistogramVec
	ClassificationsTotal *prometheus.CounterVec
	DegradedTotal        prometheus.Counter
	EnqueuesTotal        *prometheus.CounterVec
	PopsTotal            *prometheus.CounterVec
	RemovalsTotal        prometheus.Counter
	QueueWaitSeconds     prometheus.Histogram
	LLMCallsTotal        prometheus.Counter
	LLMTokensIn          prometheus.Counter
	LLMTokensOut         prometheus.Counter
	LLMDuration          prometheus.Histogram
	ToolCallsTotal       *prometheus.CounterVec
	ToolDuration         *prometheus.HistogramVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		InquiriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_inquiries_total",
			Help: "Total processed inquiries by channel and outcome.",
		}, []string{"channel", "outcome"}),
		ProcessDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "frontdesk_process_duration_seconds",
			Help:    "End-to-end inquiry processing time in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s .. ~128s
		}, []string{"outcome"}),
		ClassificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_classifications_total",
			Help: "Total classifications by assigned severity level.",
		}, []string{"severity"}),
		DegradedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "frontdesk_degraded_classifications_total",
			Help: "Classifications produced without an external signal.",
		}),
		EnqueuesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_queue_enqueues_total",
			Help: "Entries pushed to the dispatch queue by urgency lane.",
		}, []string{"urgency"}),
		PopsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_queue_pops_total",
			Help: "Entries served from the dispatch queue by urgency lane.",
		}, []string{"urgency"}),
		RemovalsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "frontdesk_queue_removals_total",
			Help: "Tombstone removals requested on the dispatch queue.",
		}),
		QueueWaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "frontdesk_queue_wait_seconds",
			Help:    "Wait time of served entries in seconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s .. ~68m
		}),
		LLMCallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "frontdesk_llm_calls_total",
			Help: "Total LLM provider calls.",
		}),
		LLMTokensIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "frontdesk_llm_tokens_input_total",
			Help: "Total LLM input tokens consumed.",
		}),
		LLMTokensOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "frontdesk_llm_tokens_output_total",
			Help: "Total LLM output tokens consumed.",
		}),
		LLMDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "frontdesk_llm_call_duration_seconds",
			Help:    "Duration of individual LLM calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s .. ~64s
		}),
		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_tool_calls_total",
			Help: "Total tool executions by tool name and status.",
		}, []string{"tool", "status"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "frontdesk_tool_duration_seconds",
			Help:    "Duration of tool executions in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8), // 0.1s .. ~12.8s
		}, []string{"tool"}),
	}

	reg.MustRegister(
		m.InquiriesTotal,
		m.ProcessDuration,
		m.ClassificationsTotal,
		m.DegradedTotal,
		m.EnqueuesTotal,
		m.PopsTotal,
		m.RemovalsTotal,
		m.QueueWaitSeconds,
		m.LLMCallsTotal,
		m.LLMTokensIn,
		m.LLMTokensOut,
		m.LLMDuration,
		m.ToolCallsTotal,
		m.ToolDuration,
	)

	return m
}

// ProcessorHooks are callbacks the agent processor fires as it works. The
// zero value disables them all.
type ProcessorHooks struct {
	OnLLMCall  func(inputTokens, outputTokens int, duration float64)
	OnToolCall func(name string, duration float64, isError bool)
	OnOutcome  func(e *OutcomeEvent)
}

// OutcomeEvent summarizes one fully processed inquiry.
type OutcomeEvent struct {
	Channel  string
	Outcome  string // classified, degraded, failed
	Severity Severity
	Duration float64
	Enqueued bool
}

// Hooks returns ProcessorHooks that increment the corresponding metrics.
func (m *Metrics) Hooks() ProcessorHooks {
	return ProcessorHooks{
		OnLLMCall: func(inputTokens, outputTokens int, duration float64) {
			m.LLMCallsTotal.Inc()
			m.LLMTokensIn.Add(float64(inputTokens))
			m.LLMTokensOut.Add(float64(outputTokens))
			m.LLMDuration.Observe(duration)
		},
		OnToolCall: func(name string, duration float64, isError bool) {
			status := "success"
			if isError {
				status = "error"
			}
			m.ToolCallsTotal.WithLabelValues(name, status).Inc()
			m.ToolDuration.WithLabelValues(name).Observe(duration)
		},
		OnOutcome: func(e *OutcomeEvent) {
			m.InquiriesTotal.WithLabelValues(e.Channel, e.Outcome).Inc()
			m.ProcessDuration.WithLabelValues(e.Outcome).Observe(e.Duration)
			if e.Severity.Valid() {
				m.ClassificationsTotal.WithLabelValues(strconv.Itoa(int(e.Severity))).Inc()
			}
			if e.Outcome == "degraded" {
				m.DegradedTotal.Inc()
			}
		},
	}
}
