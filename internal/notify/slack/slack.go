// Package slack announces urgent queue arrivals to Slack via incoming
// webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/vaibhavuttam8/triade-agent/internal/dispatch"
	"github.com/vaibhavuttam8/triade-agent/internal/triage"
)

const (
	maxReasoningLen = 3000
	httpTimeout     = 10 * time.Second
)

// Notifier posts urgent queue entries to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
	status     func() dispatch.Status
}

// New creates a new Slack notifier. If webhookURL is empty, Send is a no-op.
// status is optional; when set, messages include the current queue depth.
func New(webhookURL string, logger log.Logger, status func() dispatch.Status) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
		status:     status,
	}
}

// UrgentEnqueued delivers the notification and logs delivery failures.
// Notification problems never affect inquiry handling.
func (n *Notifier) UrgentEnqueued(ctx context.Context, e dispatch.Entry, res *triage.Result) {
	if err := n.Send(ctx, e, res); err != nil {
		n.logger.Error(ctx, err, "slack notification failed",
			"subject_id", e.SubjectID,
			"urgency", e.Urgency.String())
	}
}

// Send posts a queue entry to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Send(ctx context.Context, e dispatch.Entry, res *triage.Result) error {
	if n.webhookURL == "" {
		return nil
	}

	var depth int
	if n.status != nil {
		depth = n.status().Total
	}
	msg := buildMessage(e, res, depth)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(e dispatch.Entry, res *triage.Result, depth int) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(e, res),
			{"type": "divider"},
			fieldsBlock(e, res, depth),
			{"type": "divider"},
			reasoningBlock(res),
			{"type": "divider"},
			contextBlock(e),
		},
	}
}

func headerBlock(e dispatch.Entry, res *triage.Result) map[string]any {
	emoji := severityEmoji(res.Severity)
	text := fmt.Sprintf("%s Urgent inquiry queued: %s", emoji, e.SubjectID)

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(e dispatch.Entry, res *triage.Result, depth int) map[string]any {
	keywords := "none"
	if len(res.CriticalKeywords) > 0 {
		keywords = strings.Join(res.CriticalKeywords, ", ")
	}

	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Severity:* ESI-%d (%s)", int(res.Severity), res.Severity),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Urgency:* %s", e.Urgency),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Channel:* %s", e.Channel),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Queue depth:* %d", depth),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Action:* %s", res.RecommendedAction),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Keywords:* %s", keywords),
		},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func reasoningBlock(res *triage.Result) map[string]any {
	text := truncate(res.Reasoning, maxReasoningLen)
	if text == "" {
		text = "_No reasoning recorded._"
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Reasoning*\n\n%s", text),
		},
	}
}

func contextBlock(e dispatch.Entry) map[string]any {
	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("frontdesk • entry %s • %s", e.ID, e.EnqueuedAt.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func severityEmoji(s triage.Severity) string {
	switch s {
	case triage.SeverityResuscitation:
		return "\U0001f534" // red circle
	case triage.SeverityEmergent:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
