// Package history keeps per-subject conversation context in memory, with a
// TTL-based sweep for stale subjects. One RWMutex serializes the sweep with
// the append/read paths, so expiry cannot race an in-flight exchange for the
// same subject.
package history

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/vaibhavuttam8/triade-agent/internal/inquiry"
)

// DefaultTTL is how long an idle conversation survives before the sweep
// drops it.
const DefaultTTL = 24 * time.Hour

// Role tags who produced a conversation record.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Record is one conversation turn. Role-specific fields are explicit rather
// than an open-ended map: Channel is set on user turns, UrgencyScore and
// Confidence on assistant turns.
type Record struct {
	Role         Role
	Content      string
	Timestamp    time.Time
	Channel      inquiry.Channel
	UrgencyScore float64
	Confidence   float64
}

// Context is one subject's conversation state.
type Context struct {
	SubjectID   string
	Records     []Record
	LastUpdated time.Time
}

// Manager owns all conversation contexts.
type Manager struct {
	mu       sync.RWMutex
	ttl      time.Duration
	contexts map[string]*Context
	logger   log.Logger
}

// New creates a manager. A non-positive ttl selects DefaultTTL; a nil logger
// is replaced with a nop.
func New(ttl time.Duration, logger log.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Manager{
		ttl:      ttl,
		contexts: make(map[string]*Context),
		logger:   logger,
	}
}

// AppendUser records an inbound patient message, creating the subject's
// context on first contact.
func (m *Manager) AppendUser(subjectID, content string, ch inquiry.Channel) {
	m.append(subjectID, Record{
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now(),
		Channel:   ch,
	})
}

// AppendAssistant records the agent's reply with the scores it carried.
func (m *Manager) AppendAssistant(subjectID, content string, urgencyScore, confidence float64) {
	m.append(subjectID, Record{
		Role:         RoleAssistant,
		Content:      content,
		Timestamp:    time.Now(),
		UrgencyScore: urgencyScore,
		Confidence:   confidence,
	})
}

func (m *Manager) append(subjectID string, rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contexts[subjectID]
	if !ok {
		c = &Context{SubjectID: subjectID}
		m.contexts[subjectID] = c
	}
	c.Records = append(c.Records, rec)
	c.LastUpdated = rec.Timestamp
}

// Get returns a copy of the subject's context. Reading never creates state.
func (m *Manager) Get(subjectID string) (Context, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.contexts[subjectID]
	if !ok {
		return Context{}, false
	}
	out := *c
	out.Records = append([]Record(nil), c.Records...)
	return out, true
}

// Recent returns copies of the subject's last n records, oldest first.
func (m *Manager) Recent(subjectID string, n int) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.contexts[subjectID]
	if !ok || n <= 0 {
		return nil
	}
	recs := c.Records
	if len(recs) > n {
		recs = recs[len(recs)-n:]
	}
	return append([]Record(nil), recs...)
}

// Summary renders the subject's last three records, one line each, for queue
// entries and the context endpoint.
func (m *Manager) Summary(subjectID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.contexts[subjectID]
	if !ok || len(c.Records) == 0 {
		return "No conversation history"
	}

	recs := c.Records
	if len(recs) > 3 {
		recs = recs[len(recs)-3:]
	}
	lines := make([]string, 0, len(recs))
	for _, r := range recs {
		content := r.Content
		if runes := []rune(content); len(runes) > 100 {
			content = string(runes[:100])
		}
		lines = append(lines, "["+r.Timestamp.Format("15:04:05")+"] "+string(r.Role)+": "+content+"...")
	}
	return strings.Join(lines, "\n")
}

// Count reports how many subjects currently hold context.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.contexts)
}

// Sweep drops every context idle past the TTL and reports how many went.
func (m *Manager) Sweep() int {
	return m.sweepAt(time.Now())
}

func (m *Manager) sweepAt(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, c := range m.contexts {
		if now.Sub(c.LastUpdated) > m.ttl {
			delete(m.contexts, id)
			removed++
		}
	}
	return removed
}

// Run sweeps on the given interval until ctx is canceled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Info(ctx, "expired conversation contexts",
					"count", n,
					"remaining", m.Count(),
				)
			}
		}
	}
}
