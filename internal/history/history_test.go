package history

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vaibhavuttam8/triade-agent/internal/inquiry"
)

func TestAppendAndGet(t *testing.T) {
	t.Parallel()

	m := New(0, nil)
	m.AppendUser("u1", "my head hurts", inquiry.ChannelChat)
	m.AppendAssistant("u1", "how long has this been going on?", 0.3, 0.8)

	c, ok := m.Get("u1")
	if !ok {
		t.Fatal("Get() = false after appends")
	}
	if len(c.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(c.Records))
	}

	user, assistant := c.Records[0], c.Records[1]
	if user.Role != RoleUser || user.Content != "my head hurts" || user.Channel != inquiry.ChannelChat {
		t.Errorf("user record = %+v", user)
	}
	if assistant.Role != RoleAssistant || assistant.UrgencyScore != 0.3 || assistant.Confidence != 0.8 {
		t.Errorf("assistant record = %+v", assistant)
	}
	if c.LastUpdated.IsZero() {
		t.Error("LastUpdated is zero")
	}
}

func TestGetDoesNotCreate(t *testing.T) {
	t.Parallel()

	m := New(0, nil)
	if _, ok := m.Get("ghost"); ok {
		t.Error("Get() = true for unknown subject")
	}
	if m.Count() != 0 {
		t.Errorf("Count() = %d after read, want 0", m.Count())
	}
}

func TestGetReturnsCopies(t *testing.T) {
	t.Parallel()

	m := New(0, nil)
	m.AppendUser("u1", "original", inquiry.ChannelPhone)

	c, _ := m.Get("u1")
	c.Records[0].Content = "tampered"

	again, _ := m.Get("u1")
	if again.Records[0].Content != "original" {
		t.Error("mutation through Get copy leaked into the manager")
	}
}

func TestRecentWindow(t *testing.T) {
	t.Parallel()

	m := New(0, nil)
	for _, msg := range []string{"one", "two", "three", "four", "five", "six", "seven"} {
		m.AppendUser("u1", msg, inquiry.ChannelChat)
	}

	recs := m.Recent("u1", 5)
	if len(recs) != 5 {
		t.Fatalf("Recent(5) = %d records, want 5", len(recs))
	}
	if recs[0].Content != "three" || recs[4].Content != "seven" {
		t.Errorf("Recent(5) window = %q .. %q, want three .. seven", recs[0].Content, recs[4].Content)
	}
	if got := m.Recent("u1", 0); got != nil {
		t.Errorf("Recent(0) = %v, want nil", got)
	}
	if got := m.Recent("ghost", 5); got != nil {
		t.Errorf("Recent(ghost) = %v, want nil", got)
	}
}

func TestSummaryFormat(t *testing.T) {
	t.Parallel()

	m := New(0, nil)
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	m.append("u1", Record{Role: RoleUser, Content: "first message", Timestamp: ts})
	m.append("u1", Record{Role: RoleAssistant, Content: "first reply", Timestamp: ts.Add(time.Minute)})
	m.append("u1", Record{Role: RoleUser, Content: "second message", Timestamp: ts.Add(2 * time.Minute)})
	m.append("u1", Record{Role: RoleUser, Content: strings.Repeat("x", 150), Timestamp: ts.Add(3 * time.Minute)})

	got := m.Summary("u1")
	lines := strings.Split(got, "\n")
	if len(lines) != 3 {
		t.Fatalf("summary has %d lines, want 3:\n%s", len(lines), got)
	}
	if lines[0] != "[09:27:53] assistant: first reply..." {
		t.Errorf("line 0 = %q", lines[0])
	}
	if lines[1] != "[09:28:53] user: second message..." {
		t.Errorf("line 1 = %q", lines[1])
	}
	want2 := "[09:29:53] user: " + strings.Repeat("x", 100) + "..."
	if lines[2] != want2 {
		t.Errorf("line 2 = %q, want %q", lines[2], want2)
	}
}

func TestSummaryEmpty(t *testing.T) {
	t.Parallel()

	m := New(0, nil)
	if got := m.Summary("ghost"); got != "No conversation history" {
		t.Errorf("Summary(ghost) = %q", got)
	}
}

func TestSweepExpiresIdleContexts(t *testing.T) {
	t.Parallel()

	m := New(time.Hour, nil)
	t0 := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	m.append("old", Record{Role: RoleUser, Content: "hello", Timestamp: t0})
	m.append("fresh", Record{Role: RoleUser, Content: "hello", Timestamp: t0.Add(30 * time.Minute)})

	// exactly at the TTL boundary nothing expires
	if n := m.sweepAt(t0.Add(time.Hour)); n != 0 {
		t.Errorf("sweep at boundary removed %d, want 0", n)
	}
	if n := m.sweepAt(t0.Add(time.Hour + time.Second)); n != 1 {
		t.Errorf("sweep past boundary removed %d, want 1", n)
	}
	if _, ok := m.Get("old"); ok {
		t.Error("expired context still readable")
	}
	if _, ok := m.Get("fresh"); !ok {
		t.Error("fresh context was swept")
	}
}

func TestDefaultTTL(t *testing.T) {
	t.Parallel()

	m := New(0, nil)
	if m.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", m.ttl, DefaultTTL)
	}
}

func TestConcurrentAppendsAndSweeps(t *testing.T) {
	t.Parallel()

	m := New(time.Hour, nil)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				m.AppendUser("subject", "ping", inquiry.ChannelChat)
				m.Summary("subject")
				m.Sweep()
			}
		}(w)
	}
	wg.Wait()

	c, ok := m.Get("subject")
	if !ok || len(c.Records) != 400 {
		t.Errorf("records = %d (ok=%v), want 400", len(c.Records), ok)
	}
}
