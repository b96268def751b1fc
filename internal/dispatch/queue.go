// Package dispatch implements the priority queue that feeds patients needing
// human attention to staff: four urgency lanes drained most-urgent first,
// oldest first within a lane, with lazy tombstone removal.
package dispatch

import (
	"container/heap"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/vaibhavuttam8/triade-agent/internal/inquiry"
	"github.com/vaibhavuttam8/triade-agent/internal/triage"
)

// Entry is one queued subject. Entries are immutable once pushed; removal
// marks a tombstone in the queue's removed-set, it never mutates or deletes
// the heap node in place.
type Entry struct {
	ID             string
	SubjectID      string
	Urgency        triage.Urgency
	Severity       triage.Severity
	EnqueuedAt     time.Time
	Channel        inquiry.Channel
	ContextSummary string
	Patient        *inquiry.PatientInfo

	seq uint64 // insertion order, final tie-break for identical timestamps
}

// lane is a min-heap ordered by (EnqueuedAt, seq).
type lane []*Entry

func (l lane) Len() int { return len(l) }

func (l lane) Less(i, j int) bool {
	if !l[i].EnqueuedAt.Equal(l[j].EnqueuedAt) {
		return l[i].EnqueuedAt.Before(l[j].EnqueuedAt)
	}
	return l[i].seq < l[j].seq
}

func (l lane) Swap(i, j int) { l[i], l[j] = l[j], l[i] }

func (l *lane) Push(x any) { *l = append(*l, x.(*Entry)) }

func (l *lane) Pop() any {
	old := *l
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*l = old[:n-1]
	return e
}

// drainOrder is the fixed lane scan order for Pop and Peek.
var drainOrder = []triage.Urgency{
	triage.UrgencyCritical,
	triage.UrgencyHigh,
	triage.UrgencyMedium,
	triage.UrgencyLow,
}

// Hooks are optional callbacks fired after mutations. They run under the
// queue lock, so keep them cheap.
type Hooks struct {
	OnEnqueue func(u triage.Urgency)
	OnPop     func(u triage.Urgency, wait time.Duration)
	OnRemove  func(subjectID string)
}

// Queue is the priority dispatch queue. One mutex serializes every mutating
// operation, so a single instance is safe for concurrent use. All state is
// in-memory; a restart loses it.
type Queue struct {
	mu      sync.Mutex
	lanes   map[triage.Urgency]*lane
	removed map[string]struct{}
	seq     uint64
	hooks   Hooks

	served    int
	totalWait time.Duration
}

// New creates an empty queue. Pass the zero Hooks to disable callbacks.
func New(hooks Hooks) *Queue {
	lanes := make(map[triage.Urgency]*lane, len(drainOrder))
	for _, u := range drainOrder {
		l := make(lane, 0)
		lanes[u] = &l
	}
	return &Queue{
		lanes:   lanes,
		removed: make(map[string]struct{}),
		hooks:   hooks,
	}
}

// Enqueue pushes an entry onto its urgency lane, assigning ID, insertion
// sequence, and timestamp (when zero). Duplicate subjects are not deduplicated;
// an entry with an invalid urgency lands in the low lane. Never fails. The
// returned copy carries the assigned fields.
func (q *Queue) Enqueue(e Entry) Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = time.Now()
	}
	if !e.Urgency.Valid() {
		e.Urgency = triage.UrgencyLow
	}
	q.seq++
	e.seq = q.seq

	heap.Push(q.lanes[e.Urgency], &e)
	if q.hooks.OnEnqueue != nil {
		q.hooks.OnEnqueue(e.Urgency)
	}
	return e
}

// Remove tombstones every queued entry for the subject across all lanes; the
// entry's lane is not tracked, the removed-set is checked by all of them.
// Removing an absent subject is a no-op, not an error. Removal is permanent
// for the process lifetime: later enqueues for the same subject are dead on
// arrival.
func (q *Queue) Remove(subjectID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.removed[subjectID] = struct{}{}
	if q.hooks.OnRemove != nil {
		q.hooks.OnRemove(subjectID)
	}
}

// Pop serves the oldest live entry from the most urgent non-empty lane,
// discarding tombstoned heads for good along the way. Returns false when no
// live entry exists anywhere; an empty queue is a normal condition, not an
// error.
func (q *Queue) Pop() (*Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, u := range drainOrder {
		l := q.lanes[u]
		for l.Len() > 0 {
			if _, dead := q.removed[(*l)[0].SubjectID]; dead {
				heap.Pop(l)
				continue
			}
			e := heap.Pop(l).(*Entry)
			wait := time.Since(e.EnqueuedAt)
			if wait < 0 {
				wait = 0
			}
			q.served++
			q.totalWait += wait
			if q.hooks.OnPop != nil {
				q.hooks.OnPop(e.Urgency, wait)
			}
			out := *e
			return &out, true
		}
	}
	return nil, false
}

// Peek returns a copy of the entry Pop would serve next without consuming
// it. Tombstoned heads encountered during the scan are still discarded for
// good.
func (q *Queue) Peek() (*Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, u := range drainOrder {
		l := q.lanes[u]
		for l.Len() > 0 {
			if _, dead := q.removed[(*l)[0].SubjectID]; dead {
				heap.Pop(l)
				continue
			}
			out := *(*l)[0]
			return &out, true
		}
	}
	return nil, false
}

// Status is a point-in-time snapshot of the queue.
type Status struct {
	Depths      map[triage.Urgency]int
	Total       int
	Served      int
	AverageWait time.Duration
}

// Status derives live counts from actual lane contents minus tombstones.
// Counts are never kept as separate counters, so they cannot drift from
// what the heaps really hold. AverageWait covers served entries only.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := Status{Depths: make(map[triage.Urgency]int, len(drainOrder))}
	for _, u := range drainOrder {
		n := liveCount(q.lanes[u], q.removed)
		st.Depths[u] = n
		st.Total += n
	}
	st.Served = q.served
	if q.served > 0 {
		st.AverageWait = q.totalWait / time.Duration(q.served)
	}
	return st
}

// Depth reports the live count of a single lane.
func (q *Queue) Depth(u triage.Urgency) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return liveCount(q.lanes[u], q.removed)
}

func liveCount(l *lane, removed map[string]struct{}) int {
	n := 0
	for _, e := range *l {
		if _, dead := removed[e.SubjectID]; !dead {
			n++
		}
	}
	return n
}
