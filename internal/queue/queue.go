// Package queue holds inbound display-text requests until the display
// arbiter can show them.
//
// The queue has a fixed capacity and never rejects: when full, it evicts the
// oldest entry of the lowest priority among the queued entries and the
// arrival. An arrival that ranks below everything queued is itself evicted. Dequeue returns the
// highest-priority, earliest-arrived entry whose TTL has not elapsed;
// expired entries are discarded unshown.
package queue

import (
	"errors"
	"sync"
	"time"
	"unicode/utf8"
)

// ErrOverflow is reported (never returned to producers) when an entry is evicted.
var ErrOverflow = errors.New("queue: capacity exceeded")

// Message is one pending text display request.
type Message struct {
	Text     string
	TTL      time.Duration // 0 means the queue default
	Priority int           // 0 is normal; higher wins
	Arrived  time.Time
	Seq      uint64
}

// Expired reports whether the message's TTL has elapsed at now.
func (m Message) Expired(now time.Time) bool {
	return m.TTL > 0 && !now.Before(m.Arrived.Add(m.TTL))
}

// Queue is a bounded priority queue with TTL. Single writer, single reader,
// guarded by a mutex so diagnostics can read it too.
type Queue struct {
	mu         sync.Mutex
	items      []Message
	capacity   int
	maxTextLen int
	defaultTTL time.Duration
	seq        uint64
}

// New creates a queue.
//
// Parameters:
//   - capacity: Fixed number of slots (at least 1)
//   - maxTextLen: Maximum text length in bytes; longer text is truncated
//   - defaultTTL: TTL applied to messages that carry none
func New(capacity, maxTextLen int, defaultTTL time.Duration) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		items:      make([]Message, 0, capacity),
		capacity:   capacity,
		maxTextLen: maxTextLen,
		defaultTTL: defaultTTL,
	}
}

// EnqueueResult reports what an Enqueue displaced.
type EnqueueResult struct {
	Accepted Message
	Evicted  *Message // entry dropped to make room, if any
	Dropped  bool     // Evicted is the arrival itself; Accepted was not stored
	Expired  int      // expired entries purged first
}

// Enqueue adds m, truncating its text and stamping arrival order. It never
// rejects: expired entries are purged first, then, if the queue is still
// full, the oldest entry of the lowest priority among the queued entries and
// m is evicted.
func (q *Queue) Enqueue(m Message, now time.Time) EnqueueResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	m.Text = Truncate(m.Text, q.maxTextLen)
	if m.TTL <= 0 {
		m.TTL = q.defaultTTL
	}
	if m.Arrived.IsZero() {
		m.Arrived = now
	}
	q.seq++
	m.Seq = q.seq

	res := EnqueueResult{Expired: q.purgeLocked(now)}

	res.Accepted = m
	if len(q.items) == q.capacity {
		i := q.victimLocked()
		victim := q.items[i]
		// m has the highest sequence, so it loses only on strictly lower priority.
		if m.Priority < victim.Priority {
			res.Evicted = &m
			res.Dropped = true
			return res
		}
		res.Evicted = &victim
		q.removeLocked(i)
	}

	q.items = append(q.items, m)
	return res
}

// Next removes and returns the entry to show next, discarding expired ones.
func (q *Queue) Next(now time.Time) (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.purgeLocked(now)
	i := q.bestLocked()
	if i < 0 {
		return Message{}, false
	}
	m := q.items[i]
	q.removeLocked(i)
	return m, true
}

// Peek returns the entry Next would return without removing it.
func (q *Queue) Peek(now time.Time) (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.purgeLocked(now)
	i := q.bestLocked()
	if i < 0 {
		return Message{}, false
	}
	return q.items[i], true
}

// Len returns the number of entries, expired or not.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Capacity returns the fixed capacity.
func (q *Queue) Capacity() int {
	return q.capacity
}

func (q *Queue) purgeLocked(now time.Time) int {
	kept := q.items[:0]
	for _, m := range q.items {
		if !m.Expired(now) {
			kept = append(kept, m)
		}
	}
	dropped := len(q.items) - len(kept)
	clear(q.items[len(kept):])
	q.items = kept
	return dropped
}

// bestLocked returns the index of the highest-priority, lowest-sequence entry.
func (q *Queue) bestLocked() int {
	best := -1
	for i, m := range q.items {
		if best < 0 || m.Priority > q.items[best].Priority ||
			(m.Priority == q.items[best].Priority && m.Seq < q.items[best].Seq) {
			best = i
		}
	}
	return best
}

// victimLocked returns the index of the lowest-priority, lowest-sequence entry.
func (q *Queue) victimLocked() int {
	victim := 0
	for i, m := range q.items {
		v := q.items[victim]
		if m.Priority < v.Priority || (m.Priority == v.Priority && m.Seq < v.Seq) {
			victim = i
		}
	}
	return victim
}

func (q *Queue) removeLocked(i int) {
	copy(q.items[i:], q.items[i+1:])
	q.items[len(q.items)-1] = Message{}
	q.items = q.items[:len(q.items)-1]
}

// Truncate shortens s to at most max bytes without splitting a UTF-8 sequence.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
