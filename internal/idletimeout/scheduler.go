// Package idletimeout implements the bucketed idle-timeout scheduler
// (component C3): sockets sharing a timeout value are grouped onto one
// intrusive circular doubly-linked list driven by a single repeating
// timer, the libev "smart timeouts" idiom referenced by spec.md §4.3.
// With N connections and M distinct timeout values this is O(M) timers
// instead of O(N).
package idletimeout

import (
	"sync"
	"time"

	"github.com/streamkit/netio/internal/ioloop"
)

// Entry is the intrusive linkage a Stream embeds. prev == next == the
// Entry itself means "not linked" (spec.md §9's self-referential
// sentinel-of-one), distinguished from "sole member of a list" because
// the bucket's own sentinel node sits between prev and next in that case.
type Entry struct {
	prev, next *Entry
	bucket     *bucket
	idleStart  time.Time

	// OnTimeout fires (via the scheduler's owning loop) when this entry's
	// bucket scan finds it expired. The Stream sets this once, when it is
	// constructed.
	OnTimeout func()
}

// NewEntry returns an Entry in the unlinked state (prev == next == itself).
func NewEntry() *Entry {
	e := &Entry{}
	e.prev, e.next = e, e
	return e
}

func (e *Entry) linked() bool { return e.prev != e }

// bucket is the sentinel-headed circular list for one rounded timeout
// value, plus the one repeating timer driving it.
type bucket struct {
	sentinel Entry
	ms       time.Duration
	timer    *ioloop.Timer
	sched    *Scheduler
}

func newBucket(sched *Scheduler, ms time.Duration) *bucket {
	b := &bucket{ms: ms, sched: sched}
	b.sentinel.prev = &b.sentinel
	b.sentinel.next = &b.sentinel
	b.timer = sched.loop.NewTimer(func() { b.scan() })
	return b
}

func (b *bucket) empty() bool { return b.sentinel.next == &b.sentinel }

func (b *bucket) pushTail(e *Entry) {
	last := b.sentinel.prev
	last.next = e
	e.prev = last
	e.next = &b.sentinel
	b.sentinel.prev = e
	e.bucket = b
	e.idleStart = time.Now()
}

func (e *Entry) splice() {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev, e.next = e, e
	e.bucket = nil
}

// scan implements spec.md §4.3's timer-callback algorithm: walk from the
// head (oldest) evicting everything already past its deadline, then
// either stop (list empty) or rearm for the exact remaining delta of the
// first still-live entry.
func (b *bucket) scan() {
	b.sched.mu.Lock()
	now := time.Now()
	for {
		head := b.sentinel.next
		if head == &b.sentinel {
			b.timer.Stop()
			b.sched.mu.Unlock()
			return
		}
		diff := now.Sub(head.idleStart)
		if diff < b.ms {
			b.timer.Again(b.ms - diff)
			b.sched.mu.Unlock()
			return
		}
		head.splice()
		cb := head.OnTimeout
		b.sched.mu.Unlock()
		if cb != nil {
			cb()
		}
		b.sched.mu.Lock()
		now = time.Now()
	}
}

// Scheduler owns every bucket, keyed by rounded timeout duration.
type Scheduler struct {
	loop *ioloop.Loop

	mu      sync.Mutex
	buckets map[time.Duration]*bucket
}

// New creates a Scheduler whose timers run on loop.
func New(loop *ioloop.Loop) *Scheduler {
	return &Scheduler{loop: loop, buckets: make(map[time.Duration]*bucket)}
}

// Round applies spec.md §4.3's time normalization: (0, 1s) rounds up to
// 1s; >=1s floors to the nearest second; <=0 disables (returns 0).
func Round(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	if d < time.Second {
		return time.Second
	}
	return (d / time.Second) * time.Second
}

// Enroll sets e's timeout to d, rounded per Round. If e is already linked
// it is unenrolled first, stopping its old bucket's timer if that leaves
// the bucket empty — same invariant Unenroll maintains. The timer for the
// new bucket is not armed here — only Active does that, per spec.md §4.3.
func (s *Scheduler) Enroll(e *Entry, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	oldBucket := e.bucket
	if e.linked() {
		e.splice()
		if oldBucket != nil && oldBucket.empty() {
			oldBucket.timer.Stop()
		}
	}
	rounded := Round(d)
	if rounded == 0 {
		e.bucket = nil
		return
	}
	b, ok := s.buckets[rounded]
	if !ok {
		b = newBucket(s, rounded)
		s.buckets[rounded] = b
	}
	e.bucket = b
}

// Active marks e as having just completed a successful read or write: a
// no-op if e has no enrolled bucket (timeout disabled); otherwise moves e
// to the tail of its bucket's list, arming the bucket's timer if the list
// was empty.
func (s *Scheduler) Active(e *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := e.bucket
	if b == nil {
		return
	}
	wasEmpty := b.empty()
	if e.linked() {
		e.splice()
	}
	b.pushTail(e)
	if wasEmpty {
		b.timer.Again(b.ms)
	}
}

// Unenroll splices e out of its bucket, stopping the bucket's timer if
// the list is now empty.
func (s *Scheduler) Unenroll(e *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := e.bucket
	e.bucket = nil
	if e.linked() {
		e.splice()
	}
	if b != nil && b.empty() {
		b.timer.Stop()
	}
}
