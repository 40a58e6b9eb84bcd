package idletimeout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamkit/netio/internal/ioloop"
)

func newTestScheduler(t *testing.T) (*Scheduler, *ioloop.Loop) {
	t.Helper()
	loop := ioloop.New()
	t.Cleanup(loop.Close)
	return New(loop), loop
}

func TestRound(t *testing.T) {
	assert.Equal(t, time.Duration(0), Round(0))
	assert.Equal(t, time.Duration(0), Round(-5*time.Second))
	assert.Equal(t, time.Second, Round(1))
	assert.Equal(t, time.Second, Round(500*time.Millisecond))
	assert.Equal(t, time.Second, Round(1000*time.Millisecond))
	assert.Equal(t, 2*time.Second, Round(2500*time.Millisecond))
}

func TestEnrollThenEnrollLeavesOneBucket(t *testing.T) {
	sched, _ := newTestScheduler(t)
	e := NewEntry()
	sched.Enroll(e, 500*time.Millisecond)
	sched.Enroll(e, 500*time.Millisecond)
	require.Len(t, sched.buckets, 1)
	b := sched.buckets[time.Second]
	assert.True(t, b.empty()) // Enroll alone never links the entry
}

func TestActiveLinksAtTailAndArmsTimer(t *testing.T) {
	sched, _ := newTestScheduler(t)
	e := NewEntry()
	sched.Enroll(e, time.Second)
	sched.Active(e)

	b := sched.buckets[time.Second]
	require.False(t, b.empty())
	assert.Same(t, e, b.sentinel.next)
	assert.True(t, e.linked())
}

func TestActiveIsNoopWhenDisabled(t *testing.T) {
	sched, _ := newTestScheduler(t)
	e := NewEntry()
	sched.Enroll(e, 0)
	sched.Active(e)
	assert.False(t, e.linked())
	assert.Empty(t, sched.buckets)
}

func TestActiveMovesExistingEntryToTail(t *testing.T) {
	sched, _ := newTestScheduler(t)
	a, b := NewEntry(), NewEntry()
	sched.Enroll(a, time.Second)
	sched.Enroll(b, time.Second)
	sched.Active(a)
	sched.Active(b)
	sched.Active(a) // re-activate a: it should move back to the tail

	bucket := sched.buckets[time.Second]
	assert.Same(t, b, bucket.sentinel.next) // b is now oldest (head)
	assert.Same(t, a, bucket.sentinel.prev) // a is now newest (tail)
}

func TestUnenrollSplicesAndStopsEmptyBucket(t *testing.T) {
	sched, _ := newTestScheduler(t)
	e := NewEntry()
	sched.Enroll(e, time.Second)
	sched.Active(e)
	sched.Unenroll(e)

	assert.False(t, e.linked())
	assert.True(t, sched.buckets[time.Second].empty())
}

func TestExclusiveBucketMembership(t *testing.T) {
	sched, _ := newTestScheduler(t)
	e := NewEntry()
	sched.Enroll(e, time.Second)
	sched.Active(e)
	first := e.bucket

	sched.Enroll(e, 2*time.Second)
	assert.False(t, e.linked()) // re-enroll unlinks from the old bucket
	assert.NotSame(t, first, e.bucket)
}

// TestEnrollStopsOldBucketTimerWhenEmptied guards spec.md §8 invariant 1
// ("L is empty iff T is stopped") across a re-Enroll, not just Unenroll:
// moving the sole member of a bucket to a different bucket must leave the
// vacated bucket's timer stopped, not ticking toward a no-op fire.
func TestEnrollStopsOldBucketTimerWhenEmptied(t *testing.T) {
	sched, _ := newTestScheduler(t)
	e := NewEntry()
	sched.Enroll(e, time.Second)
	sched.Active(e)

	oldBucket := sched.buckets[time.Second]
	require.False(t, oldBucket.timer.Stopped())

	sched.Enroll(e, 2*time.Second)
	assert.True(t, oldBucket.timer.Stopped())
}

func TestTimeoutFiresAfterRoundedDuration(t *testing.T) {
	sched, _ := newTestScheduler(t)
	e := NewEntry()

	fired := make(chan struct{}, 1)
	e.OnTimeout = func() { fired <- struct{}{} }

	sched.Enroll(e, 100*time.Millisecond) // rounds up to 1s
	sched.Active(e)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout callback never fired")
	}

	assert.False(t, e.linked())
	assert.True(t, sched.buckets[time.Second].empty())
}
