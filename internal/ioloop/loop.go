// Package ioloop is the runtime's own event loop: a single goroutine that
// serializes every readiness callback, timer expiry, and deferred
// ("next-tick") callback, preserving the single-threaded cooperative model
// of spec.md §5. It stands in for the "external" event loop / IOWatcher /
// repeating-timer / next-tick-scheduler collaborators of spec.md §6, since
// this module ships its own runtime rather than hosting inside one.
//
// Readiness *detection* is delegated to Go's runtime network poller (via
// syscall.RawConn, see watcher_unix.go) rather than a hand-rolled epoll
// loop: that poller already is a single, efficient, OS-native reactor, and
// re-implementing it would just be the same epoll loop with extra steps.
// What Loop adds on top is the single-goroutine ordering guarantee: every
// callback a Watcher or Timer produces is handed to Loop.Post and executed
// on the loop goroutine, never directly from the poller's internal
// goroutines.
package ioloop

import (
	"sync"
	"time"

	"github.com/streamkit/netio/internal/freelist"
)

// Loop runs posted callbacks strictly one at a time, in submission order,
// on a single goroutine.
type Loop struct {
	mu      sync.Mutex
	tasks   []func()
	wake    chan struct{}
	closed  bool
	closeCh chan struct{}

	// watchers is component C1's free list for Watcher objects: Close
	// returns one to the list instead of leaving it for the GC, and
	// NewWatcher draws from it before constructing a fresh one.
	watchers *freelist.List[Watcher]
}

// Default is a process-wide loop for callers that want one. The netio
// package does not use it: each netio.Runtime constructs its own Loop with
// New, and every Stream and Server of that Runtime schedules work onto it.
var Default = New()

// New constructs and starts a Loop on its own goroutine.
func New() *Loop {
	l := &Loop{
		wake:     make(chan struct{}, 1),
		closeCh:  make(chan struct{}),
		watchers: freelist.New[Watcher](freelist.DefaultCapacity, func() *Watcher { return &Watcher{} }),
	}
	go l.run()
	return l
}

// Post schedules fn to run on the loop goroutine, after every task already
// queued ahead of it. Safe to call from any goroutine, including from
// inside a running task (fn is then appended and runs on a later
// iteration, never re-entrantly).
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) run() {
	for {
		l.mu.Lock()
		tasks := l.tasks
		l.tasks = nil
		l.mu.Unlock()

		for _, fn := range tasks {
			fn()
		}

		select {
		case <-l.wake:
		case <-l.closeCh:
			return
		}
	}
}

// Close stops the loop goroutine. Default is never closed in production;
// tests construct their own Loop for isolation.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()
	close(l.closeCh)
}

// Timer is a re-armable one-shot timer whose callback always runs on its Loop's
// goroutine. Unlike time.Ticker, a Timer does not automatically re-fire:
// the callback (or the caller) is expected to call Again to re-arm it,
// which is what lets internal/idletimeout re-arm with an exact remaining
// delta instead of a fixed period (spec.md §4.3).
type Timer struct {
	loop *Loop
	cb   func()

	mu      sync.Mutex
	inner   *time.Timer
	stopped bool
}

// NewTimer creates an unarmed Timer bound to l. cb runs on l's goroutine
// whenever the timer fires.
func (l *Loop) NewTimer(cb func()) *Timer {
	return &Timer{loop: l, cb: cb}
}

// Again arms or re-arms the timer to fire after d.
func (t *Timer) Again(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inner != nil {
		t.inner.Stop()
	}
	t.stopped = false
	t.inner = time.AfterFunc(d, func() {
		t.mu.Lock()
		stopped := t.stopped
		t.mu.Unlock()
		if stopped {
			return
		}
		t.loop.Post(t.cb)
	})
}

// Stop disarms the timer. A pending fire that has already been posted to
// the loop still runs; one still in the OS timer is cancelled.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.inner != nil {
		t.inner.Stop()
	}
}

// Stopped reports whether the timer is currently disarmed — tests use
// this to observe bucket-timer lifecycle (spec.md §8 invariant 1) without
// waiting out a real fire.
func (t *Timer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped || t.inner == nil
}
