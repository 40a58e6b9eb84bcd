// Package freelist implements a bounded cache of reusable objects, the
// free-list idiom used throughout the runtime for watcher and buffer reuse
// (component C1).
package freelist

import "sync"

// DefaultCapacity is the soft cap applied when a List is constructed with a
// non-positive capacity.
const DefaultCapacity = 100

// List is a bounded stack of reusable *T values. Alloc returns a pooled
// value if one is available, otherwise it calls the constructor. Free
// pushes a value back for reuse, or drops it once the list is at capacity.
//
// List does not validate or reset the state of a returned object — callers
// own that responsibility, mirroring spec.md §4.1.
type List[T any] struct {
	mu       sync.Mutex
	items    []*T
	capacity int
	New      func() *T
}

// New constructs a List with the given soft capacity. A non-positive
// capacity falls back to DefaultCapacity.
func New[T any](capacity int, ctor func() *T) *List[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &List[T]{
		capacity: capacity,
		New:      ctor,
	}
}

// Alloc returns a pooled object if any is available, else constructs one.
func (l *List[T]) Alloc() *T {
	l.mu.Lock()
	n := len(l.items)
	if n == 0 {
		l.mu.Unlock()
		return l.New()
	}
	v := l.items[n-1]
	l.items = l.items[:n-1]
	l.mu.Unlock()
	return v
}

// Free pushes obj back onto the list for reuse, unless the list is already
// at its soft capacity, in which case obj is dropped for the GC to collect.
func (l *List[T]) Free(obj *T) {
	if obj == nil {
		return
	}
	l.mu.Lock()
	if len(l.items) >= l.capacity {
		l.mu.Unlock()
		return
	}
	l.items = append(l.items, obj)
	l.mu.Unlock()
}

// Len reports how many objects are currently cached.
func (l *List[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}
