// Package bufpool implements the shared, process-wide read-buffer pool
// (component C2): a single growing slab carved into append-only
// sub-slices, handed out for inbound reads and short outbound encodes.
//
// The slab is never recycled into a free list: outstanding Slices retain
// their Slab directly, so the backing array stays reachable for as long as
// any holder needs it, and reusing the storage would alias live data (see
// spec.md §4.2).
package bufpool

import "sync"

// DefaultCapacity is the suggested slab size from spec.md §3.
const DefaultCapacity = 40 * 1024

// LowWater is the suggested low-water threshold from spec.md §3: once the
// remaining capacity in the current slab falls below this, Ensure swaps in
// a fresh slab rather than risk returning a tiny sliver.
const LowWater = 128

// Slab is one growing buffer. used advances with each reservation and
// moves back only through Pool.Rewind; cap is fixed at construction. A Slab is referenced by every Slice handed out of it, which
// is what keeps its backing array alive after Pool moves on to a new one.
type Slab struct {
	Bytes []byte
	used  int
}

// Slice is a view (Slab, Offset, Length) into a pool slab, carrying a Sent
// cursor once queued for write (spec.md §3); Length is the logical length.
type Slice struct {
	Slab   *Slab
	Offset int
	Length int
	Sent   int
}

// Data returns the whole view this Slice currently addresses.
func (s Slice) Data() []byte {
	return s.Slab.Bytes[s.Offset : s.Offset+s.Length]
}

// Remaining returns the not-yet-sent tail of this slice, accounting for
// Sent bytes already written to the OS.
func (s Slice) Remaining() []byte {
	return s.Slab.Bytes[s.Offset+s.Sent : s.Offset+s.Length]
}

// Pool is a single growing slab with a monotonically advancing cursor,
// replaced — not reused — when remaining capacity drops below LowWater.
type Pool struct {
	mu       sync.Mutex
	capacity int
	current  *Slab
}

// Shared is a package-level pool for callers that want one. The netio
// package does not use it: each netio.Runtime builds its own Pool with
// New, and every Stream of that Runtime shares it.
var Shared = New(DefaultCapacity)

// New constructs a standalone Pool. netio.NewRuntime uses this for each
// Runtime's pool, and tests use it to avoid cross-test slab-sharing.
func New(capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Pool{capacity: capacity}
}

// ensureLocked allocates a new slab if none exists or remaining capacity is
// below LowWater. Must be called with mu held.
func (p *Pool) ensureLocked() {
	if p.current == nil || p.capacity-p.current.used < LowWater {
		p.current = &Slab{Bytes: make([]byte, p.capacity)}
	}
}

// Ensure guarantees the current slab has at least n bytes of headroom,
// swapping in a fresh slab if needed. It does not advance the cursor.
func (p *Pool) Ensure(n int) *Slab {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > p.capacity {
		// Caller wants more than a slab can ever hold; the caller is
		// expected to fall back to a private buffer (see stream.go).
		return &Slab{Bytes: make([]byte, n)}
	}
	p.ensureLocked()
	if p.capacity-p.current.used < n {
		p.current = &Slab{Bytes: make([]byte, p.capacity)}
	}
	return p.current
}

// ReservedWrite advances the current slab's cursor by n and returns the
// slab together with the offset the caller should write at. Like Ensure,
// a request bigger than the slab itself gets its own private, exactly
// sized Slab rather than corrupting the shared cursor.
func (p *Pool) ReservedWrite(n int) (*Slab, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > p.capacity {
		return &Slab{Bytes: make([]byte, n), used: n}, 0
	}
	p.ensureLocked()
	if p.capacity-p.current.used < n {
		p.current = &Slab{Bytes: make([]byte, p.capacity)}
	}
	slab := p.current
	offset := slab.used
	slab.used += n
	return slab, offset
}

// Rewind gives back n bytes at the tail of slab's cursor, provided slab is
// still the pool's current slab and its cursor is exactly at offset+n (the
// "fully-written string released immediately" case from spec.md §4.4). If
// the pool has since moved on to a new slab, this is a silent no-op: the
// old slab's space is simply abandoned, which is always safe.
func (p *Pool) Rewind(slab *Slab, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == slab && slab.used >= n {
		slab.used -= n
	}
}

// Capacity reports the slab size this pool allocates.
func (p *Pool) Capacity() int { return p.capacity }
