// Stream (component C4): the connect/read/write-queue/half-close state
// machine of spec.md §4.4, built on internal/ioloop's watchers,
// internal/bufpool's shared slab, and internal/idletimeout's scheduler.
package netio

import (
	"net"
	"sync"
	"time"

	"github.com/sagernet/sing/common/bufio"
	"github.com/sirupsen/logrus"

	"github.com/streamkit/netio/internal/bufpool"
	"github.com/streamkit/netio/internal/freelist"
	"github.com/streamkit/netio/internal/idletimeout"
	"github.com/streamkit/netio/internal/ioloop"
	"github.com/streamkit/netio/internal/logging"
)

// DefaultReadChunk is how many bytes each armed read attempts to pull
// from the OS into a freshly reserved pool slice.
const DefaultReadChunk = 64 * 1024

// writeItem is one entry of the write queue: either a pending data buffer
// (backed by the shared pool or a private allocation, per spec.md §9's
// "write-queue residual that points into the shared pool") or the EOF
// sentinel requesting a half-close once reached.
type writeItem struct {
	eof bool

	slab   *bufpool.Slab
	offset int
	length int
	priv   []byte

	sent int
}

func (w *writeItem) data() []byte {
	if w.priv != nil {
		return w.priv
	}
	return w.slab.Bytes[w.offset : w.offset+w.length]
}

func (w *writeItem) remaining() []byte {
	return w.data()[w.sent:]
}

// writeItems is component C1's free list for writeItem objects: every
// write-queue entry is drawn from here and returned once fully flushed,
// instead of allocating and discarding one per Write call.
var writeItems = freelist.New[writeItem](freelist.DefaultCapacity, func() *writeItem { return &writeItem{} })

// allocWriteItem draws a writeItem from the free list and resets every
// field List itself doesn't touch (see internal/freelist's doc comment).
func allocWriteItem() *writeItem {
	item := writeItems.Alloc()
	*item = writeItem{}
	return item
}

func freeWriteItem(item *writeItem) {
	writeItems.Free(item)
}

// Stream is a single non-blocking TCP or UNIX-domain connection.
type Stream struct {
	loop     *ioloop.Loop
	pool     *bufpool.Pool
	sched    *idletimeout.Scheduler
	entry    *idletimeout.Entry
	handlers Handlers
	log      *logrus.Entry

	readChunk int

	mu         sync.Mutex
	watcher    *ioloop.Watcher
	fd         int
	network    string
	opened     bool
	localAddr  net.Addr
	remoteAddr net.Addr

	resolving  bool
	connecting bool
	readable   bool
	writable   bool
	closed     bool
	eofQueued  bool

	encoding string
	queue    []*writeItem
}

func newStream(loop *ioloop.Loop, pool *bufpool.Pool, sched *idletimeout.Scheduler, h Handlers) *Stream {
	// ArmRead slices straight into a pool-reserved region (watcher_unix.go's
	// readLoop), so the chunk size can never exceed what the pool actually
	// hands back per ReservedWrite call — clamp rather than let a larger
	// DefaultReadChunk outrun a smaller Pool's capacity.
	readChunk := DefaultReadChunk
	if cap := pool.Capacity(); readChunk > cap {
		readChunk = cap
	}
	s := &Stream{
		loop:      loop,
		pool:      pool,
		sched:     sched,
		handlers:  h,
		log:       logging.For("stream"),
		readChunk: readChunk,
		entry:     idletimeout.NewEntry(),
	}
	s.entry.OnTimeout = s.onIdleTimeout
	return s
}

// SetHandlers replaces the Stream's callback table. Server.ListenTCP/
// ListenUnix accept a ServerHandlers.OnConnection callback that typically
// calls this first thing, before anything else touches the Stream —
// the accept path already arms the read watcher (spec.md §4.5), so any
// inbound data is only ever processed on a later loop tick, never before
// OnConnection has had a chance to set real handlers.
func (s *Stream) SetHandlers(h Handlers) {
	s.mu.Lock()
	s.handlers = h
	s.mu.Unlock()
}

func (s *Stream) wireWatcher(fd int, network string) error {
	w, err := ioloop.NewWatcher(s.loop, fd, "netio-stream")
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.fd = fd
	s.network = network
	s.watcher = w
	s.opened = true
	s.mu.Unlock()
	return nil
}

// openAccepted wires an already-connected fd handed back by accept(2):
// the Stream enters the open state directly (spec.md §4.4's state table,
// "Entered by: accept"), with the read watcher armed immediately.
func (s *Stream) openAccepted(fd int, network string, remote net.Addr) error {
	if err := s.wireWatcher(fd, network); err != nil {
		return err
	}
	s.mu.Lock()
	s.remoteAddr = remote
	s.readable = true
	s.writable = true
	s.mu.Unlock()
	s.armRead()
	return nil
}

// openConnecting wires a freshly created, non-blocking-connect-in-flight
// fd: the Stream enters "connecting" until the write watcher's first fire
// resolves the outcome via SO_ERROR (spec.md §4.4's connect() bullet).
func (s *Stream) openConnecting(fd int, network string) error {
	if err := s.wireWatcher(fd, network); err != nil {
		return err
	}
	s.mu.Lock()
	s.connecting = true
	s.mu.Unlock()
	s.watcher.ArmWrite(s.onConnectWritable)
	return nil
}

// onConnectWritable is the write-watcher callback used only until the
// connect outcome is known; it disarms itself (returns false) either way.
func (s *Stream) onConnectWritable() bool {
	s.mu.Lock()
	fd := s.fd
	s.mu.Unlock()

	err := ioloop.SockError(fd)
	if err == nil {
		s.mu.Lock()
		s.connecting = false
		s.readable = true
		s.writable = true
		s.mu.Unlock()
		s.armRead()
		s.handlers.fireConnect(s)
		return false
	}
	if ioloop.IsInProgress(err) {
		return true
	}
	s.forceClose(err)
	return false
}

func (s *Stream) armRead() {
	s.watcher.ArmRead(s.pool, s.readChunk, s.onReadResult)
}

// onReadResult implements spec.md §4.4's read-path steps 2-4.
func (s *Stream) onReadResult(slab *bufpool.Slab, offset, n int, err error) bool {
	if err != nil {
		s.forceClose(err)
		return false
	}
	if n == 0 {
		s.mu.Lock()
		s.readable = false
		stillWritable := s.writable
		s.mu.Unlock()
		s.handlers.fireEnd(s)
		if !stillWritable {
			s.forceClose(nil)
		}
		return false
	}

	s.sched.Active(s.entry)
	// Decoding to text is a byte-identity operation in Go (unlike the
	// quirky trailing-NUL accounting spec.md §9 flags and explicitly asks
	// not to replicate); OnData always receives the bytes actually read.
	s.handlers.fireData(s, slab.Bytes[offset:offset+n])
	return true
}

func (s *Stream) onIdleTimeout() {
	s.handlers.fireTimeout(s)
	s.forceClose(ErrIdleTimeout)
}

// Write queues or synchronously writes data, returning true iff every
// byte reached the OS before returning (spec.md §4.4's write()).
func (s *Stream) Write(data []byte) (bool, error) {
	s.mu.Lock()
	if s.eofQueued {
		s.mu.Unlock()
		return false, ErrAlreadyClosed
	}
	if !s.writable {
		s.mu.Unlock()
		return false, ErrNotWritable
	}
	queued := len(s.queue) > 0
	s.mu.Unlock()

	if queued {
		item := allocWriteItem()
		item.priv = append([]byte(nil), data...)
		s.mu.Lock()
		s.queue = append(s.queue, item)
		s.mu.Unlock()
		return false, nil
	}
	return s.writeFastPath(data), nil
}

func (s *Stream) writeFastPath(data []byte) bool {
	n := len(data)
	if n == 0 {
		return true
	}

	item := allocWriteItem()
	if n <= s.pool.Capacity() {
		slab, offset := s.pool.ReservedWrite(n)
		copy(slab.Bytes[offset:offset+n], data)
		item.slab, item.offset, item.length = slab, offset, n
	} else {
		item.priv = append([]byte(nil), data...)
	}

	wn, wouldBlock, err := s.watcher.TryWrite(item.remaining())
	if err != nil {
		freeWriteItem(item)
		s.forceClose(err)
		return false
	}
	if !wouldBlock && wn == n {
		if item.slab != nil {
			s.pool.Rewind(item.slab, n)
		}
		s.sched.Active(s.entry)
		freeWriteItem(item)
		return true
	}

	if wouldBlock {
		wn = 0
	}
	item.sent = wn
	s.mu.Lock()
	s.queue = append([]*writeItem{item}, s.queue...)
	s.mu.Unlock()
	s.armWriteForFlush()
	return false
}

func (s *Stream) armWriteForFlush() {
	s.watcher.ArmWrite(s.onWriteReady)
}

func (s *Stream) onWriteReady() bool {
	return !s.flush()
}

// flush drains the write queue per spec.md §4.4: repeatedly writes the
// head entry, stopping at the first residual or at the EOF sentinel.
// Returns true iff the queue fully drained (or the sentinel was handled).
func (s *Stream) flush() bool {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			s.watcher.StopWrite()
			return true
		}
		head := s.queue[0]
		s.mu.Unlock()

		if head.eof {
			return s.flushShutdown(head)
		}

		if s.flushVectorised() {
			continue
		}

		remaining := head.remaining()
		wn, wouldBlock, err := s.watcher.TryWrite(remaining)
		if err != nil {
			s.forceClose(err)
			return false
		}
		if wouldBlock || wn < len(remaining) {
			head.sent += wn
			s.armWriteForFlush()
			return false
		}

		s.mu.Lock()
		s.queue = s.queue[1:]
		empty := len(s.queue) == 0
		s.mu.Unlock()
		freeWriteItem(head)
		s.sched.Active(s.entry)
		if empty {
			s.watcher.StopWrite()
			s.handlers.fireDrain(s)
			return true
		}
	}
}

func (s *Stream) flushShutdown(item *writeItem) bool {
	s.mu.Lock()
	fd := s.fd
	s.mu.Unlock()

	err := ioloop.ShutdownWrite(fd)
	s.mu.Lock()
	s.queue = s.queue[1:]
	s.writable = false
	s.mu.Unlock()
	freeWriteItem(item)
	s.watcher.StopWrite()
	if err != nil {
		s.forceClose(err)
		return false
	}
	return true
}

// flushVectorised opportunistically combines the leading run of queued
// data items into one writev(2) via sing's vectorised-writer adapter —
// the same bufio.CreateVectorisedWriter/WriteVectorised call
// SagerNet-smux's sendLoop uses, generalized from one framed send to an
// arbitrary run of queued residuals. Returns false (never made progress)
// whenever vectorised I/O isn't available or there's nothing to gain from
// it, leaving flush's single-item path to handle the head entry.
func (s *Stream) flushVectorised() bool {
	file := s.watcher.File()
	if file == nil {
		return false
	}
	bw, ok := bufio.CreateVectorisedWriter(file)
	if !ok {
		return false
	}

	s.mu.Lock()
	var items []*writeItem
	for _, it := range s.queue {
		if it.eof {
			break
		}
		items = append(items, it)
	}
	if len(items) < 2 {
		s.mu.Unlock()
		return false
	}
	vec := make([][]byte, len(items))
	for i, it := range items {
		vec[i] = it.remaining()
	}
	s.mu.Unlock()

	n, err := bufio.WriteVectorised(bw, vec)
	if err != nil {
		s.forceClose(err)
		return true
	}
	if n == 0 {
		return false
	}

	s.mu.Lock()
	consumed := 0
	left := n
	for _, it := range items {
		avail := len(it.remaining())
		if left >= avail {
			left -= avail
			consumed++
			continue
		}
		it.sent += left
		left = 0
		break
	}
	finished := append([]*writeItem(nil), s.queue[:consumed]...)
	s.queue = s.queue[consumed:]
	s.mu.Unlock()
	for _, it := range finished {
		freeWriteItem(it)
	}
	s.sched.Active(s.entry)
	return true
}

// SetEncoding configures text decoding for subsequent data events. Unset
// (the default, "") means OnData receives the raw bytes read; any other
// value is accepted for API compatibility but changes nothing in Go,
// since a []byte of valid UTF-8 already is the decoded text.
func (s *Stream) SetEncoding(enc string) {
	s.mu.Lock()
	s.encoding = enc
	s.mu.Unlock()
}

// SetTimeout enrolls (or re-enrolls) the Stream with the idle-timeout
// scheduler and, once the Stream has a descriptor, starts its idle clock
// from now. d <= 0 disables idle timeout tracking.
func (s *Stream) SetTimeout(d time.Duration) {
	s.sched.Enroll(s.entry, d)
	s.mu.Lock()
	live := s.opened && !s.closed
	s.mu.Unlock()
	if live {
		s.sched.Active(s.entry)
	}
}

// Pause stops the read watcher; Resume re-arms it. Both are idempotent:
// repeated Pause calls collapse to one, matching spec.md §8's
// pause();pause();resume() == pause();resume() property.
func (s *Stream) Pause() {
	s.watcher.StopRead()
}

func (s *Stream) Resume() {
	s.mu.Lock()
	readable := s.readable
	s.mu.Unlock()
	if readable {
		s.armRead()
	}
}

// Close performs a graceful close: the EOF sentinel is enqueued and a
// flush is triggered; the shutdown-write syscall fires only once the
// sentinel is reached (spec.md §4.4's close()).
func (s *Stream) Close() {
	s.mu.Lock()
	if s.eofQueued || !s.writable {
		s.mu.Unlock()
		return
	}
	s.eofQueued = true
	item := allocWriteItem()
	item.eof = true
	s.queue = append(s.queue, item)
	s.mu.Unlock()
	s.flush()
}

// ForceClose tears the Stream down immediately, regardless of queue
// contents (spec.md §4.4's forceClose()).
func (s *Stream) ForceClose() {
	s.forceClose(nil)
}

func (s *Stream) forceClose(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.readable = false
	s.writable = false
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, item := range pending {
		freeWriteItem(item)
	}

	s.sched.Unenroll(s.entry)
	if s.watcher != nil {
		if cerr := s.watcher.Close(); cerr != nil {
			s.log.WithError(cerr).Debug("close: fd close failed")
		}
	}

	// Next-tick semantics (spec.md §9): defer error/close so listeners
	// attached immediately after this call still observe them.
	s.loop.Post(func() {
		if err != nil {
			s.handlers.fireError(s, err)
		}
		s.handlers.fireClose(s, err != nil)
	})
}

// Address reports the OS's view of the local endpoint.
func (s *Stream) Address() (net.Addr, error) {
	s.mu.Lock()
	fd, network := s.fd, s.network
	s.mu.Unlock()
	return ioloop.LocalAddr(fd, network)
}

// RemoteAddr reports the peer address for an accepted Stream (nil for one
// still resolving/connecting, or for a dialed Stream that hasn't recorded
// one).
func (s *Stream) RemoteAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteAddr
}

// SetNoDelay toggles TCP_NODELAY; a no-op on UNIX-domain streams.
func (s *Stream) SetNoDelay(enable bool) error {
	s.mu.Lock()
	fd, network := s.fd, s.network
	s.mu.Unlock()
	if network != "tcp4" && network != "tcp6" {
		return nil
	}
	return ioloop.SetNoDelay(fd, enable)
}
