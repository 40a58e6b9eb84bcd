//go:build unix

package ioloop

import (
	"os"
	"sync"
	"syscall"

	"github.com/streamkit/netio/internal/bufpool"
)

// Watcher wraps one fd and lets Stream/Server arm readiness callbacks
// without reimplementing epoll: readiness *detection* rides Go's runtime
// network poller via syscall.RawConn (see package doc in loop.go), and
// every resulting callback is handed to Loop.Post so it runs serialized
// with everything else, matching the IOWatcher contract of spec.md §6.
type Watcher struct {
	loop *Loop
	fd   int
	file *os.File
	rc   syscall.RawConn

	mu         sync.Mutex
	readArmed  bool
	readGen    uint64
	writeArmed bool
	writeGen   uint64
	closed     bool
}

// NewWatcher takes ownership of fd (already non-blocking) and registers it
// with the runtime poller via os.NewFile. The Watcher object itself is
// drawn from loop's free list (component C1) rather than always allocated
// fresh.
func NewWatcher(loop *Loop, fd int, name string) (*Watcher, error) {
	f := os.NewFile(uintptr(fd), name)
	rc, err := f.SyscallConn()
	if err != nil {
		f.Close()
		return nil, err
	}
	w := loop.watchers.Alloc()
	w.reset(loop, fd, f, rc)
	return w, nil
}

// reset rewires a (possibly reused) Watcher onto fd. The generation bumps
// guard against a background goroutine from the Watcher's previous life
// still being in flight; List doesn't reset object state itself (see
// internal/freelist's doc comment), so every field touched by that
// previous life is reinitialized here.
func (w *Watcher) reset(loop *Loop, fd int, file *os.File, rc syscall.RawConn) {
	w.mu.Lock()
	w.loop = loop
	w.fd = fd
	w.file = file
	w.rc = rc
	w.readArmed = false
	w.readGen++
	w.writeArmed = false
	w.writeGen++
	w.closed = false
	w.mu.Unlock()
}

// FD returns the raw file descriptor, for syscalls not wrapped by this
// package.
func (w *Watcher) FD() int { return w.fd }

// File exposes the underlying *os.File so callers can hand it to
// io.Writer-based helpers (e.g. a vectorised-write adapter) that don't
// need raw syscall access.
func (w *Watcher) File() *os.File { return w.file }

// Control runs f synchronously against the raw fd, for one-shot syscalls
// that don't need to wait for readiness (getsockopt, setsockopt, a single
// non-blocking write/connect attempt).
func (w *Watcher) Control(f func(fd uintptr)) error {
	return w.rc.Control(f)
}

// TryWrite attempts exactly one non-blocking write(2) of b, returning
// (0, nil) with wouldBlock=true if the kernel send buffer is full.
func (w *Watcher) TryWrite(b []byte) (n int, wouldBlock bool, err error) {
	ctlErr := w.rc.Write(func(fd uintptr) bool {
		nn, werr := syscallWrite(int(fd), b)
		n = nn
		err = werr
		return true // exactly one attempt: never wait for more room here
	})
	if ctlErr != nil {
		return 0, false, ctlErr
	}
	if err != nil {
		if IsWouldBlock(err) {
			return 0, true, nil
		}
		return 0, false, Errno("write", err)
	}
	return n, false, nil
}

// ArmRead starts (if not already armed) a background reader: it repeatedly
// waits for readability, reads one chunk directly into a freshly reserved
// pool slab slice, and posts the result to the loop. onResult returns
// whether reading should continue; returning false (or a prior StopRead)
// ends the background goroutine.
func (w *Watcher) ArmRead(pool *bufpool.Pool, chunk int, onResult func(slab *bufpool.Slab, offset, n int, err error) bool) {
	w.mu.Lock()
	if w.readArmed || w.closed {
		w.mu.Unlock()
		return
	}
	w.readArmed = true
	w.readGen++
	gen := w.readGen
	w.mu.Unlock()

	go w.readLoop(gen, pool, chunk, onResult)
}

func (w *Watcher) readLoop(gen uint64, pool *bufpool.Pool, chunk int, onResult func(*bufpool.Slab, int, int, error) bool) {
	for {
		w.mu.Lock()
		live := w.readArmed && w.readGen == gen && !w.closed
		w.mu.Unlock()
		if !live {
			return
		}

		slab, offset := pool.ReservedWrite(chunk)
		var n int
		var rerr error
		ctlErr := w.rc.Read(func(fd uintptr) bool {
			nn, e := syscallRead(int(fd), slab.Bytes[offset:offset+chunk])
			n = nn
			rerr = e
			return !IsWouldBlock(e)
		})
		pool.Rewind(slab, chunk-n) // give back the unread tail of this reservation
		if ctlErr != nil && rerr == nil {
			rerr = ctlErr
		} else if rerr != nil && !isBenignReadError(rerr) {
			rerr = Errno("read", rerr)
		}

		done := make(chan struct{})
		var cont bool
		w.loop.Post(func() {
			cont = onResult(slab, offset, n, rerr)
			close(done)
		})
		<-done

		if !cont {
			w.mu.Lock()
			if w.readGen == gen {
				w.readArmed = false
			}
			w.mu.Unlock()
			return
		}
	}
}

func isBenignReadError(err error) bool {
	return err == nil
}

// ArmAcceptReady starts (if not already armed) a background waiter that
// blocks until fd is readable, then posts onReady to the loop — without
// performing any read(2) itself. Listening sockets aren't readable in the
// ordinary sense (accept4, not read, drains them), so this is the
// read-side counterpart to ArmWrite's pure-readiness design.
func (w *Watcher) ArmAcceptReady(onReady func() bool) {
	w.mu.Lock()
	if w.readArmed || w.closed {
		w.mu.Unlock()
		return
	}
	w.readArmed = true
	w.readGen++
	gen := w.readGen
	w.mu.Unlock()

	go w.acceptReadyLoop(gen, onReady)
}

func (w *Watcher) acceptReadyLoop(gen uint64, onReady func() bool) {
	for {
		w.mu.Lock()
		live := w.readArmed && w.readGen == gen && !w.closed
		w.mu.Unlock()
		if !live {
			return
		}

		ctlErr := w.rc.Read(func(fd uintptr) bool {
			return true // readiness alone is the signal; accept4 does the real work
		})

		done := make(chan struct{})
		var cont bool
		w.loop.Post(func() {
			if ctlErr != nil {
				cont = false
			} else {
				cont = onReady()
			}
			close(done)
		})
		<-done

		if !cont {
			w.mu.Lock()
			if w.readGen == gen {
				w.readArmed = false
			}
			w.mu.Unlock()
			return
		}
	}
}

// StopRead disarms the read watcher. A read already in flight still
// delivers its result once: pause() takes effect for the
// *next* read attempt, not one already past the readiness wait.
func (w *Watcher) StopRead() {
	w.mu.Lock()
	w.readArmed = false
	w.readGen++
	w.mu.Unlock()
}

// ArmWrite starts (if not already armed) a background waiter that blocks
// until fd is writable, then posts onWritable to the loop. onWritable's
// return value decides whether to keep watching for further writability.
func (w *Watcher) ArmWrite(onWritable func() bool) {
	w.mu.Lock()
	if w.writeArmed || w.closed {
		w.mu.Unlock()
		return
	}
	w.writeArmed = true
	w.writeGen++
	gen := w.writeGen
	w.mu.Unlock()

	go w.writeLoop(gen, onWritable)
}

func (w *Watcher) writeLoop(gen uint64, onWritable func() bool) {
	for {
		w.mu.Lock()
		live := w.writeArmed && w.writeGen == gen && !w.closed
		w.mu.Unlock()
		if !live {
			return
		}

		ctlErr := w.rc.Write(func(fd uintptr) bool {
			return true // readiness alone is the signal; no I/O performed here
		})

		done := make(chan struct{})
		var cont bool
		w.loop.Post(func() {
			if ctlErr != nil {
				cont = false
			} else {
				cont = onWritable()
			}
			close(done)
		})
		<-done

		if !cont {
			w.mu.Lock()
			if w.writeGen == gen {
				w.writeArmed = false
			}
			w.mu.Unlock()
			return
		}
	}
}

// StopWrite disarms the write watcher.
func (w *Watcher) StopWrite() {
	w.mu.Lock()
	w.writeArmed = false
	w.writeGen++
	w.mu.Unlock()
}

// Close disarms both watchers, closes the underlying fd exactly once, and
// returns the Watcher to its Loop's free list for reuse.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.readArmed = false
	w.readGen++
	w.writeArmed = false
	w.writeGen++
	file := w.file
	loop := w.loop
	w.mu.Unlock()
	err := file.Close()
	loop.watchers.Free(w)
	return err
}
