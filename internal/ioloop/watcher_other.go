//go:build !unix

package ioloop

import (
	"os"

	"github.com/streamkit/netio/internal/bufpool"
)

// Watcher stub for GOOS values without a unix.* syscall surface; every
// method reports ErrUnsupportedPlatform since there is never a real fd to
// wrap (NewTCPSocket/NewUnixSocket already fail first).
type Watcher struct{}

func NewWatcher(loop *Loop, fd int, name string) (*Watcher, error) {
	return nil, ErrUnsupportedPlatform
}

func (w *Watcher) FD() int { return -1 }

func (w *Watcher) File() *os.File { return nil }

func (w *Watcher) Control(f func(fd uintptr)) error { return ErrUnsupportedPlatform }

func (w *Watcher) TryWrite(b []byte) (n int, wouldBlock bool, err error) {
	return 0, false, ErrUnsupportedPlatform
}

func (w *Watcher) ArmRead(pool *bufpool.Pool, chunk int, onResult func(slab *bufpool.Slab, offset, n int, err error) bool) {
}

func (w *Watcher) ArmAcceptReady(onReady func() bool) {}

func (w *Watcher) StopRead() {}

func (w *Watcher) ArmWrite(onWritable func() bool) {}

func (w *Watcher) StopWrite() {}

func (w *Watcher) Close() error { return nil }
