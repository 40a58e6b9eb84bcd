// Package netio is a non-blocking stream-socket I/O runtime: an
// event-driven TCP/UNIX connection and server abstraction layered over
// OS sockets and a readiness-based event loop (component C7's public
// factory surface — spec.md §6's createConnection/createServer).
package netio

import (
	"github.com/streamkit/netio/internal/bufpool"
	"github.com/streamkit/netio/internal/idletimeout"
	"github.com/streamkit/netio/internal/ioloop"
)

// Runtime bundles the collaborators every Stream/Server needs: the event
// loop, the shared buffer pool, and the idle-timeout scheduler. Most
// programs use the process-wide Default(); tests construct their own to
// avoid cross-test state sharing.
type Runtime struct {
	Loop  *ioloop.Loop
	Pool  *bufpool.Pool
	Sched *idletimeout.Scheduler
}

var defaultRuntime = NewRuntime()

// NewRuntime constructs an independent Loop, Pool, and Scheduler.
func NewRuntime() *Runtime {
	loop := ioloop.New()
	return &Runtime{
		Loop:  loop,
		Pool:  bufpool.New(bufpool.DefaultCapacity),
		Sched: idletimeout.New(loop),
	}
}

// Default returns the process-wide Runtime used by the package-level
// Dial/DialUnix/Listen helpers.
func Default() *Runtime { return defaultRuntime }

// Dial creates a TCP Stream and begins a non-blocking connect to
// host:port. If host is empty, "localhost" is not assumed — host must be
// a resolvable name or literal address (spec.md §4.6).
func (rt *Runtime) Dial(host string, port int, h Handlers) (*Stream, error) {
	s := newStream(rt.Loop, rt.Pool, rt.Sched, h)
	if err := s.beginConnectTCP(host, port); err != nil {
		return nil, err
	}
	return s, nil
}

// DialUnix creates a Stream and begins a non-blocking connect to a
// UNIX-domain socket path.
func (rt *Runtime) DialUnix(path string, h Handlers) (*Stream, error) {
	s := newStream(rt.Loop, rt.Pool, rt.Sched, h)
	if err := s.beginConnectUnix(path); err != nil {
		return nil, err
	}
	return s, nil
}

// ListenTCP creates and binds a Server on host:port (host "" is the
// wildcard address).
func (rt *Runtime) ListenTCP(host string, port int, h ServerHandlers) (*Server, error) {
	srv := newServer(rt.Loop, rt.Pool, rt.Sched, h)
	if err := srv.ListenTCP(host, port, DefaultBacklog); err != nil {
		return nil, err
	}
	return srv, nil
}

// ListenUnix creates and binds a Server on a UNIX-domain socket path.
func (rt *Runtime) ListenUnix(path string, h ServerHandlers) (*Server, error) {
	srv := newServer(rt.Loop, rt.Pool, rt.Sched, h)
	if err := srv.ListenUnix(path, DefaultBacklog); err != nil {
		return nil, err
	}
	return srv, nil
}

// Dial, DialUnix, ListenTCP, and ListenUnix are package-level convenience
// wrappers around Default().

func Dial(host string, port int, h Handlers) (*Stream, error) {
	return defaultRuntime.Dial(host, port, h)
}

func DialUnix(path string, h Handlers) (*Stream, error) {
	return defaultRuntime.DialUnix(path, h)
}

func ListenTCP(host string, port int, h ServerHandlers) (*Server, error) {
	return defaultRuntime.ListenTCP(host, port, h)
}

func ListenUnix(path string, h ServerHandlers) (*Server, error) {
	return defaultRuntime.ListenUnix(path, h)
}
