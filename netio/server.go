// Server (component C5): Listen/accept-drain loop, UNIX stale-socket
// handling, per spec.md §4.5.
package netio

import (
	"net"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/streamkit/netio/internal/bufpool"
	"github.com/streamkit/netio/internal/idletimeout"
	"github.com/streamkit/netio/internal/ioloop"
	"github.com/streamkit/netio/internal/logging"
)

// DefaultBacklog is the listen(2) backlog spec.md §4.5 specifies.
const DefaultBacklog = 128

// Server is a listening TCP or UNIX-domain socket that emits a Stream per
// accepted connection.
type Server struct {
	loop     *ioloop.Loop
	pool     *bufpool.Pool
	sched    *idletimeout.Scheduler
	handlers ServerHandlers
	log      *logrus.Entry

	mu         sync.Mutex
	watcher    *ioloop.Watcher
	fd         int
	network    string
	unixPath   string
	listening  bool
	closed     bool
}

func newServer(loop *ioloop.Loop, pool *bufpool.Pool, sched *idletimeout.Scheduler, h ServerHandlers) *Server {
	return &Server{loop: loop, pool: pool, sched: sched, handlers: h, log: logging.For("server")}
}

// ListenTCP binds and listens on host:port ("" host means the wildcard
// address), with the given backlog (DefaultBacklog if <= 0).
func (srv *Server) ListenTCP(host string, port int, backlog int) error {
	srv.mu.Lock()
	if srv.listening {
		srv.mu.Unlock()
		return ErrAlreadyListening
	}
	srv.mu.Unlock()

	network := "tcp4"
	var ip net.IP
	if host != "" {
		parsed := net.ParseIP(host)
		if parsed == nil {
			return ErrUnsupportedFamily
		}
		ip = parsed
		if ip.To4() == nil {
			network = "tcp6"
		}
	} else {
		ip = net.IPv4zero
	}

	fd, err := ioloop.NewTCPSocket(network)
	if err != nil {
		return err
	}
	if err := ioloop.BindTCP(fd, ip, port); err != nil {
		return err
	}
	return srv.finishListen(fd, network, backlog, "")
}

// ListenUnix binds and listens on a filesystem path, per spec.md §4.5's
// stale-socket handling: absent path binds directly; an existing regular
// file (this runtime's own stale leftover) is unlinked first; anything
// else that exists there, including a live socket, is refused.
func (srv *Server) ListenUnix(path string, backlog int) error {
	srv.mu.Lock()
	if srv.listening {
		srv.mu.Unlock()
		return ErrAlreadyListening
	}
	srv.mu.Unlock()

	if fi, err := os.Stat(path); err == nil {
		// spec.md §4.5: a non-regular dirent (including a live socket some
		// other process may still be listening on) is refused outright,
		// never unlinked out from under it; only a plain regular file
		// (this runtime's own stale leftover) is replaced.
		if !fi.Mode().IsRegular() {
			return ErrNotRegularFile
		}
		if err := os.Remove(path); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	fd, err := ioloop.NewUnixSocket()
	if err != nil {
		return err
	}
	if err := ioloop.BindUnixPath(fd, path); err != nil {
		return err
	}
	return srv.finishListen(fd, "unix", backlog, path)
}

func (srv *Server) finishListen(fd int, network string, backlog int, unixPath string) error {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	if err := ioloop.ListenFD(fd, backlog); err != nil {
		return err
	}
	w, err := ioloop.NewWatcher(srv.loop, fd, "netio-listener")
	if err != nil {
		return err
	}

	srv.mu.Lock()
	srv.fd = fd
	srv.network = network
	srv.unixPath = unixPath
	srv.watcher = w
	srv.listening = true
	srv.mu.Unlock()

	srv.armAccept()

	if srv.handlers.OnListening != nil {
		srv.handlers.OnListening(srv)
	}
	return nil
}

// armAccept starts the accept-drain loop: on readiness, repeatedly accept
// until the OS signals would-block (spec.md §4.5's "drain" rule, the
// non-blocking-accept-queue-draining pattern grounded on gvisor's
// accept-readiness handling — see DESIGN.md).
func (srv *Server) armAccept() {
	srv.watcher.ArmAcceptReady(srv.drainAccepts)
}

func (srv *Server) drainAccepts() bool {
	srv.mu.Lock()
	fd, network := srv.fd, srv.network
	srv.mu.Unlock()

	for {
		childFD, remote, err := ioloop.AcceptFD(fd, network)
		if err != nil {
			srv.forceClose(err)
			return false
		}
		if childFD < 0 {
			return true // drained: EAGAIN, keep the watcher armed for next readiness
		}

		child := newStream(srv.loop, srv.pool, srv.sched, Handlers{})
		if err := child.openAccepted(childFD, network, remote); err != nil {
			srv.log.WithError(err).Warn("accept: failed to wire accepted fd")
			continue
		}
		if srv.handlers.OnConnection != nil {
			srv.handlers.OnConnection(srv, child)
		}
	}
}

// Close stops the accept watcher, closes the fd, and for UNIX listeners
// unlinks the path before emitting close.
func (srv *Server) Close() error {
	srv.mu.Lock()
	if srv.closed {
		srv.mu.Unlock()
		return nil
	}
	srv.closed = true
	fd, network, unixPath := srv.fd, srv.network, srv.unixPath
	w := srv.watcher
	srv.mu.Unlock()

	var err error
	if w != nil {
		err = w.Close()
	}
	if network == "unix" && unixPath != "" {
		if rmErr := os.Remove(unixPath); rmErr != nil && !os.IsNotExist(rmErr) {
			srv.log.WithError(rmErr).Warn("close: failed to unlink unix socket path")
		}
	}
	if srv.handlers.OnClose != nil {
		srv.handlers.OnClose(srv)
	}
	return err
}

func (srv *Server) forceClose(err error) {
	if err != nil {
		srv.log.WithError(err).Error("accept: fatal error, closing listener")
	}
	_ = srv.Close()
}

// Address reports the listener's local endpoint.
func (srv *Server) Address() (net.Addr, error) {
	srv.mu.Lock()
	fd, network := srv.fd, srv.network
	srv.mu.Unlock()
	return ioloop.LocalAddr(fd, network)
}
