package netio

import (
	"net"

	"github.com/streamkit/netio/internal/ioloop"
)

// beginConnectTCP implements spec.md §4.4's connect(port, host): literal
// addresses connect immediately; hostnames go through the resolver
// adapter first, with ready-state "opening" for the duration.
func (s *Stream) beginConnectTCP(host string, port int) error {
	s.mu.Lock()
	if s.opened || s.resolving || s.connecting {
		s.mu.Unlock()
		return ErrAlreadyOpen
	}
	s.mu.Unlock()

	if ip := net.ParseIP(host); ip != nil {
		return s.dialTCPLiteral(ip, port)
	}

	s.mu.Lock()
	s.resolving = true
	s.mu.Unlock()

	lookupHost(s.loop, host, func(ip net.IP, err error) {
		s.mu.Lock()
		s.resolving = false
		s.mu.Unlock()
		if err != nil {
			s.forceClose(err)
			return
		}
		if derr := s.dialTCPLiteral(ip, port); derr != nil {
			s.forceClose(derr)
		}
	})
	return nil
}

func (s *Stream) dialTCPLiteral(ip net.IP, port int) error {
	network := "tcp4"
	if ip.To4() == nil {
		network = "tcp6"
	}
	fd, err := ioloop.NewTCPSocket(network)
	if err != nil {
		return err
	}
	// EINPROGRESS is not a failure (spec.md §7(c)): the state machine
	// continues and the write watcher's first fire resolves the outcome.
	if cerr := ioloop.ConnectTCP(fd, ip, port); cerr != nil && !ioloop.IsInProgress(cerr) {
		return cerr
	}
	return s.openConnecting(fd, network)
}

// beginConnectUnix implements spec.md §4.4's connect(path) for UNIX
// domain sockets: no resolution phase, so the Stream goes straight to
// "connecting".
func (s *Stream) beginConnectUnix(path string) error {
	s.mu.Lock()
	if s.opened || s.connecting {
		s.mu.Unlock()
		return ErrAlreadyOpen
	}
	s.mu.Unlock()

	fd, err := ioloop.NewUnixSocket()
	if err != nil {
		return err
	}
	if cerr := ioloop.ConnectUnixPath(fd, path); cerr != nil && !ioloop.IsInProgress(cerr) {
		return cerr
	}
	return s.openConnecting(fd, "unix")
}
