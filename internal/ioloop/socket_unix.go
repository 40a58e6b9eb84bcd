//go:build unix

// Raw non-blocking socket syscalls (component C9), grounded on the
// socket/bind/listen/accept4/connect/SO_ERROR/TCP_NODELAY sequences used by
// github.com/mdlayher/socket (see DESIGN.md) and exposed directly via
// golang.org/x/sys/unix, matching the "socket syscalls" collaborator
// contract of spec.md §6.
package ioloop

import (
	"net"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// NewTCPSocket creates a non-blocking TCP socket for the given IP family
// ("tcp4" or "tcp6").
func NewTCPSocket(network string) (int, error) {
	domain := unix.AF_INET
	if network == "tcp6" {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, Errno("socket", err)
	}
	return fd, nil
}

// NewUnixSocket creates a non-blocking UNIX-domain stream socket.
func NewUnixSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, Errno("socket", err)
	}
	return fd, nil
}

// TCPSockaddr builds a unix.Sockaddr for ip:port. It performs no name
// resolution: callers pass an already-resolved IP (see netio's resolve.go
// adapter); this just assembles the final struct.
func TCPSockaddr(ip net.IP, port int) unix.Sockaddr {
	if ip4 := ip.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], ip4)
		return sa
	}
	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], ip.To16())
	return sa
}

// UnixSockaddr builds a unix.Sockaddr for a filesystem path.
func UnixSockaddr(path string) unix.Sockaddr {
	return &unix.SockaddrUnix{Name: path}
}

// Bind binds fd to sa.
func Bind(fd int, sa unix.Sockaddr) error {
	if err := unix.Bind(fd, sa); err != nil {
		return Errno("bind", err)
	}
	return nil
}

// ListenFD marks fd as a listening socket with the given backlog.
func ListenFD(fd int, backlog int) error {
	if err := unix.Listen(fd, backlog); err != nil {
		return Errno("listen", err)
	}
	return nil
}

// ConnectFD issues a non-blocking connect. A nil error means the connect
// completed synchronously (rare but possible for UNIX sockets); EINPROGRESS
// is not an error (spec.md §7(c)) and is returned as-is so callers can test
// it with IsInProgress.
func ConnectFD(fd int, sa unix.Sockaddr) error {
	err := unix.Connect(fd, sa)
	if err == nil || err == unix.EINPROGRESS {
		return err
	}
	return Errno("connect", err)
}

// Accept4FD accepts one pending connection as a non-blocking fd, or returns
// (-1, nil, nil) if the accept queue is empty (EAGAIN) — the "null peer"
// the accept-drain loop in server.go uses to know when to stop draining.
func Accept4FD(listenFD int) (int, unix.Sockaddr, error) {
	fd, sa, err := unix.Accept4(listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if IsWouldBlock(err) {
			return -1, nil, nil
		}
		return -1, nil, Errno("accept4", err)
	}
	return fd, sa, nil
}

// SockError reads and clears SO_ERROR, translating a non-zero result into
// the runtime error type. This is the "query the socket error" step a
// write-watcher's first fire performs while the Stream is connecting
// (spec.md §4.4).
func SockError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return Errno("getsockopt(SO_ERROR)", err)
	}
	if errno != 0 {
		e := unix.Errno(errno)
		if e == unix.EINPROGRESS {
			return e
		}
		return Errno("connect", e)
	}
	return nil
}

// SetNoDelay toggles TCP_NODELAY. TCP only, per spec.md §4.4.
func SetNoDelay(fd int, enable bool) error {
	v := 0
	if enable {
		v = 1
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, v); err != nil {
		return Errno("setsockopt(TCP_NODELAY)", err)
	}
	return nil
}

// ShutdownWrite performs a half-close of the write side.
func ShutdownWrite(fd int) error {
	if err := unix.Shutdown(fd, unix.SHUT_WR); err != nil {
		return Errno("shutdown", err)
	}
	return nil
}

// LocalAddr reports the OS's view of fd's local endpoint (spec.md §4.4
// address()).
func LocalAddr(fd int, network string) (net.Addr, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, Errno("getsockname", err)
	}
	return sockaddrToNetAddr(sa, network)
}

func sockaddrToNetAddr(sa unix.Sockaddr, network string) (net.Addr, error) {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: append([]byte(nil), a.Addr[:]...), Port: a.Port}, nil
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: append([]byte(nil), a.Addr[:]...), Port: a.Port}, nil
	case *unix.SockaddrUnix:
		return &net.UnixAddr{Name: a.Name, Net: "unix"}, nil
	default:
		return nil, os.ErrInvalid
	}
}

// ParseTCPHostPort splits "host:port" into an IP (nil if host still needs
// resolving) and a numeric port.
func ParseTCPHostPort(address string) (ip net.IP, port int, host string, err error) {
	h, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, 0, "", err
	}
	p, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, 0, "", err
	}
	if parsed := net.ParseIP(h); parsed != nil {
		return parsed, p, h, nil
	}
	return nil, p, h, nil
}

// The functions above expose unix.Sockaddr directly, which is only
// meaningful on unix build targets. Everything outside this package talks
// to the platform-agnostic wrappers below instead, so socket_other.go can
// mirror their signatures without referencing unix.Sockaddr at all.

// ConnectTCP issues a non-blocking connect to ip:port.
func ConnectTCP(fd int, ip net.IP, port int) error {
	return ConnectFD(fd, TCPSockaddr(ip, port))
}

// ConnectUnixPath issues a non-blocking connect to a UNIX-domain path.
func ConnectUnixPath(fd int, path string) error {
	return ConnectFD(fd, UnixSockaddr(path))
}

// BindTCP binds fd to ip:port (ip may be unspecified for wildcard bind).
func BindTCP(fd int, ip net.IP, port int) error {
	return Bind(fd, TCPSockaddr(ip, port))
}

// BindUnixPath binds fd to a UNIX-domain filesystem path.
func BindUnixPath(fd int, path string) error {
	return Bind(fd, UnixSockaddr(path))
}

// AcceptFD accepts one pending connection, reporting its peer address as a
// net.Addr, or (-1, nil, nil) on an empty accept queue.
func AcceptFD(listenFD int, network string) (int, net.Addr, error) {
	fd, sa, err := Accept4FD(listenFD)
	if fd < 0 || err != nil {
		return fd, nil, err
	}
	addr, err := sockaddrToNetAddr(sa, network)
	if err != nil {
		return fd, nil, err
	}
	return fd, addr, nil
}

// syscallRead/syscallWrite are the raw, single-attempt, non-blocking
// operations the Watcher's background goroutines and synchronous TryWrite
// perform against a fd whose readiness has already been confirmed (or is
// being probed) by the runtime poller.
func syscallRead(fd int, b []byte) (int, error) {
	return unix.Read(fd, b)
}

func syscallWrite(fd int, b []byte) (int, error) {
	return unix.Write(fd, b)
}
